package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediagrab/pkg/config"
)

func bufferLogger(buf *bytes.Buffer) *zerologLogger {
	return &zerologLogger{logger: zerolog.New(buf).Level(zerolog.DebugLevel)}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	return line
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"empty level defaults to info", &config.LoggingConfig{}, false},
		{"invalid level", &config.LoggingConfig{Level: "loud"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"off", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithFieldsCarriesContext(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf).WithField("entity", "album").WithFields(Fields{"page": 3})

	l.Info("page fetched")

	line := decodeLine(t, &buf)
	assert.Equal(t, "page fetched", line["message"])
	assert.Equal(t, "album", line["entity"])
	assert.Equal(t, float64(3), line["page"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	base := bufferLogger(&buf)

	assert.Same(t, base, base.WithError(nil))

	base.WithError(errors.New("connection reset")).Warn("retrying")
	line := decodeLine(t, &buf)
	assert.Equal(t, "connection reset", line["error"])
}

func TestStructuredFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	bufferLogger(&buf).InfoWithFields("typed", Fields{
		"s":   "v",
		"n":   7,
		"ok":  true,
		"dur": 1500 * time.Millisecond,
		"ls":  []string{"a", "b"},
	})

	line := decodeLine(t, &buf)
	assert.Equal(t, "v", line["s"])
	assert.Equal(t, float64(7), line["n"])
	assert.Equal(t, true, line["ok"])
	assert.Equal(t, []interface{}{"a", "b"}, line["ls"])
	assert.Contains(t, line, "dur")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := &zerologLogger{logger: zerolog.New(&buf).Level(zerolog.WarnLevel)}

	l.Debug("hidden")
	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.True(t, strings.Contains(buf.String(), "shown"))
}

func TestGlobalLogger(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	tl := NewTestLogger()
	SetLogger(tl)

	LogAcquire("thread", "https://x.test/a.jpg", "image", "skipped", nil)
	LogRateLimit("https://x.test", 1000)

	assert.True(t, tl.HasMessage("Acquisition skipped"))
	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "rate_limited", warns[0].Fields["action"])
}

func TestTestLoggerChildrenShareSink(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("a", 1).WithError(errors.New("boom"))
	child.ErrorWithFields("failed", Fields{"b": 2})

	msgs := tl.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].Fields["a"])
	assert.Equal(t, 2, msgs[0].Fields["b"])
	assert.EqualError(t, msgs[0].Error, "boom")
	assert.True(t, tl.HasError())

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}
