package browser

import (
	"context"
	"strings"
	"testing"

	"mediagrab/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderKeepsOrderAndFilters(t *testing.T) {
	rec := newRecorder(func(u string) bool { return strings.Contains(u, ".mp4") })
	rec.add("https://cdn.test/a.mp4")
	rec.add("https://ads.test/pixel.gif")
	rec.add("data:image/png;base64,AAAA")
	rec.add("https://cdn.test/b.mp4")
	rec.add("https://cdn.test/a.mp4")

	assert.Equal(t, []string{"https://cdn.test/a.mp4", "https://cdn.test/b.mp4"}, rec.list())
}

func TestClickScriptQuotesSelector(t *testing.T) {
	js := clickScript(`a[href*="download"]`)
	assert.Contains(t, js, `document.querySelector("a[href*=\"download\"]")`)
}

func TestCloseWithoutStart(t *testing.T) {
	s := NewChromeSession(Options{Headless: true}, logger.NewTestLogger())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Capture(context.Background(), "https://example.test/", CaptureOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSessionDefaults(t *testing.T) {
	s := NewChromeSession(Options{}, nil)
	assert.Equal(t, DefaultUserAgent, s.opts.UserAgent)
	assert.Positive(t, s.opts.Timeout)
	assert.Positive(t, s.opts.Settle)
	assert.NotEmpty(t, s.allocatorOptions())
}
