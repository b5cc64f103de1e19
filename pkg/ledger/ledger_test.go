package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	errs "mediagrab/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushEmptyWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path, err := New("https://forum.test/threads/x.1/").Flush(dir, 10)
	require.NoError(t, err)
	assert.Empty(t, path)
	_, err = os.Stat(filepath.Join(dir, FileName))
	assert.True(t, os.IsNotExist(err))
}

func TestFlushWritesReport(t *testing.T) {
	dir := t.TempDir()
	l := New("https://forum.test/threads/x.1/")
	l.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local) }

	l.Record(NewRecord("https://cdn.test/a.jpg", "x_0001.jpg", errs.FromStatus(404, "https://cdn.test/a.jpg")))
	l.Record(NewRecord("https://cdn.test/b.jpg", "x_0002.jpg", errs.New(errs.ErrorTypeValidation, "https://cdn.test/b.jpg", "file too small")))

	path, err := l.Flush(dir, 12)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)

	lines := strings.Split(report, "\n")
	assert.Equal(t, "Failed URLs from https://forum.test/threads/x.1/", lines[0])
	assert.Equal(t, "Downloaded: 2024-05-01 10:00:00", lines[1])
	assert.Equal(t, "Total failed: 2/12", lines[2])
	assert.Equal(t, strings.Repeat("=", 80), lines[3])
	assert.Contains(t, report, "ERROR: [not_found] not_found error (code 404): Not Found\nFILE: x_0001.jpg\nURL: https://cdn.test/a.jpg\n")
	assert.Contains(t, report, "ERROR: [validation] validation error: file too small\n")
	assert.Equal(t, 2, strings.Count(report, strings.Repeat("-", 80)))
}

func TestRecordIsSafeForConcurrentUse(t *testing.T) {
	l := New("src")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(NewRecord("u", "f", nil))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Len())
	assert.Equal(t, errs.ErrorTypeUnknown, l.Records()[0].Classification)
}
