package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://forum.test/threads/summer-trip.12345/", "summer-trip_12345"},
		{"https://forum.test/threads/summer-trip.12345/page-3", "page-3"},
		{"https://gallery.test/album/beach%20day/", "beach_day"},
		{"https://gallery.test/a/12345/", "thread"},
		{"https://gallery.test/", "thread"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Slug(tt.url, "thread"), tt.url)
	}
}

func TestNewRunDir(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	dir, err := NewRunDir(base, "trip", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "trip_20240309_140507"), dir)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPrefixedName(t *testing.T) {
	assert.Equal(t, "trip_0007.jpg", PrefixedName("trip_", 7, 4, "https://cdn.test/a/IMG.JPEG?x=1", false))
	assert.Equal(t, "trip_0012.png", PrefixedName("trip_", 12, 4, "https://cdn.test/a/shot.png", false))
	assert.Equal(t, "vid_003.mp4", PrefixedName("vid_", 3, 3, "https://cdn.test/get_file/1/abc/", true))
	assert.Equal(t, "img_001.jpg", PrefixedName("img_", 1, 3, "https://ibb.co/abc", false))
	assert.Equal(t, "a_b_001.webm", PrefixedName("a/b_", 1, 3, "https://cdn.test/clip.webm", true))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "whatis this.mp4", SanitizeFilename(`what?is <this>.mp4`))
	assert.Equal(t, "ab", SanitizeFilename(`a/b`))
}

func TestManagerWriteFileAtomically(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "run")
	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.False(t, m.Exists("report.txt"))
	require.NoError(t, m.WriteFile("report.txt", bytes.NewBufferString("first")))
	require.NoError(t, m.WriteFile("report.txt", bytes.NewBufferString("second")))

	data, err := os.ReadFile(m.Path("report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.True(t, m.Exists("report.txt"))

	files, err := m.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"report.txt"}, files)
}

func TestManagerIgnoresEmptyAndPartialFiles(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(m.Path("empty.jpg"), nil, 0o644))
	require.NoError(t, os.WriteFile(m.Path("clip.mp4"+PartSuffix), []byte("x"), 0o644))

	assert.False(t, m.Exists("empty.jpg"))
	files, err := m.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"empty.jpg"}, files)
}
