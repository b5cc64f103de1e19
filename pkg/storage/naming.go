package storage

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*]`)
	slugRe           = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	extRe            = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|bmp|webp|svg|mp4|webm|mov|avi|mkv|m4v)`)
	digitsRe         = regexp.MustCompile(`^\d+$`)
)

// SanitizeFilename drops characters that are invalid in file names on
// common filesystems
func SanitizeFilename(name string) string {
	return strings.TrimSpace(unsafeFilenameRe.ReplaceAllString(name, ""))
}

// SanitizePrefix replaces invalid characters in a user supplied prefix
func SanitizePrefix(prefix string) string {
	return unsafeFilenameRe.ReplaceAllString(prefix, "_")
}

// Slug derives a folder-safe entity name from the last path segment of
// entityURL that is not purely numeric and longer than two characters. It
// returns fallback when there is none.
func Slug(entityURL, fallback string) string {
	u, err := url.Parse(entityURL)
	if err != nil {
		return fallback
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if p == "" || digitsRe.MatchString(p) || len(p) <= 2 {
			continue
		}
		return slugRe.ReplaceAllString(p, "_")
	}
	return fallback
}

// RunDirName is the folder name of one run
func RunDirName(slug string, now time.Time) string {
	return fmt.Sprintf("%s_%s", slug, now.Format("20060102_150405"))
}

// NewRunDir creates <base>/<slug>_<YYYYMMDD_HHMMSS>
func NewRunDir(base, slug string, now time.Time) (string, error) {
	dir := filepath.Join(base, RunDirName(slug, now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	return dir, nil
}

// MediaExt picks the stored extension for rawURL: the recognised extension
// of its file name with .jpeg folded into .jpg, otherwise .mp4 for videos
// and .jpg for everything else
func MediaExt(rawURL string, video bool) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if m := extRe.FindStringSubmatch(base); m != nil && strings.Contains(base, ".") {
		ext := "." + strings.ToLower(m[1])
		if ext == ".jpeg" {
			ext = ".jpg"
		}
		return ext
	}
	if video {
		return ".mp4"
	}
	return ".jpg"
}

// PrefixedName builds <prefix><index><ext> with index zero-padded to width
func PrefixedName(prefix string, index, width int, rawURL string, video bool) string {
	return fmt.Sprintf("%s%0*d%s", SanitizePrefix(prefix), width, index, MediaExt(rawURL, video))
}
