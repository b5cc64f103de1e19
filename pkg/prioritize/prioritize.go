// Package prioritize orders the download URLs captured from a rendered
// interstitial page into a fallback chain.
package prioritize

import "strings"

// Policy describes which hosts are trusted for the final asset
type Policy struct {
	// Trusted are host markers of reliable mirrors, tried first
	Trusted []string
	// Unreliable is a host marker tried only after every other media URL
	Unreliable string
	// Extensions mark a URL as pointing at a media file
	Extensions []string
}

// DefaultPolicy is tuned for bunkr mirrors
func DefaultPolicy() Policy {
	return Policy{
		Trusted:    []string{"bunkr.ru", "bunkr.si", "bunkr.la"},
		Unreliable: "cache8.st",
		Extensions: []string{".mp4", ".jpg", ".png", ".gif", ".webm", ".jpeg"},
	}
}

func (p Policy) hasExt(lower string) bool {
	for _, ext := range p.Extensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

func (p Policy) tier(u string) int {
	lower := strings.ToLower(u)
	media := p.hasExt(lower)
	switch {
	case media && containsAny(lower, p.Trusted):
		return 0
	case media && (p.Unreliable == "" || !strings.Contains(lower, p.Unreliable)):
		return 1
	case media:
		return 2
	default:
		return 3
	}
}

// Prioritize returns captured deduplicated and grouped into four tiers:
// trusted mirrors with a media extension, other media URLs, media URLs on
// the unreliable host, then everything else. Capture order is kept inside
// each tier.
func (p Policy) Prioritize(captured []string) []string {
	var tiers [4][]string
	seen := make(map[string]bool, len(captured))
	for _, u := range captured {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		t := p.tier(u)
		tiers[t] = append(tiers[t], u)
	}

	out := make([]string, 0, len(seen))
	for _, t := range tiers {
		out = append(out, t...)
	}
	return out
}

// Prioritize orders captured with the default policy
func Prioritize(captured []string) []string {
	return DefaultPolicy().Prioritize(captured)
}

// CaptureFilter decides which network requests of a rendered page are
// download candidates
type CaptureFilter struct {
	Include []string
	Exclude []string
}

// DefaultCaptureFilter keeps media files and CDN traffic and drops ads and
// trackers
func DefaultCaptureFilter() CaptureFilter {
	return CaptureFilter{
		Include: []string{
			".mp4", ".jpg", ".jpeg", ".png", ".gif", ".webp",
			".mkv", ".avi", ".mov", "cdn", "stream", "media",
		},
		Exclude: []string{"porn", "xxx", "ads", "analytics", "tracker", "popup", "imcdn.pro"},
	}
}

// Keep reports whether a captured request URL is worth trying
func (f CaptureFilter) Keep(u string) bool {
	lower := strings.ToLower(u)
	return containsAny(lower, f.Include) && !containsAny(lower, f.Exclude)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
