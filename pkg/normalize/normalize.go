// Package normalize turns raw URL strings scraped out of markup into
// canonical absolute URLs.
package normalize

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
)

// ExtensionRule appends Ext to URLs on hosts matching HostSuffix whose path
// carries none of the recognised extensions
type ExtensionRule struct {
	HostSuffix string
	Ext        string
}

// DefaultRules completes bare ibb.co links, which only resolve to the image
// with an extension
var DefaultRules = []ExtensionRule{{HostSuffix: "ibb.co", Ext: ".jpg"}}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// Normalizer is safe for concurrent use
type Normalizer struct {
	Rules []ExtensionRule
}

// New creates a Normalizer with the default extension rules
func New() *Normalizer {
	return &Normalizer{Rules: DefaultRules}
}

// Normalize canonicalises raw against base. It returns "" when raw cannot
// become an absolute http(s) URL. Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(raw, base string) string {
	s := unescape(raw)
	s = strings.ReplaceAll(s, `\/`, "/")
	s = strings.ReplaceAll(s, `\`, "")
	s = strings.TrimSpace(s)
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		s = s[:i]
	}
	if s == "" || strings.HasPrefix(strings.ToLower(s), "data:") {
		return ""
	}
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return ""
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""

	host := strings.ToLower(u.Hostname())
	for _, r := range n.Rules {
		if host == r.HostSuffix || strings.HasSuffix(host, "."+r.HostSuffix) {
			if !hasAnyExt(u.Path, imageExts) {
				u.Path = strings.TrimSuffix(u.Path, "/") + r.Ext
				u.RawPath = ""
			}
		}
	}
	return u.String()
}

// All normalises every raw string, dropping failures and duplicates while
// keeping first-seen order
func (n *Normalizer) All(raws []string, base string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		u := n.Normalize(r, base)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Normalize uses the default normalizer
func Normalize(raw, base string) string {
	return New().Normalize(raw, base)
}

// Only entities that appear inside attribute URLs are decoded; query keys
// such as &para= or &notify= must survive untouched. Each pattern absorbs
// repeated amp; prefixes, so one pass is enough.
var (
	quotEntityRe  = regexp.MustCompile(`&(?:amp;)*(?:quot|#34|#x22);`)
	slashEntityRe = regexp.MustCompile(`&(?:amp;)*(?:#x2[fF]|#47);`)
	ampEntityRe   = regexp.MustCompile(`&(?:amp;|#38;|#x26;)+`)
)

// unescape drops quote entities and decodes slash and ampersand entities
func unescape(s string) string {
	s = quotEntityRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, `"`, "")
	s = slashEntityRe.ReplaceAllString(s, "/")
	return ampEntityRe.ReplaceAllString(s, "&")
}

func hasAnyExt(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
