package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// Replacement rewrites a rendition token into its full-size form
type Replacement struct {
	Old, New string
}

// VariantRules describes how to derive full-size URLs from thumbnail URLs
type VariantRules struct {
	Replacements []Replacement
	// StripSizeHosts lists host patterns whose URLs also get a variant with
	// every WxH token removed
	StripSizeHosts *regexp.Regexp
}

// ForumVariants are the rewrites used on forum threads
var ForumVariants = VariantRules{
	Replacements: []Replacement{
		{"/thumb/", "/"}, {"/thumbnail/", "/"}, {"/thumbs/", "/"},
		{"/small/", "/"}, {"/medium/", "/"}, {"/large/", "/"},
		{"_thumb", ""}, {"_small", ""}, {"_medium", ""},
		{"thumb_", ""}, {"small_", ""},
		{"-150x150.", "."}, {"-300x300.", "."},
		{"_150x150.", "."}, {"_300x300.", "."},
	},
	StripSizeHosts: regexp.MustCompile(`(?i)(^|\.)jpg\d*\.su$`),
}

// GalleryVariants are the rewrites used on gallery pages
var GalleryVariants = VariantRules{
	Replacements: []Replacement{
		{"/thumb/", "/full/"}, {"/thumbnail/", "/original/"},
		{"/small/", "/large/"}, {"/medium/", "/large/"},
		{"_thumb", ""}, {"_small", ""}, {"_medium", "_large"},
		{"thumb_", ""}, {"/thumbs/", "/images/"},
		{"-150x150.", "."}, {"-300x300.", "."}, {"-600x600.", "."},
		{"_150x150.", "."}, {"_300x300.", "."}, {"_600x600.", "."},
	},
}

var sizeTokenRe = regexp.MustCompile(`[_-]\d+x\d+`)

// Variants returns the full-size URLs derivable from u, excluding u itself
func (r VariantRules) Variants(u string) []string {
	high := u
	for _, rep := range r.Replacements {
		if strings.Contains(strings.ToLower(high), rep.Old) {
			high = strings.ReplaceAll(high, rep.Old, rep.New)
		}
	}

	var out []string
	if high != u {
		out = append(out, high)
	}
	if r.StripSizeHosts != nil && r.StripSizeHosts.MatchString(hostOf(high)) {
		if stripped := sizeTokenRe.ReplaceAllString(high, ""); stripped != high && stripped != u {
			out = append(out, stripped)
		}
	}
	return out
}

// AddVariants inserts every derived variant of the set's image candidates
// and returns how many were new
func (r VariantRules) AddVariants(set *Set) int {
	added := 0
	for _, c := range set.List() {
		if c.Kind == KindVideo {
			continue
		}
		for _, v := range r.Variants(c.URL) {
			if set.Add(Candidate{URL: v, Source: SourceVariant, Kind: KindOf(v)}) {
				added++
			}
		}
	}
	return added
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
