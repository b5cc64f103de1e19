package filter

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"mediagrab/pkg/extract"
)

// Dimensions are observed pixel dimensions
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Verdict is the outcome of classifying one candidate
type Verdict struct {
	Keep   bool
	Reason string
	// Size is the observed byte size, nil when unknown
	Size *int64
	// Dims are the decoded dimensions, nil when unknown
	Dims *Dimensions
}

func keep(reason string) Verdict   { return Verdict{Keep: true, Reason: reason} }
func reject(reason string) Verdict { return Verdict{Keep: false, Reason: reason} }

// Rule is a named pattern
type Rule struct {
	Name string
	Re   *regexp.Regexp
}

func rules(patterns ...string) []Rule {
	out := make([]Rule, len(patterns))
	for i, p := range patterns {
		out[i] = Rule{Name: p, Re: regexp.MustCompile(p)}
	}
	return out
}

// Policy is the phase-1 rule table. All matching is case-insensitive on the
// lowered URL and filename.
type Policy struct {
	// ExcludeExtensions are rejected outright, e.g. ".gif"
	ExcludeExtensions []string
	// SizeTokens are matched against both the filename and the full URL
	SizeTokens []Rule
	// StemPatterns are matched against the filename only
	StemPatterns []Rule
	// PathSegments are substrings of the full URL
	PathSegments []string
	// AvatarDomains are host substrings
	AvatarDomains []string
	// Keywords are substrings of the full URL that reject images but never
	// videos
	Keywords []string
}

// DefaultSizeTokens are numeric size markers of thumbnails and UI assets
var DefaultSizeTokens = rules(
	`50x62`, `96x96`, `192x192`, `300x100`, `48x48`,
	`32x32`, `64x64`, `128x128`, `150x150`,
	`_96\.`, `_48\.`, `-96\.`, `-48\.`,
	`size_96`, `size_48`,
)

// DefaultStemPatterns are low-resolution filename stems
var DefaultStemPatterns = rules(
	`_thumb(?:nail)?\.`, `_small\.`, `_mini\.`, `_tiny\.`, `_icon\.`,
	`thumb_`, `small_`, `mini_`, `tiny_`, `avatar`,
	`_\d+x\d+\.`, `-\d+x\d+\.`, `_low\.`, `_lowres\.`,
	`_lowquality\.`, `_preview\.`, `_sample\.`,
)

// DefaultPathSegments are URL fragments of thumbnail and UI directories
var DefaultPathSegments = []string{
	"/thumbs/", "/thumbnail/", "/small/", "/mini/", "/tiny/",
	"/preview/", "/sample/", "/lowres/", "/lowquality/", "/avatar/",
	"/icon/", "/smilie/", "/emoji/", "/spacer.", "/pixel.",
	"/1x1.", "/blank.",
}

// DefaultAvatarDomains serve profile pictures only
var DefaultAvatarDomains = []string{"gravatar.com", "avatar.tapatalk-cdn.com"}

// GalleryKeywords reject site chrome on gallery pages
var GalleryKeywords = []string{
	"avatar", "icon", "logo", "spacer", "pixel",
	"placeholder", "emoji", "smiley", "widget",
}

// DefaultPolicy returns the full rule table with no excluded extensions
func DefaultPolicy() Policy {
	return Policy{
		SizeTokens:    DefaultSizeTokens,
		StemPatterns:  DefaultStemPatterns,
		PathSegments:  DefaultPathSegments,
		AvatarDomains: DefaultAvatarDomains,
	}
}

// PatternFilter is the network-free phase 1 classifier
type PatternFilter struct {
	policy Policy
}

// NewPatternFilter creates a phase 1 classifier
func NewPatternFilter(p Policy) *PatternFilter {
	return &PatternFilter{policy: p}
}

// Classify decides on rawURL from its text alone. The result depends only
// on the URL.
func (f *PatternFilter) Classify(rawURL string) Verdict {
	lower := strings.ToLower(rawURL)
	var host, filename string
	if u, err := url.Parse(lower); err == nil {
		host = u.Hostname()
		filename = path.Base(u.Path)
	}
	isVideo := extract.KindOf(rawURL) == extract.KindVideo

	ext := extract.Ext(rawURL)
	for _, ex := range f.policy.ExcludeExtensions {
		if ext != "" && ext == "."+strings.TrimPrefix(strings.ToLower(ex), ".") {
			return reject(fmt.Sprintf("excluded extension %s", ext))
		}
	}

	for _, r := range f.policy.SizeTokens {
		if r.Re.MatchString(filename) || r.Re.MatchString(lower) {
			return reject("size token " + r.Name)
		}
	}

	for _, r := range f.policy.StemPatterns {
		if r.Re.MatchString(filename) {
			return reject("filename pattern " + r.Name)
		}
	}

	for _, seg := range f.policy.PathSegments {
		if strings.Contains(lower, seg) {
			return reject("url contains " + seg)
		}
	}

	for _, d := range f.policy.AvatarDomains {
		if strings.Contains(host, d) {
			return reject("avatar domain " + d)
		}
	}

	if !isVideo {
		for _, kw := range f.policy.Keywords {
			if strings.Contains(lower, kw) {
				return reject("keyword " + kw)
			}
		}
	}

	return keep("")
}

// Partition splits urls into kept and rejected, preserving order
func (f *PatternFilter) Partition(urls []string) (kept []string, rejected []Rejection) {
	for _, u := range urls {
		v := f.Classify(u)
		if v.Keep {
			kept = append(kept, u)
			continue
		}
		rejected = append(rejected, Rejection{URL: u, Verdict: v})
	}
	return kept, rejected
}

// Rejection pairs a URL with the verdict that dropped it
type Rejection struct {
	URL     string
	Verdict Verdict
}

// ReasonCounts tallies rejections by reason
func ReasonCounts(rs []Rejection) map[string]int {
	out := make(map[string]int)
	for _, r := range rs {
		out[r.Verdict.Reason]++
	}
	return out
}
