package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is one parsed document handed to every strategy
type Page struct {
	Doc  *goquery.Document
	Raw  string
	Base string
}

// Strategy produces raw, un-normalised URL strings from a page
type Strategy interface {
	Source() Source
	Extract(ctx context.Context, p *Page) []string
}

// DefaultLazyAttributes hold full-resolution URLs behind lazy-load
// placeholders, in trust order
var DefaultLazyAttributes = []string{
	"data-url", "data-src", "data-original", "data-zoom-image", "data-full", "data-large",
}

// LazyAttr reads lazy-load data attributes from any element
type LazyAttr struct {
	Attributes []string
}

func (LazyAttr) Source() Source { return SourceLazyAttr }

func (s LazyAttr) Extract(_ context.Context, p *Page) []string {
	attrs := s.Attributes
	if len(attrs) == 0 {
		attrs = DefaultLazyAttributes
	}
	var out []string
	for _, attr := range attrs {
		p.Doc.Find("[" + attr + "]").Each(func(_ int, sel *goquery.Selection) {
			if v, ok := sel.Attr(attr); ok {
				out = append(out, v)
			}
		})
	}
	return out
}

// Pattern is a named regular expression run over raw markup. When the
// expression has a capture group the first group is the URL.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

const mediaExtAlt = `jpg|jpeg|png|gif|bmp|webp|mp4|webm|mov|avi|mkv`

// ForumHostPatterns match direct links to the image hosts forums embed
var ForumHostPatterns = []Pattern{
	{"selti", regexp.MustCompile(`(?i)https?://(?:simp\d+|cdn)\.selti-delivery\.ru/[^\s<>"']+?\.(?:jpg|jpeg|png|gif|webp)`)},
	{"imgbb", regexp.MustCompile(`(?i)https?://(?:ibb\.co|i\.ibb\.co|imgbb\.com)/[^\s<>"']+`)},
	{"imgur", regexp.MustCompile(`(?i)https?://(?:i\.imgur\.com|imgur\.com)/[^\s<>"']+?\.(?:jpg|jpeg|png|gif|webp)`)},
	{"reddit", regexp.MustCompile(`(?i)https?://i\.redd\.it/[^\s<>"']+?\.(?:jpg|jpeg|png|gif|webp)`)},
}

// GalleryPatterns match upload directories and JSON blobs in gallery pages
var GalleryPatterns = []Pattern{
	{"uploads", regexp.MustCompile(`(?i)https?://[^"'\s<>]+/uploads/[^"'\s<>]+\.(?:` + mediaExtAlt + `)`)},
	{"json", regexp.MustCompile(`(?i)"(?:url|src|image|video|file|source)"\s*:\s*"([^"]+\.(?:` + mediaExtAlt + `))"`)},
	{"video_var", regexp.MustCompile(`(?i)video_url\s*[:=]\s*["']([^"']+)["']`)},
}

// BarePatterns match any absolute media URL anywhere in the markup
var BarePatterns = []Pattern{
	{"bare", regexp.MustCompile(`(?i)https?://[^"'\s<>]+\.(?:` + mediaExtAlt + `)(?:\?[^"'\s<>]*)?`)},
}

// InlineURL scans raw markup with host and JSON patterns
type InlineURL struct {
	Patterns []Pattern
}

func (InlineURL) Source() Source { return SourceInline }

func (s InlineURL) Extract(_ context.Context, p *Page) []string {
	return matchAll(s.Patterns, p.Raw)
}

func matchAll(patterns []Pattern, raw string) []string {
	var out []string
	for _, pat := range patterns {
		for _, m := range pat.Re.FindAllStringSubmatch(raw, -1) {
			if len(m) > 1 {
				out = append(out, m[1])
			} else {
				out = append(out, m[0])
			}
		}
	}
	return out
}

var (
	anchorMediaRe = regexp.MustCompile(`(?i)\.(?:jpg|jpeg|png|gif|bmp|webp|mp4|webm|mov)(?:\?.*)?$`)
	lightboxRe    = regexp.MustCompile(`(?i)lightbox|zoom|fancybox|gallery`)
)

// AnchorLink collects hrefs that point straight at media or sit on a
// lightbox-style link
type AnchorLink struct{}

func (AnchorLink) Source() Source { return SourceAnchor }

func (AnchorLink) Extract(_ context.Context, p *Page) []string {
	var out []string
	p.Doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		class, _ := sel.Attr("class")
		if anchorMediaRe.MatchString(href) || lightboxRe.MatchString(class) {
			out = append(out, href)
		}
	})
	return out
}

// MediaSrc reads img, video and source src attributes, keeping only values
// with a recognised media extension
type MediaSrc struct{}

func (MediaSrc) Source() Source { return SourceMediaSrc }

func (MediaSrc) Extract(_ context.Context, p *Page) []string {
	var out []string
	p.Doc.Find("img[src], video[src], source[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		lower := strings.ToLower(src)
		if containsExt(lower) || strings.Contains(lower, ".md.") {
			out = append(out, src)
		}
	})
	return out
}

// containsExt also accepts extensions followed by a resize suffix, as in
// "/photo.jpg/w640"
func containsExt(lower string) bool {
	for _, ext := range ImageExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	for _, ext := range VideoExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// OpenGraph reads og:image, og:video and twitter:image meta tags
type OpenGraph struct{}

func (OpenGraph) Source() Source { return SourceMeta }

func (OpenGraph) Extract(_ context.Context, p *Page) []string {
	var out []string
	sel := `meta[property="og:image"], meta[property="og:video"], meta[name="twitter:image"], meta[property="twitter:image"]`
	p.Doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok {
			out = append(out, v)
		}
	})
	return out
}
