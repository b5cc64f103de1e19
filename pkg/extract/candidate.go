package extract

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the media class of a candidate
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindUnknown Kind = "unknown"
)

// Source identifies the strategy that produced a candidate. Lower values
// are more trusted.
type Source int

const (
	SourceLazyAttr Source = iota
	SourceInline
	SourceAnchor
	SourceMediaSrc
	SourceEmbed
	SourceMeta
	SourceVariant
)

func (s Source) String() string {
	switch s {
	case SourceLazyAttr:
		return "lazy_attr"
	case SourceInline:
		return "inline"
	case SourceAnchor:
		return "anchor"
	case SourceMediaSrc:
		return "media_src"
	case SourceEmbed:
		return "embed"
	case SourceMeta:
		return "meta"
	case SourceVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// Candidate is a normalised URL that might reference downloadable media
type Candidate struct {
	URL    string
	Source Source
	Kind   Kind
}

var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}
	VideoExtensions = []string{".mp4", ".webm", ".mov", ".avi", ".mkv", ".m4v"}
	videoMarkers    = []string{"get_file", "v-acctoken", "/video/", "/stream/"}
)

// KindOf derives the media class from the URL's extension or, failing
// that, from path markers used by tokenised video links
func KindOf(rawURL string) Kind {
	ext := Ext(rawURL)
	if contains(VideoExtensions, ext) {
		return KindVideo
	}
	if contains(ImageExtensions, ext) {
		return KindImage
	}
	lower := strings.ToLower(rawURL)
	for _, m := range videoMarkers {
		if strings.Contains(lower, m) {
			return KindVideo
		}
	}
	return KindUnknown
}

// Ext returns the lower-cased extension of the URL path, ignoring query
// and fragment
func Ext(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// HasMediaExt reports whether rawURL's path ends in an image or video
// extension
func HasMediaExt(rawURL string) bool {
	ext := Ext(rawURL)
	return contains(ImageExtensions, ext) || contains(VideoExtensions, ext)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Set is an insertion-ordered candidate set keyed by normalised URL. When
// the same URL arrives from several strategies the most trusted provenance
// is kept.
type Set struct {
	index map[string]int
	items []Candidate
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Add inserts c and reports whether its URL was new
func (s *Set) Add(c Candidate) bool {
	if i, ok := s.index[c.URL]; ok {
		if c.Source < s.items[i].Source {
			s.items[i].Source = c.Source
		}
		return false
	}
	s.index[c.URL] = len(s.items)
	s.items = append(s.items, c)
	return true
}

// Merge adds every candidate and returns how many URLs were new
func (s *Set) Merge(cs []Candidate) int {
	added := 0
	for _, c := range cs {
		if s.Add(c) {
			added++
		}
	}
	return added
}

// Has reports whether the URL is present
func (s *Set) Has(u string) bool {
	_, ok := s.index[u]
	return ok
}

// Len returns the number of distinct URLs
func (s *Set) Len() int { return len(s.items) }

// List returns the candidates in insertion order
func (s *Set) List() []Candidate {
	out := make([]Candidate, len(s.items))
	copy(out, s.items)
	return out
}

// URLs returns the URLs in insertion order
func (s *Set) URLs() []string {
	out := make([]string, len(s.items))
	for i, c := range s.items {
		out[i] = c.URL
	}
	return out
}
