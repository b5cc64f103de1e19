package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Mode names a platform handler
type Mode string

const (
	ModeForum      Mode = "forum"
	ModePixeldrain Mode = "pixeldrain"
	ModeBunkr      Mode = "bunkr"
	ModeOffset     Mode = "offset"
	ModeGallery    Mode = "gallery"
)

// galleryKeywords route a URL to the gallery handler when no host rule
// matched first
var galleryKeywords = []string{"viralthots", "album", "gallery", "photos", "video"}

// OffsetHosts are listing sites paged by ?o=N
var OffsetHosts = []string{"kemono.", "coomer."}

// Detect picks the handler for u. Forum threads win over everything, then
// the file hosts, then gallery keywords, then forum indexes; anything else
// is treated as a gallery.
func Detect(u *url.URL) Mode {
	host := strings.ToLower(u.Hostname())
	lower := strings.ToLower(u.String())
	path := strings.ToLower(u.Path)

	switch {
	case strings.Contains(host, "simpcity") || strings.Contains(path, "/threads/"):
		return ModeForum
	case strings.Contains(host, "pixeldrain"):
		return ModePixeldrain
	case strings.Contains(host, "bunkr"):
		return ModeBunkr
	case containsAny(host, OffsetHosts):
		return ModeOffset
	case containsAny(lower, galleryKeywords):
		return ModeGallery
	case strings.Contains(path, "/forums/"):
		return ModeForum
	}
	return ModeGallery
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Handler acquires everything behind one target URL on its platform
type Handler interface {
	Name() Mode
	Match(u *url.URL) bool
	Run(ctx context.Context, target *url.URL, r *Run) error
}

// Registry holds handlers in match order
type Registry struct {
	handlers []Handler
}

// NewRegistry creates a registry over handlers
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: handlers}
}

// DefaultRegistry wires every built-in platform
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Forum{},
		&Pixeldrain{},
		&Bunkr{},
		&Offset{},
		&Gallery{},
	)
}

// Resolve returns the first handler that matches u
func (r *Registry) Resolve(u *url.URL) (Handler, error) {
	for _, h := range r.handlers {
		if h.Match(u) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("no handler for %s", u.String())
}

// Lookup returns the handler registered under mode
func (r *Registry) Lookup(mode Mode) (Handler, bool) {
	for _, h := range r.handlers {
		if h.Name() == mode {
			return h, true
		}
	}
	return nil, false
}

// Modes lists registered handler names
func (r *Registry) Modes() []Mode {
	out := make([]Mode, len(r.handlers))
	for i, h := range r.handlers {
		out[i] = h.Name()
	}
	return out
}
