package fetch

import (
	"net/http"
	"strings"

	errs "mediagrab/pkg/errors"
)

var loginIndicators = []string{
	"please login",
	"sign in required",
	"you must be logged in",
	"login to view",
	"restricted access",
}

var contentMarkers = []string{
	`<div class="message`,
	"<article",
	"post-",
	"thread-",
	"bbcode",
	"[img]",
}

// minContentPage is the body length above which a page carrying post
// markup is trusted over a stray login phrase in a sidebar
const minContentPage = 5000

// IsLoginWall reports whether a forum page is asking for a login instead of
// showing the thread
func IsLoginWall(status int, body string) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	lower := strings.ToLower(body)
	hasIndicator := false
	for _, ind := range loginIndicators {
		if strings.Contains(lower, ind) {
			hasIndicator = true
			break
		}
	}
	if !hasIndicator {
		return false
	}
	if len(body) > minContentPage {
		for _, m := range contentMarkers {
			if strings.Contains(lower, m) {
				return false
			}
		}
	}
	return true
}

// CheckLoginWall converts a login wall into an auth error
func CheckLoginWall(p *Page) error {
	if p == nil || !IsLoginWall(p.Status, p.Body) {
		return nil
	}
	return errs.New(errs.ErrorTypeAuth, p.URL, "login required; export fresh cookies for this site")
}
