package fetch

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// SessionCookieNames are the cookies forum engines use for a logged-in session
var SessionCookieNames = []string{
	"xf_session",
	"xf_user",
	"PHPSESSID",
	"wordpress_logged_in",
	"vbulletin_session",
}

// FileCookie is one line of a Netscape cookie file
type FileCookie struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	Expires           time.Time
	Name              string
	Value             string
	HTTPOnly          bool
}

// Expired reports whether the cookie had expired at now. Session cookies
// never expire.
func (c FileCookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

// ParseCookieFile reads a browser-exported Netscape/Mozilla cookie file
func ParseCookieFile(path string) ([]FileCookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer f.Close()

	var cookies []FileCookie
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, "#HttpOnly_") {
			httpOnly = true
			line = strings.TrimPrefix(line, "#HttpOnly_")
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			return nil, fmt.Errorf("cookie file %s line %d: expected 7 fields, got %d", path, lineNo, len(fields))
		}
		c := FileCookie{
			Domain:            fields[0],
			IncludeSubdomains: strings.EqualFold(fields[1], "TRUE"),
			Path:              fields[2],
			Secure:            strings.EqualFold(fields[3], "TRUE"),
			Name:              fields[5],
			Value:             strings.Join(fields[6:], "\t"),
			HTTPOnly:          httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
		}
		cookies = append(cookies, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return cookies, nil
}

// NewJar builds a cookie jar holding cookies. Expired cookies are loaded
// as session cookies so a stale export still authenticates.
func NewJar(cookies []FileCookie) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, fc := range cookies {
		host := strings.TrimPrefix(fc.Domain, ".")
		if host == "" {
			continue
		}
		scheme := "http"
		if fc.Secure {
			scheme = "https"
		}
		p := fc.Path
		if p == "" {
			p = "/"
		}
		hc := &http.Cookie{
			Name:     fc.Name,
			Value:    fc.Value,
			Path:     p,
			Secure:   fc.Secure,
			HttpOnly: fc.HTTPOnly,
		}
		if fc.IncludeSubdomains {
			hc.Domain = host
		}
		if !fc.Expired(now) {
			hc.Expires = fc.Expires
		}
		jar.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: "/"}, []*http.Cookie{hc})
	}
	return jar, nil
}

// CookieReport summarises a loaded cookie file
type CookieReport struct {
	Total   int
	Expired int
	// Session lists the forum session cookies present
	Session []string
}

// HasSession reports whether any session cookie was found
func (r CookieReport) HasSession() bool {
	return len(r.Session) > 0
}

// CheckCookies inspects cookies for expiry and session markers
func CheckCookies(cookies []FileCookie, now time.Time) CookieReport {
	r := CookieReport{Total: len(cookies)}
	seen := make(map[string]bool)
	for _, c := range cookies {
		if c.Expired(now) {
			r.Expired++
		}
		for _, name := range SessionCookieNames {
			if strings.HasPrefix(c.Name, name) && !seen[name] {
				seen[name] = true
				r.Session = append(r.Session, name)
			}
		}
	}
	return r
}

// LoadCookieFile parses path, installs the cookies into a new jar on c and
// returns the report
func (c *Client) LoadCookieFile(path string) (CookieReport, error) {
	cookies, err := ParseCookieFile(path)
	if err != nil {
		return CookieReport{}, err
	}
	jar, err := NewJar(cookies)
	if err != nil {
		return CookieReport{}, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c.httpClient.Jar = jar
	return CheckCookies(cookies, time.Now()), nil
}
