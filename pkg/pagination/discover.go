// Package pagination finds every page of a multi-page entity and crawls
// them in order.
package pagination

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageReference is one page of an entity
type PageReference struct {
	URL      string
	Sequence int
	// Offset marks pages synthesised from an offset listing
	Offset bool
}

// ActionKeywords mark links that act on a thread instead of paging it
var ActionKeywords = []string{
	"/report", "/share", "/bookmark", "/react", "/reactions",
	"/edit", "/delete", "/reply", "/quote", "/like", "/unlike",
	"/watch", "/unwatch", "/ignore", "/warn", "/ban",
	"/vote", "/poll", "/rating", "/subscribe", "/unsubscribe",
	"/mark-read", "/mark-unread", "/print", "/email",
	"/alert", "/conversation", "/find-new", "/find-threads",
	"/watched", "/search", "/login", "/register", "/logout",
}

var (
	queryPageRe = regexp.MustCompile(`(?i)[?&](page|p|pg|pagina|pag)=(\d+)`)
	dashPageRe  = regexp.MustCompile(`(?i)/page-(\d+)`)
	slashPageRe = regexp.MustCompile(`/(?:page/|p/)?(\d+)/`)
	trailingRe  = regexp.MustCompile(`/(\d+)$`)
	showingRe   = regexp.MustCompile(`(?i)showing\s+(\d+)\s*(?:-|–|—|to)\s*(\d+)\s+of\s+(\d+)`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
)

// SequenceNumber parses the page number embedded in u. The query parameter
// wins over a dash suffix, which wins over a numeric path segment, which
// wins over a trailing numeral. It returns 1 when nothing matches.
func SequenceNumber(u string) int {
	if m := queryPageRe.FindStringSubmatch(u); m != nil {
		return atoi(m[2])
	}
	if m := dashPageRe.FindStringSubmatch(u); m != nil {
		return atoi(m[1])
	}
	if m := slashPageRe.FindStringSubmatch(u); m != nil {
		return atoi(m[1])
	}
	if m := trailingRe.FindStringSubmatch(u); m != nil {
		return atoi(m[1])
	}
	return 1
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return n
}

func isAction(u string) bool {
	lower := strings.ToLower(u)
	for _, kw := range ActionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// convention is a page numbering scheme recognised in a link
type convention int

const (
	convNone convention = iota
	convQuery
	convDash
	convSlash
)

// pageToken locates the explicit page number in u, if any
func pageToken(u *url.URL) (convention, string, int) {
	for key, vals := range u.Query() {
		switch strings.ToLower(key) {
		case "page", "p", "pg", "pagina", "pag":
			if len(vals) > 0 && digitsRe.MatchString(vals[0]) {
				return convQuery, key, atoi(vals[0])
			}
		}
	}
	if m := dashPageRe.FindStringSubmatch(u.Path); m != nil {
		return convDash, "", atoi(m[1])
	}
	if m := slashTokenRe.FindStringSubmatch(u.Path); m != nil {
		return convSlash, "", atoi(m[1])
	}
	return convNone, "", 0
}

var (
	slashTokenRe = regexp.MustCompile(`/page/(\d+)/?$`)
	stripDashRe  = regexp.MustCompile(`(?i)/page-\d+/?$`)
	stripSlashRe = regexp.MustCompile(`/page/\d+/?$`)
)

// stripPage removes any page token so that pages of one entity compare
// equal
func stripPage(u *url.URL) *url.URL {
	out := *u
	out.Fragment = ""
	q := out.Query()
	for key := range q {
		switch strings.ToLower(key) {
		case "page", "p", "pg", "pagina", "pag", "o":
			q.Del(key)
		}
	}
	out.RawQuery = q.Encode()
	out.Path = stripSlashRe.ReplaceAllString(stripDashRe.ReplaceAllString(out.Path, "/"), "/")
	return &out
}

func sameEntity(a, b *url.URL) bool {
	return strings.EqualFold(a.Host, b.Host) &&
		strings.TrimSuffix(a.Path, "/") == strings.TrimSuffix(b.Path, "/") &&
		a.RawQuery == b.RawQuery
}

type template struct {
	conv  convention
	key   string
	slash bool
}

func (t template) build(base *url.URL, n int) string {
	out := *base
	switch t.conv {
	case convQuery:
		q := out.Query()
		q.Set(t.key, strconv.Itoa(n))
		out.RawQuery = q.Encode()
	case convDash:
		out.Path = strings.TrimSuffix(out.Path, "/") + "/page-" + strconv.Itoa(n)
	case convSlash:
		out.Path = strings.TrimSuffix(out.Path, "/") + "/page/" + strconv.Itoa(n)
		if t.slash {
			out.Path += "/"
		}
	}
	return out.String()
}

// Options tune offset discovery
type Options struct {
	// OffsetPageSize is the listing page size used when synthesising
	// offsets; 50 when zero
	OffsetPageSize int
}

// Discover returns the ordered pages of the entity that startURL belongs
// to, given the markup of its first page. A document without pagination
// yields the start URL alone.
func Discover(html, startURL string, opts Options) []PageReference {
	start, err := url.Parse(startURL)
	if err != nil {
		return []PageReference{{URL: startURL, Sequence: 1}}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return []PageReference{{URL: startURL, Sequence: SequenceNumber(startURL)}}
	}
	if opts.OffsetPageSize <= 0 {
		opts.OffsetPageSize = 50
	}

	base := stripPage(start)
	var refs []PageReference
	refs = append(refs, numbered(doc, start, base)...)
	refs = append(refs, offsets(doc, start, base, opts.OffsetPageSize)...)

	if len(refs) == 0 {
		return []PageReference{{URL: startURL, Sequence: SequenceNumber(startURL)}}
	}
	return dedupe(refs)
}

func numbered(doc *goquery.Document, start, base *url.URL) []PageReference {
	var tmpl *template
	maxPage := 1
	textMax := 1

	doc.Find("a, button").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || isAction(href) {
			return
		}
		ref, err := start.Parse(href)
		if err != nil || !sameEntity(stripPage(ref), base) {
			return
		}
		conv, key, n := pageToken(ref)
		if conv == convNone {
			return
		}
		// link text counts only on page links; a bare thread link labelled
		// with a year or reply count is not a page number
		if text := strings.TrimSpace(s.Text()); digitsRe.MatchString(text) && len(text) < 6 {
			if n := atoi(text); n > textMax {
				textMax = n
			}
		}
		if tmpl == nil {
			tmpl = &template{conv: conv, key: key, slash: strings.HasSuffix(ref.Path, "/")}
		}
		if n > maxPage {
			maxPage = n
		}
	})

	if tmpl == nil {
		return nil
	}
	if textMax > maxPage {
		maxPage = textMax
	}
	if maxPage <= 1 {
		return nil
	}

	refs := []PageReference{{URL: base.String(), Sequence: 1}}
	for n := 2; n <= maxPage; n++ {
		refs = append(refs, PageReference{URL: tmpl.build(base, n), Sequence: n})
	}
	return refs
}

func offsets(doc *goquery.Document, start, base *url.URL, pageSize int) []PageReference {
	total := -1
	if m := showingRe.FindStringSubmatch(doc.Text()); m != nil {
		total = atoi(m[3])
	}

	maxOffset := -1
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := start.Parse(strings.TrimSpace(href))
		if err != nil || !sameEntity(stripPage(ref), base) {
			return
		}
		o := ref.Query().Get("o")
		if !digitsRe.MatchString(o) {
			return
		}
		if n := atoi(o); n > maxOffset {
			maxOffset = n
		}
	})

	limit := -1
	switch {
	case total > pageSize:
		limit = total - 1
	case total < 0 && maxOffset > 0:
		limit = maxOffset
	}
	if limit < 0 {
		return nil
	}

	var refs []PageReference
	for off, seq := 0, 1; off <= limit; off, seq = off+pageSize, seq+1 {
		u := *base
		if off > 0 {
			q := u.Query()
			q.Set("o", strconv.Itoa(off))
			u.RawQuery = q.Encode()
		}
		refs = append(refs, PageReference{URL: u.String(), Sequence: seq, Offset: true})
	}
	return refs
}

// dedupe keeps the first reference per URL and per sequence number, then
// sorts by sequence
func dedupe(refs []PageReference) []PageReference {
	seenURL := make(map[string]bool)
	seenSeq := make(map[int]bool)
	var out []PageReference
	for _, r := range refs {
		if seenURL[r.URL] || seenSeq[r.Sequence] {
			continue
		}
		seenURL[r.URL] = true
		seenSeq[r.Sequence] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}
