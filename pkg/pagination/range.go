package pagination

import (
	"fmt"
	"strconv"
	"strings"
)

// Range selects page sequence numbers. The zero value selects everything.
type Range struct {
	spans [][2]int
}

// ParseRange reads "all", "", "3", "1-5" or "1,3,7-9"
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return Range{}, nil
	}

	var r Range
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, found := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || from < 1 {
			return Range{}, fmt.Errorf("invalid page %q", part)
		}
		to := from
		if found {
			to, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || to < from {
				return Range{}, fmt.Errorf("invalid page range %q", part)
			}
		}
		r.spans = append(r.spans, [2]int{from, to})
	}
	return r, nil
}

// All reports whether the range selects every page
func (r Range) All() bool {
	return len(r.spans) == 0
}

// Contains reports whether page n is selected
func (r Range) Contains(n int) bool {
	if r.All() {
		return true
	}
	for _, sp := range r.spans {
		if n >= sp[0] && n <= sp[1] {
			return true
		}
	}
	return false
}

// Select keeps the pages whose sequence number is in r
func Select(pages []PageReference, r Range) []PageReference {
	if r.All() {
		return pages
	}
	var out []PageReference
	for _, p := range pages {
		if r.Contains(p.Sequence) {
			out = append(out, p)
		}
	}
	return out
}
