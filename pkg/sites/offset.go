package sites

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mediagrab/internal/downloader"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/extract"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/pagination"
	"mediagrab/pkg/storage"
)

// Offset downloads a creator profile whose post listing is paged with
// ?o=N. Each listing page yields post links; the media of every post page
// is collected. A listing page that adds no new post ends the crawl.
type Offset struct {
	// PostMarker identifies post links in a listing; "/post/" when empty
	PostMarker string
}

func (*Offset) Name() Mode { return ModeOffset }

func (*Offset) Match(u *url.URL) bool { return Detect(u) == ModeOffset }

func (o *Offset) marker() string {
	if o.PostMarker != "" {
		return o.PostMarker
	}
	return "/post/"
}

// PostLinks returns the absolute post links of a listing page that belong
// to the profile at profilePath
func PostLinks(body, pageURL, profilePath, marker string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, pageURL, err, "failed to parse listing")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(profilePath, "/") + marker
	var out []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		u, err := base.Parse(s.AttrOr("href", ""))
		if err != nil || !strings.EqualFold(u.Host, base.Host) || !strings.HasPrefix(u.Path, prefix) {
			return
		}
		u.RawQuery, u.Fragment = "", ""
		if !seen[u.String()] {
			seen[u.String()] = true
			out = append(out, u.String())
		}
	})
	return out, nil
}

func (o *Offset) Run(ctx context.Context, target *url.URL, r *Run) error {
	start := target.String()
	first, err := r.Client.GetHTML(ctx, start, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}
	pages, err := r.DiscoverPages(first.Body, start)
	if err != nil {
		return err
	}
	// a listing page that adds no new post ends the crawl
	for i := range pages {
		pages[i].Offset = true
	}

	var posts []string
	seen := make(map[string]bool)
	crawl := r.Crawler().Crawl(ctx, pages, func(ctx context.Context, ref pagination.PageReference) (int, error) {
		body := first.Body
		if !samePage(ref, first, len(pages)) {
			p, err := r.Client.GetHTML(ctx, ref.URL, nil)
			if err != nil {
				return 0, err
			}
			body = p.Body
		}
		r.Stats.Pages.Add(1)
		links, err := PostLinks(body, ref.URL, target.Path, o.marker())
		if err != nil {
			return 0, err
		}
		added := 0
		for _, l := range links {
			if !seen[l] {
				seen[l] = true
				posts = append(posts, l)
				added++
			}
		}
		logger.LogPageProgress(start, ref.Sequence, len(pages), added)
		return added, nil
	})
	r.Logger.InfoWithFields("profile listed", logger.Fields{
		"posts": len(posts),
		"stop":  crawl.StopCause,
	})

	ex := r.NewExtractor(extract.GenericStrategies(nil))
	set := extract.NewSet()
	postPages := make([]pagination.PageReference, len(posts))
	for i, p := range posts {
		postPages[i] = pagination.PageReference{URL: p, Sequence: i + 1}
	}
	r.Crawler().Crawl(ctx, postPages, func(ctx context.Context, ref pagination.PageReference) (int, error) {
		p, err := r.Client.GetHTML(ctx, ref.URL, nil)
		if err != nil {
			return 0, err
		}
		cands, err := ex.Extract(ctx, p.Body, ref.URL)
		if err != nil {
			return 0, errs.Wrap(errs.ErrorTypeParsing, ref.URL, err, "failed to parse post")
		}
		return set.Merge(cands), nil
	})

	found := set.URLs()
	r.Stats.Found.Add(int64(len(found)))
	if len(found) == 0 {
		return errs.New(errs.ErrorTypeExtractionEmpty, start, "no media found on profile")
	}
	kept := r.Filter(ctx, found, nil, nil)
	if len(kept) == 0 {
		r.Logger.Warn("every candidate was filtered out")
		return nil
	}

	dir, err := r.OutputDir(storage.Slug(start, "profile"), true)
	if err != nil {
		return err
	}
	prefix := r.Prefix(start, "profile")
	jobs := make([]downloader.Job, 0, len(kept))
	for i, u := range kept {
		kind := extract.KindOf(u)
		jobs = append(jobs, downloader.Job{Task: downloader.Task{
			URL:  u,
			Dest: filepath.Join(dir, storage.PrefixedName(prefix, i+1, forumIndexWidth, u, kind == extract.KindVideo)),
			Kind: kind,
		}})
	}
	r.Acquire(ctx, r.Engine, jobs)
	return nil
}
