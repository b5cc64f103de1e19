package sites

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"mediagrab/internal/downloader"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/extract"
	"mediagrab/pkg/fetch"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/pagination"
	"mediagrab/pkg/storage"
)

// jpgAccept is sent to jpgN.su hosts, which refuse generic HTML accepts
const jpgAccept = "image/webp,image/apng,image/*,*/*;q=0.8"

// forumIndexWidth pads forum file indexes
const forumIndexWidth = 4

// Forum downloads the images posted in a cookie-authenticated thread
type Forum struct{}

func (*Forum) Name() Mode { return ModeForum }

func (*Forum) Match(u *url.URL) bool { return Detect(u) == ModeForum }

// forumHeaders returns the extra headers for one image of a thread
func forumHeaders(threadURL string) func(string) fetch.Headers {
	referer := fetch.Origin(threadURL) + "/"
	return func(u string) fetch.Headers {
		pu, err := url.Parse(u)
		if err != nil || !JPGHostRe.MatchString(pu.Hostname()) {
			return nil
		}
		return fetch.Headers{"Referer": referer, "Accept": jpgAccept}
	}
}

// samePage reports whether ref is the already fetched first page
func samePage(ref pagination.PageReference, first *fetch.Page, total int) bool {
	return total == 1 || ref.URL == first.URL || ref.URL == first.FinalURL
}

func (f *Forum) Run(ctx context.Context, target *url.URL, r *Run) error {
	start := target.String()
	first, err := r.Client.GetHTML(ctx, start, nil)
	if lerr := fetch.CheckLoginWall(first); lerr != nil {
		return lerr
	}
	if err != nil {
		return fmt.Errorf("failed to fetch thread: %w", err)
	}

	pages, err := r.DiscoverPages(first.Body, start)
	if err != nil {
		return err
	}

	ex := r.NewExtractor(extract.ForumStrategies())
	set := extract.NewSet()

	crawl := r.Crawler().Crawl(ctx, pages, func(ctx context.Context, ref pagination.PageReference) (int, error) {
		page := first
		if !samePage(ref, first, len(pages)) {
			p, err := r.Client.GetHTML(ctx, ref.URL, nil)
			if lerr := fetch.CheckLoginWall(p); lerr != nil {
				return 0, lerr
			}
			if err != nil {
				return 0, err
			}
			page = p
		}
		r.Stats.Pages.Add(1)
		cands, err := ex.Extract(ctx, page.Body, ref.URL)
		if err != nil {
			return 0, errs.Wrap(errs.ErrorTypeParsing, ref.URL, err, "failed to parse page")
		}
		added := set.Merge(cands)
		logger.LogPageProgress(start, ref.Sequence, len(pages), added)
		return added, nil
	})
	r.Logger.InfoWithFields("thread crawled", logger.Fields{
		"visited": crawl.Visited,
		"failed":  crawl.Failed,
		"stop":    crawl.StopCause,
	})

	extract.ForumVariants.AddVariants(set)
	found := set.URLs()
	r.Stats.Found.Add(int64(len(found)))
	if len(found) == 0 {
		return errs.New(errs.ErrorTypeExtractionEmpty, start, "no media found in thread")
	}

	headersFor := forumHeaders(start)
	kept := r.Filter(ctx, found, nil, headersFor)
	if len(kept) == 0 {
		r.Logger.Warn("every candidate was filtered out")
		return nil
	}

	dir, err := r.OutputDir(storage.Slug(start, "thread"), true)
	if err != nil {
		return err
	}
	prefix := r.Prefix(start, "image")

	jobs := make([]downloader.Job, 0, len(kept))
	for i, u := range kept {
		video := extract.KindOf(u) == extract.KindVideo
		name := storage.PrefixedName(prefix, i+1, forumIndexWidth, u, video)
		jobs = append(jobs, downloader.Job{Task: downloader.Task{
			URL:     u,
			Dest:    filepath.Join(dir, name),
			Headers: headersFor(u),
			Kind:    extract.KindOf(u),
		}})
	}
	r.Acquire(ctx, r.Engine, jobs)
	return nil
}
