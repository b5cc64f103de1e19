package sites

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"mediagrab/internal/downloader"
	"mediagrab/pkg/browser"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/extract"
	"mediagrab/pkg/fetch"
	"mediagrab/pkg/filter"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/storage"
)

const galleryIndexWidth = 3

// tokenMarkers identify signed video links that only play with the
// embedding page as Referer
var tokenMarkers = []string{"get_file", "v-acctoken", "token"}

// Gallery downloads the images and videos of a gallery or video page,
// following iframe embeds one hop. Unknown sites land here too and get the
// broader generic strategy set.
type Gallery struct{}

func (*Gallery) Name() Mode { return ModeGallery }

// Match accepts everything; the gallery handler is the fallback
func (*Gallery) Match(*url.URL) bool { return true }

// isGalleryURL reports whether the specialised gallery strategies apply
func isGalleryURL(u *url.URL) bool {
	return containsAny(strings.ToLower(u.String()), galleryKeywords)
}

// galleryHeaders adds Referer and Origin for token links
func galleryHeaders(pageURL string) func(string) fetch.Headers {
	return func(u string) fetch.Headers {
		lower := strings.ToLower(u)
		if !containsAny(lower, tokenMarkers) {
			return nil
		}
		return fetch.Headers{"Referer": pageURL, "Origin": fetch.Origin(u)}
	}
}

func (g *Gallery) Run(ctx context.Context, target *url.URL, r *Run) error {
	start := target.String()
	page, err := r.Client.GetHTML(ctx, start, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch page: %w", err)
	}
	r.Stats.Pages.Add(1)

	strategies := extract.GenericStrategies(r.Client)
	if isGalleryURL(target) {
		strategies = extract.GalleryStrategies(r.Client)
	}
	ex := r.NewExtractor(strategies)

	set := extract.NewSet()
	cands, err := ex.Extract(ctx, page.Body, start)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, start, err, "failed to parse page")
	}
	set.Merge(cands)

	if set.Len() == 0 && r.Browser != nil {
		// scripted galleries only render their media in a browser
		capt, err := r.Browser.Capture(ctx, start, browser.CaptureOptions{})
		if err != nil {
			r.Logger.WarnWithFields("browser render failed", logger.Fields{"url": start, "error": err.Error()})
		} else if cands, err := ex.Extract(ctx, capt.HTML, start); err == nil {
			set.Merge(cands)
			for _, u := range capt.Requests {
				if extract.HasMediaExt(u) {
					set.Add(extract.Candidate{URL: u, Source: extract.SourceMediaSrc, Kind: extract.KindOf(u)})
				}
			}
		}
	}

	extract.GalleryVariants.AddVariants(set)
	found := set.URLs()
	sort.Strings(found)
	r.Stats.Found.Add(int64(len(found)))
	if len(found) == 0 {
		return errs.New(errs.ErrorTypeExtractionEmpty, start, "no images or videos found on this page")
	}

	headersFor := galleryHeaders(start)
	kept := r.Filter(ctx, found, filter.GalleryKeywords, headersFor)
	kept = g.dropSmallVideos(ctx, kept, headersFor, r)
	if len(kept) == 0 {
		r.Logger.Warn("every candidate was filtered out")
		return nil
	}

	videos := 0
	for _, u := range kept {
		if extract.KindOf(u) == extract.KindVideo {
			videos++
		}
	}
	r.Logger.InfoWithFields("gallery media", logger.Fields{
		"files":  len(kept),
		"images": len(kept) - videos,
		"videos": videos,
	})

	dir, err := r.OutputDir(storage.Slug(start, "gallery"), true)
	if err != nil {
		return err
	}
	prefix := r.Prefix(start, "gallery")

	jobs := make([]downloader.Job, 0, len(kept))
	for i, u := range kept {
		kind := extract.KindOf(u)
		name := storage.PrefixedName(prefix, i+1, galleryIndexWidth, u, kind == extract.KindVideo)
		jobs = append(jobs, downloader.Job{Task: downloader.Task{
			URL:     u,
			Dest:    filepath.Join(dir, name),
			Headers: headersFor(u),
			Kind:    kind,
		}})
	}
	r.Acquire(ctx, r.Engine, jobs)
	return nil
}

// dropSmallVideos removes videos whose declared size is under the
// configured minimum; those are usually previews. Videos whose size cannot
// be learned are kept.
func (g *Gallery) dropSmallVideos(ctx context.Context, urls []string, headersFor func(string) fetch.Headers, r *Run) []string {
	floor := r.Config.Acquire.MinVideoSize
	if floor <= 0 {
		return urls
	}
	out := urls[:0:0]
	for _, u := range urls {
		if extract.KindOf(u) != extract.KindVideo {
			out = append(out, u)
			continue
		}
		meta, err := r.Client.Head(ctx, u, headersFor(u))
		if err != nil || meta.ContentLength <= 0 || meta.ContentLength >= floor {
			out = append(out, u)
			continue
		}
		r.Stats.Filtered.Add(1)
		r.Logger.InfoWithFields("skipping small video", logger.Fields{
			"url":   u,
			"bytes": meta.ContentLength,
			"min":   floor,
		})
	}
	return out
}
