package sites

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"mediagrab/internal/downloader"
	"mediagrab/pkg/browser"
	"mediagrab/pkg/config"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/extract"
	"mediagrab/pkg/fetch"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/pagination"
	"mediagrab/pkg/prioritize"
	"mediagrab/pkg/retry"
	"mediagrab/pkg/storage"
)

const (
	// BunkrReferer is sent with every bunkr file download
	BunkrReferer = "https://bunkr.cr/"
	// BunkrGetHost serves the intermediate download page for a data-id
	BunkrGetHost = "https://get.bunkrr.su"
	// bunkrAttempts is higher than the default because the CDN answers
	// 502/503 under load
	bunkrAttempts = 5
)

// BunkrClickSelectors are tried in order on the download page
var BunkrClickSelectors = []string{"a#download-btn", "a[data-id]", "a.btn-main", `a[href*="download"]`}

// Bunkr downloads albums (/a/<id>) and single files (/f/<id>). The final
// file location only appears once the download page's scripts run, so each
// file is resolved in the browser and the captured requests are tried in
// priority order.
type Bunkr struct {
	Policy  prioritize.Policy
	Capture prioritize.CaptureFilter
}

func (*Bunkr) Name() Mode { return ModeBunkr }

func (*Bunkr) Match(u *url.URL) bool { return Detect(u) == ModeBunkr }

func (b *Bunkr) policy() prioritize.Policy {
	if len(b.Policy.Extensions) == 0 {
		return prioritize.DefaultPolicy()
	}
	return b.Policy
}

func (b *Bunkr) captureFilter() prioritize.CaptureFilter {
	if len(b.Capture.Include) == 0 {
		return prioritize.DefaultCaptureFilter()
	}
	return b.Capture
}

func (b *Bunkr) Run(ctx context.Context, target *url.URL, r *Run) error {
	switch {
	case strings.Contains(target.Path, "/a/"):
		return b.runAlbum(ctx, target, r)
	case strings.Contains(target.Path, "/f/"), strings.Contains(target.Path, "/v/"), strings.Contains(target.Path, "/i/"):
		dir, err := r.OutputDir("", false)
		if err != nil {
			return err
		}
		r.Stats.Found.Add(1)
		b.acquireItem(ctx, target.String(), dir, r)
		return nil
	}
	return errs.New(errs.ErrorTypePermanent, target.String(), "unsupported bunkr URL; expected /a/<id> or /f/<id>")
}

func (b *Bunkr) engine(r *Run) *downloader.Engine {
	return r.Engine.Derive(func(c *downloader.Config) {
		c.ImageFloor = 0
		c.VideoFloor = 0
		if c.MaxAttempts < bunkrAttempts {
			c.MaxAttempts = bunkrAttempts
		}
		c.Backoff = retry.NewExponentialBackoff(time.Second, 16*time.Second)
	})
}

func docTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func (b *Bunkr) runAlbum(ctx context.Context, target *url.URL, r *Run) error {
	start := target.String()
	first, err := r.Client.GetHTML(ctx, start, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch album: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(first.Body))
	if err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, start, err, "failed to parse album")
	}
	name := storage.SanitizeFilename(docTitle(doc))
	if name == "" {
		name = path.Base(strings.TrimSuffix(target.Path, "/"))
	}

	pages, err := r.DiscoverPages(first.Body, start)
	if err != nil {
		return err
	}

	var items []string
	seen := make(map[string]bool)
	r.Crawler().Crawl(ctx, pages, func(ctx context.Context, ref pagination.PageReference) (int, error) {
		body := first.Body
		if !samePage(ref, first, len(pages)) {
			p, err := r.Client.GetHTML(ctx, ref.URL, nil)
			if err != nil {
				return 0, err
			}
			body = p.Body
		}
		r.Stats.Pages.Add(1)
		links, err := AlbumItems(body, ref.URL)
		if err != nil {
			return 0, err
		}
		added := 0
		for _, l := range links {
			if !seen[l] {
				seen[l] = true
				items = append(items, l)
				added++
			}
		}
		logger.LogPageProgress(start, ref.Sequence, len(pages), added)
		return added, nil
	})

	r.Stats.Found.Add(int64(len(items)))
	r.Logger.InfoWithFields("bunkr album", logger.Fields{
		"album": name,
		"pages": len(pages),
		"files": len(items),
	})
	if len(items) == 0 {
		return errs.New(errs.ErrorTypeExtractionEmpty, start, "album has no files")
	}

	dir, err := r.OutputDir(name, false)
	if err != nil {
		return err
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.acquireItem(ctx, item, dir, r)
	}
	return nil
}

// AlbumItems returns the absolute item page links of one album page
func AlbumItems(body, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, pageURL, err, "failed to parse album page")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find(`div.theItem a[href^="/f/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if u, err := base.Parse(href); err == nil {
			out = append(out, u.String())
		}
	})
	return out, nil
}

// Item is what an item page reveals before the browser runs
type Item struct {
	Filename string
	// DownloadPage is the page whose scripts start the transfer
	DownloadPage string
}

// ParseItem reads the file name and download page of an item page
func ParseItem(body, itemURL string) (*Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, itemURL, err, "failed to parse item page")
	}
	base, err := url.Parse(itemURL)
	if err != nil {
		return nil, err
	}

	name := docTitle(doc)
	if name == "" || !strings.Contains(name, ".") {
		name = path.Base(strings.TrimSuffix(base.Path, "/")) + ".mp4"
	}
	item := &Item{Filename: storage.SanitizeFilename(name)}

	btn := doc.Find(`a.btn-main[href*="get.bunkr"]`).First()
	if btn.Length() == 0 {
		btn = doc.Find("a#download-btn").First()
	}
	if btn.Length() == 0 {
		return nil, errs.New(errs.ErrorTypeExtractionEmpty, itemURL, "no download button found")
	}

	href := strings.TrimSpace(btn.AttrOr("href", ""))
	if href != "" && href != "#" {
		if u, err := base.Parse(href); err == nil {
			item.DownloadPage = u.String()
			return item, nil
		}
	}
	if id := strings.TrimSpace(btn.AttrOr("data-id", "")); id != "" {
		item.DownloadPage = BunkrGetHost + "/file/" + url.PathEscape(id)
		return item, nil
	}
	return nil, errs.New(errs.ErrorTypeExtractionEmpty, itemURL, "no valid download URL found")
}

// Resolve turns a download page into an ordered list of file URLs. Without
// a browser the download page itself is the only candidate.
func (b *Bunkr) Resolve(ctx context.Context, r browser.Renderer, downloadPage string) ([]string, error) {
	if r == nil {
		return []string{downloadPage}, nil
	}
	cf := b.captureFilter()
	capt, err := r.Capture(ctx, downloadPage, browser.CaptureOptions{
		ClickSelectors: BunkrClickSelectors,
		RemoveIframes:  true,
		Keep:           cf.Keep,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeTransient, downloadPage, err, "browser capture failed")
	}

	captured := capt.Requests
	if capt.FinalURL != "" && capt.FinalURL != downloadPage &&
		!strings.Contains(capt.FinalURL, "get.bunkrr.su") && extract.HasMediaExt(capt.FinalURL) {
		captured = append(captured, capt.FinalURL)
	}
	if len(captured) == 0 {
		return nil, errs.New(errs.ErrorTypeExtractionEmpty, downloadPage, "no download URL captured")
	}
	return b.policy().Prioritize(captured), nil
}

func (b *Bunkr) acquireItem(ctx context.Context, itemURL, dir string, r *Run) {
	fail := func(err error) {
		r.Record(downloader.Result{
			Task:    downloader.Task{URL: itemURL},
			Outcome: downloader.OutcomeFailed,
			Err:     err,
		})
	}

	page, err := r.Client.GetHTML(ctx, itemURL, nil)
	if err != nil {
		fail(err)
		return
	}
	item, err := ParseItem(page.Body, itemURL)
	if err != nil {
		fail(err)
		return
	}

	dest := filepath.Join(dir, item.Filename)
	if r.Config.Output.Overwrite == "" || r.Config.Output.Overwrite == config.OverwriteSkip {
		// skip the browser entirely when the file is already here
		if storage.NonEmpty(dest) {
			r.Record(downloader.Result{Task: downloader.Task{URL: itemURL, Dest: dest}, Outcome: downloader.OutcomeSkipped, Path: dest})
			return
		}
	}

	urls, err := b.Resolve(ctx, r.Browser, item.DownloadPage)
	if err != nil {
		fail(err)
		return
	}
	r.Logger.DebugWithFields("bunkr sources", logger.Fields{
		"item":    itemURL,
		"sources": len(urls),
	})

	r.Acquire(ctx, b.engine(r), []downloader.Job{{
		Task: downloader.Task{
			URL:     itemURL,
			Dest:    dest,
			Headers: fetch.Headers{"Referer": BunkrReferer},
			Kind:    extract.KindOf(item.Filename),
		},
		Sources: urls,
	}})
}
