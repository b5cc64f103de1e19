package sites

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mediagrab/internal/downloader"
	"mediagrab/pkg/browser"
	"mediagrab/pkg/config"
	"mediagrab/pkg/extract"
	"mediagrab/pkg/fetch"
	"mediagrab/pkg/filter"
	"mediagrab/pkg/ledger"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/pagination"
	"mediagrab/pkg/storage"
)

// JPGHostRe matches the jpgN.su image CDN family, which wants a Referer,
// an image Accept header and a slower pace
var JPGHostRe = regexp.MustCompile(`(^|\.)jpg\d*\.su$`)

// JPGHostDelay is the pause between requests to a jpgN.su host
const JPGHostDelay = time.Second

// Stats counts what a run did. Safe for concurrent use.
type Stats struct {
	Pages      atomic.Int64
	Found      atomic.Int64
	Filtered   atomic.Int64
	Downloaded atomic.Int64
	Skipped    atomic.Int64
	Failed     atomic.Int64
	Bytes      atomic.Int64
}

// Attempted is the number of acquisitions that reached an outcome
func (s *Stats) Attempted() int64 {
	return s.Downloaded.Load() + s.Skipped.Load() + s.Failed.Load()
}

// Observer is told about queued work and finished acquisitions
type Observer interface {
	Queued(n int)
	Finished(res downloader.Result)
}

// Run is the per-invocation state shared by the orchestrator and a handler
type Run struct {
	Config  *config.Config
	Client  *fetch.Client
	Engine  *downloader.Engine
	Browser browser.Renderer
	Ledger  *ledger.Ledger
	Stats   *Stats
	Logger  logger.Logger
	Now     func() time.Time
	// Observer may be nil
	Observer Observer

	mu  sync.Mutex
	dir string
}

// OutputDir creates the directory files of this run go to on first call
// and returns it on every later call. A stamped directory is
// <base>/<name>_<timestamp>; otherwise it is <base>/<name>, or the base
// itself when name is empty.
func (r *Run) OutputDir(name string, stamped bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dir != "" {
		return r.dir, nil
	}

	base := r.Config.Output.BaseDirectory
	var dir string
	var err error
	switch {
	case r.Config.Output.FlatLayout || name == "":
		dir = base
		err = os.MkdirAll(dir, 0o755)
	case stamped:
		dir, err = storage.NewRunDir(base, name, r.now())
	default:
		dir = filepath.Join(base, storage.SanitizeFilename(name))
		err = os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	r.dir = dir
	return dir, nil
}

// Dir returns the output directory if one was created, else the base
func (r *Run) Dir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dir != "" {
		return r.dir
	}
	return r.Config.Output.BaseDirectory
}

func (r *Run) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// PageRange is the configured page selection
func (r *Run) PageRange() (pagination.Range, error) {
	rng, err := pagination.ParseRange(r.Config.Pagination.Pages)
	if err != nil {
		return pagination.Range{}, fmt.Errorf("invalid page range: %w", err)
	}
	return rng, nil
}

// Crawler builds the page crawler from config
func (r *Run) Crawler() *pagination.Crawler {
	return pagination.NewCrawler(
		r.Config.RateLimit.RequestDelay,
		r.Config.Pagination.MaxConsecutiveFailures,
		r.Logger,
	)
}

// DiscoverPages finds the pages of the entity at start and applies the
// configured range
func (r *Run) DiscoverPages(body, start string) ([]pagination.PageReference, error) {
	rng, err := r.PageRange()
	if err != nil {
		return nil, err
	}
	pages := pagination.Discover(body, start, pagination.Options{OffsetPageSize: r.Config.Pagination.OffsetPageSize})
	selected := pagination.Select(pages, rng)
	r.Logger.InfoWithFields("pages discovered", logger.Fields{
		"url":      start,
		"found":    len(pages),
		"selected": len(selected),
	})
	return selected, nil
}

// FilterPolicy builds the phase 1 policy from config, adding keywords when
// asked
func (r *Run) FilterPolicy(keywords []string) filter.Policy {
	p := filter.DefaultPolicy()
	p.ExcludeExtensions = r.Config.Filter.ExcludeExtensions
	p.Keywords = append(append([]string{}, r.Config.Filter.Keywords...), keywords...)
	return p
}

// ProbeConfig builds the phase 2 thresholds from config
func (r *Run) ProbeConfig(headersFor func(string) fetch.Headers) filter.ProbeConfig {
	cfg := filter.DefaultProbeConfig()
	f := r.Config.Filter
	if f.MinBytes > 0 {
		cfg.MinBytes = f.MinBytes
	}
	if f.SmallSide > 0 {
		cfg.SmallSide = f.SmallSide
	}
	if f.SquareSide > 0 {
		cfg.SquareSide = f.SquareSide
	}
	cfg.Presets = append(append([]filter.Dimensions{}, cfg.Presets...), ParsePresets(f.ExtraPresets)...)
	cfg.HeadersFor = headersFor
	return cfg
}

// ParsePresets parses WxH strings, skipping malformed ones
func ParsePresets(specs []string) []filter.Dimensions {
	var out []filter.Dimensions
	for _, s := range specs {
		w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
		if !ok {
			continue
		}
		wi, err1 := strconv.Atoi(w)
		hi, err2 := strconv.Atoi(h)
		if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
			continue
		}
		out = append(out, filter.Dimensions{Width: wi, Height: hi})
	}
	return out
}

// Filter runs phase 1 and, when enabled, phase 2 over urls and returns the
// survivors in input order
func (r *Run) Filter(ctx context.Context, urls []string, keywords []string, headersFor func(string) fetch.Headers) []string {
	pf := filter.NewPatternFilter(r.FilterPolicy(keywords))
	kept, rejected := pf.Partition(urls)
	r.Stats.Filtered.Add(int64(len(rejected)))
	r.Logger.InfoWithFields("pattern filter applied", logger.Fields{
		"input":    len(urls),
		"kept":     len(kept),
		"rejected": len(rejected),
		"reasons":  filter.ReasonCounts(rejected),
	})

	if !r.Config.Filter.Probe || len(kept) == 0 {
		return kept
	}

	prober := filter.NewPropertyProber(r.Client, r.ProbeConfig(headersFor), r.Logger)
	res := prober.FilterAll(ctx, kept, r.Config.Filter.MaxRejectRatio)
	if !res.Fallback {
		r.Stats.Filtered.Add(int64(len(res.Rejected)))
	}
	r.Logger.InfoWithFields("property filter applied", logger.Fields{
		"input":    len(kept),
		"kept":     len(res.Accepted),
		"rejected": len(res.Rejected),
		"fallback": res.Fallback,
		"reasons":  filter.ReasonCounts(res.Rejected),
	})
	return res.Accepted
}

// Acquire runs jobs through eng, sequentially or through a worker pool of
// the configured size, and records every outcome as it finishes
func (r *Run) Acquire(ctx context.Context, eng *downloader.Engine, jobs []downloader.Job) []downloader.Result {
	if r.Observer != nil {
		r.Observer.Queued(len(jobs))
	}
	n := r.Config.Acquire.Concurrent
	if n <= 1 {
		results := make([]downloader.Result, 0, len(jobs))
		for i, job := range jobs {
			if ctx.Err() != nil {
				break
			}
			res := eng.AcquireFirst(ctx, jobSources(job), job.Task)
			r.Record(res)
			results = append(results, res)
			r.Logger.DebugWithFields("acquired", logger.Fields{
				"index":   i + 1,
				"total":   len(jobs),
				"outcome": string(res.Outcome),
			})
		}
		return results
	}

	pool := downloader.NewWorkerPool(ctx, n, eng, r.Logger)
	pool.Start()
	go func() {
		defer pool.Stop()
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				r.Logger.WithError(err).Debug("stopped queueing downloads")
				return
			}
		}
	}()

	// results arrive in completion order
	results := make([]downloader.Result, 0, len(jobs))
	for res := range pool.Results() {
		if res.Outcome == "" {
			continue
		}
		r.Record(res)
		results = append(results, res)
	}
	return results
}

func jobSources(j downloader.Job) []string {
	if len(j.Sources) > 0 {
		return j.Sources
	}
	return []string{j.Task.URL}
}

// Record folds one result into the counters and the failure ledger
func (r *Run) Record(res downloader.Result) {
	switch res.Outcome {
	case downloader.OutcomeSuccess:
		r.Stats.Downloaded.Add(1)
		r.Stats.Bytes.Add(res.Bytes)
	case downloader.OutcomeSkipped:
		r.Stats.Skipped.Add(1)
	case downloader.OutcomeFailed:
		r.Stats.Failed.Add(1)
		src := res.Task.URL
		if src == "" {
			src = res.URL
		}
		r.Ledger.Record(ledger.NewRecord(src, filepath.Base(res.Path), res.Err))
	}
	if r.Observer != nil && res.Outcome != "" {
		r.Observer.Finished(res)
	}
}

// Prefix is the configured filename prefix, or the slug of target
// followed by an underscore
func (r *Run) Prefix(targetURL, fallback string) string {
	if p := r.Config.Output.FilenamePrefix; p != "" {
		return p
	}
	return storage.Slug(targetURL, fallback) + "_"
}

// NewExtractor builds an extractor with the run's logger
func (r *Run) NewExtractor(strategies []extract.Strategy) *extract.Extractor {
	return extract.New(strategies, extract.WithLogger(r.Logger))
}
