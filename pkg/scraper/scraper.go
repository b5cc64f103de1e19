package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mediagrab/internal/downloader"
	"mediagrab/pkg/browser"
	"mediagrab/pkg/config"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/fetch"
	"mediagrab/pkg/ledger"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/ratelimit"
	"mediagrab/pkg/sites"
	"mediagrab/pkg/storage"
	"mediagrab/pkg/ui"
)

// Scraper resolves a target URL to its platform handler and runs it with
// the shared client, engine and browser
type Scraper struct {
	config   *config.Config
	client   *fetch.Client
	pacer    *ratelimit.Pacer
	engine   *downloader.Engine
	renderer browser.Renderer
	registry *sites.Registry
	logger   logger.Logger
	notifier *ui.Notifier
	progress bool
	mode     sites.Mode
	now      func() time.Time
}

// Option customises a Scraper
type Option func(*Scraper)

// WithLogger replaces the global logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// WithRegistry replaces the built-in handler set
func WithRegistry(r *sites.Registry) Option {
	return func(s *Scraper) { s.registry = r }
}

// WithRenderer installs a browser regardless of configuration
func WithRenderer(r browser.Renderer) Option {
	return func(s *Scraper) { s.renderer = r }
}

// WithMode forces a handler instead of detecting one from the URL
func WithMode(m sites.Mode) Option {
	return func(s *Scraper) { s.mode = m }
}

// WithProgress enables the terminal progress line and the full summary.
// Without it the run ends with a one-line summary.
func WithProgress(on bool) Option {
	return func(s *Scraper) { s.progress = on }
}

// WithNotifier sends a notification when a run ends
func WithNotifier(n *ui.Notifier) Option {
	return func(s *Scraper) { s.notifier = n }
}

// New creates a Scraper from cfg
func New(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Scraper{
		config:   cfg,
		registry: sites.DefaultRegistry(),
		logger:   logger.GetLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.pacer = ratelimit.NewPacer(ratelimit.Config{
		Delay:             cfg.RateLimit.RequestDelay,
		MaxDelay:          cfg.RateLimit.MaxDelay,
		Jitter:            cfg.RateLimit.Jitter,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
	})
	s.pacer.AddHostRule(sites.JPGHostRe, sites.JPGHostDelay)

	s.client = fetch.NewClient(cfg.HTTP.Timeout,
		fetch.WithPacer(s.pacer),
		fetch.WithLogger(s.logger),
		fetch.WithUserAgent(cfg.HTTP.UserAgent),
		fetch.WithAPIKey("pixeldrain.com", cfg.HTTP.APIKey),
	)

	if cfg.HTTP.CookiesFile != "" {
		report, err := s.client.LoadCookieFile(cfg.HTTP.CookiesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load cookies: %w", err)
		}
		fields := logger.Fields{
			"file":    cfg.HTTP.CookiesFile,
			"total":   report.Total,
			"expired": report.Expired,
			"session": strings.Join(report.Session, ","),
		}
		if !report.HasSession() {
			s.logger.WarnWithFields("cookie file has no session cookie; forum threads may need a login", fields)
		} else {
			s.logger.InfoWithFields("cookies loaded", fields)
		}
	}

	s.engine = downloader.NewEngine(s.client, downloader.ConfigFrom(cfg), s.logger)

	if s.renderer == nil && cfg.Browser.Enabled {
		s.renderer = browser.NewChromeSession(browser.Options{
			Headless:  cfg.Browser.Headless,
			ExecPath:  cfg.Browser.ExecPath,
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.Browser.Timeout,
			Settle:    cfg.Browser.Settle,
		}, s.logger)
	}
	return s, nil
}

// Client exposes the shared HTTP client
func (s *Scraper) Client() *fetch.Client { return s.client }

// Close releases the browser, if one was started
func (s *Scraper) Close() error {
	if s.renderer == nil {
		return nil
	}
	return s.renderer.Close()
}

// Report describes one finished run
type Report struct {
	Target     string
	Mode       sites.Mode
	Dir        string
	Pages      int64
	Found      int64
	Filtered   int64
	Downloaded int64
	Skipped    int64
	Failed     int64
	Bytes      int64
	Elapsed    time.Duration
	LedgerPath string
	// Files are the completed files in Dir after the run
	Files []string
}

func (r *Report) summary() ui.Summary {
	return ui.Summary{
		Target:     r.Target,
		Mode:       string(r.Mode),
		Dir:        r.Dir,
		Pages:      r.Pages,
		Found:      r.Found,
		Filtered:   r.Filtered,
		Downloaded: r.Downloaded,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Bytes:      r.Bytes,
		Elapsed:    r.Elapsed,
		LedgerPath: r.LedgerPath,
	}
}

// Handler resolves the handler for target, honouring a forced mode
func (s *Scraper) Handler(target *url.URL) (sites.Handler, error) {
	if s.mode != "" {
		h, ok := s.registry.Lookup(s.mode)
		if !ok {
			return nil, errs.New(errs.ErrorTypePermanent, target.String(), fmt.Sprintf("unknown mode %q", s.mode))
		}
		return h, nil
	}
	return s.registry.Resolve(target)
}

// ParseTarget validates a user supplied URL
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePermanent, raw, err, "invalid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.New(errs.ErrorTypePermanent, raw, "URL must be absolute http(s)")
	}
	return u, nil
}

// Run acquires everything behind rawTarget. The report is returned even
// when the handler fails, so per-file outcomes are never lost.
func (s *Scraper) Run(ctx context.Context, rawTarget string) (*Report, error) {
	target, err := ParseTarget(rawTarget)
	if err != nil {
		return nil, err
	}
	h, err := s.Handler(target)
	if err != nil {
		return nil, err
	}

	start := s.now()
	run := &sites.Run{
		Config:  s.config,
		Client:  s.client,
		Engine:  s.engine,
		Browser: s.renderer,
		Ledger:  ledger.New(target.String()),
		Stats:   &sites.Stats{},
		Logger:  s.logger.WithField("mode", string(h.Name())),
		Now:     s.now,
	}
	var progress *ui.ProgressDisplay
	if s.progress {
		debug := strings.EqualFold(s.config.Logging.Level, "debug")
		progress = ui.NewProgressDisplay(storage.Slug(target.String(), string(h.Name())), debug)
		run.Observer = &progressObserver{display: progress}
	}

	logger.LogComponentStart("scraper", logger.Fields{
		"target": target.String(),
		"mode":   string(h.Name()),
	})
	runErr := h.Run(ctx, target, run)
	if runErr != nil {
		s.logger.WithError(runErr).ErrorWithFields("run failed", logger.Fields{
			"target":     target.String(),
			"error_type": string(errs.TypeOf(runErr)),
		})
	}

	report := s.finish(run, target, h.Name(), s.now().Sub(start))
	reason := "completed"
	if runErr != nil {
		reason = string(errs.TypeOf(runErr))
	}
	logger.LogComponentStop("scraper", reason)

	// the counts are printed even in quiet mode
	if s.progress {
		ui.PrintSummary(ui.Output, report.summary())
	} else {
		ui.PrintSummaryLine(ui.Output, report.summary())
	}
	s.notify(report, runErr)
	return report, runErr
}

// finish writes the failure ledger and snapshots the counters
func (s *Scraper) finish(run *sites.Run, target *url.URL, mode sites.Mode, elapsed time.Duration) *Report {
	st := run.Stats
	report := &Report{
		Target:     target.String(),
		Mode:       mode,
		Dir:        run.Dir(),
		Pages:      st.Pages.Load(),
		Found:      st.Found.Load(),
		Filtered:   st.Filtered.Load(),
		Downloaded: st.Downloaded.Load(),
		Skipped:    st.Skipped.Load(),
		Failed:     st.Failed.Load(),
		Bytes:      st.Bytes.Load(),
		Elapsed:    elapsed,
	}

	if run.Ledger.Len() > 0 || st.Attempted() > 0 {
		s.flush(run, report)
	}

	s.logger.InfoWithFields("run finished", logger.Fields{
		"dir":        report.Dir,
		"downloaded": report.Downloaded,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
		"filtered":   report.Filtered,
		"bytes":      report.Bytes,
		"elapsed":    elapsed.String(),
	})
	return report
}

// flush writes the failure ledger into the output directory and lists
// what ended up there
func (s *Scraper) flush(run *sites.Run, report *Report) {
	m, err := storage.NewManager(report.Dir)
	if err != nil {
		s.logger.WithError(err).Error("failed to open output directory")
		return
	}
	path, err := run.Ledger.Flush(m.Dir(), int(run.Stats.Attempted()))
	if err != nil {
		s.logger.WithError(err).Error("failed to write failure ledger")
	}
	report.LedgerPath = path
	if files, err := m.Files(); err == nil {
		report.Files = files
	}
}

func (s *Scraper) notify(r *Report, err error) {
	if s.notifier == nil {
		return
	}
	if err != nil {
		s.notifier.SendError("mediagrab failed", err.Error())
		return
	}
	s.notifier.SendSuccess("mediagrab finished",
		fmt.Sprintf("%d downloaded, %d skipped, %d failed", r.Downloaded, r.Skipped, r.Failed))
}
