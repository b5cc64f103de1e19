// Package browser drives a headless Chrome for pages that only reveal
// their media URLs after scripts run or a button is clicked.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"mediagrab/pkg/logger"
)

// ErrClosed is returned by Capture after Close
var ErrClosed = errors.New("browser session closed")

// CaptureOptions controls one page visit
type CaptureOptions struct {
	// WaitSelector is awaited after navigation when set
	WaitSelector string
	// ClickSelectors are tried in order; the first present element is
	// clicked and the rest are ignored
	ClickSelectors []string
	RemoveIframes  bool
	// Settle is the pause after navigation and after a click
	Settle time.Duration
	// Timeout bounds navigation; a slow page is still inspected afterwards
	Timeout time.Duration
	// Keep selects which observed request URLs are recorded; all are
	// recorded when nil
	Keep func(string) bool
}

// Capture is what a visit observed
type Capture struct {
	FinalURL string
	HTML     string
	// Requests lists recorded request URLs in the order they were issued
	Requests []string
	// Clicked is the selector that was clicked, if any
	Clicked string
}

// Renderer visits pages in a real browser
type Renderer interface {
	Capture(ctx context.Context, url string, opts CaptureOptions) (*Capture, error)
	Close() error
}

// Options configures a ChromeSession
type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	// Timeout and Settle are defaults for captures that leave them unset
	Timeout time.Duration
	Settle  time.Duration
}

// DefaultUserAgent is presented by the browser
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ChromeSession owns one browser process. Each Capture opens a fresh tab.
// The process starts on first use; Close tears it down.
type ChromeSession struct {
	opts   Options
	logger logger.Logger

	mu           sync.Mutex
	started      bool
	closed       bool
	browserCtx   context.Context
	cancelAlloc  context.CancelFunc
	cancelBrowse context.CancelFunc
}

// NewChromeSession prepares a session without launching Chrome
func NewChromeSession(opts Options, log logger.Logger) *ChromeSession {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	return &ChromeSession{opts: opts, logger: log}
}

func (s *ChromeSession) allocatorOptions() []chromedp.ExecAllocatorOption {
	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	execOpts = append(execOpts,
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(s.opts.UserAgent),
	)
	if s.opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(s.opts.ExecPath))
	}
	return execOpts
}

// start launches Chrome once. The browser lives on a background context so
// that a cancelled capture never tears down the whole session.
func (s *ChromeSession) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	browserCtx, cancelBrowse := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowse()
		cancelAlloc()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	s.browserCtx = browserCtx
	s.cancelAlloc = cancelAlloc
	s.cancelBrowse = cancelBrowse
	s.started = true
	logger.LogComponentStart("browser", map[string]interface{}{
		"headless": s.opts.Headless,
	})
	return nil
}

// Close shuts the browser down. It is safe to call more than once and on a
// session that never started.
func (s *ChromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.started {
		s.cancelBrowse()
		s.cancelAlloc()
		logger.LogComponentStop("browser", "closed")
	}
	return nil
}

// Capture navigates a new tab to url, optionally strips iframes and clicks
// the first matching selector, and reports the final URL, the DOM and the
// requests the page issued.
func (s *ChromeSession) Capture(ctx context.Context, url string, opts CaptureOptions) (*Capture, error) {
	if err := s.start(); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = s.opts.Timeout
	}
	if opts.Settle <= 0 {
		opts.Settle = s.opts.Settle
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	// tie the tab to the caller's lifetime
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	rec := newRecorder(opts.Keep)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok && e.Request != nil {
			rec.add(e.Request.URL)
		}
	})

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, opts.Timeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(url))
	cancelNav()
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.WarnWithFields("page load timeout, continuing", logger.Fields{"url": url})
	default:
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	out := &Capture{}
	actions := []chromedp.Action{chromedp.Sleep(opts.Settle)}
	if opts.WaitSelector != "" {
		waitCtx, cancelWait := context.WithTimeout(tabCtx, opts.Timeout)
		if err := chromedp.Run(waitCtx, chromedp.WaitReady(opts.WaitSelector, chromedp.ByQuery)); err != nil {
			s.logger.DebugWithFields("wait selector not found", logger.Fields{"url": url, "selector": opts.WaitSelector})
		}
		cancelWait()
	}
	if opts.RemoveIframes {
		actions = append(actions,
			chromedp.Evaluate(`document.querySelectorAll('iframe').forEach(f => f.remove())`, nil),
			chromedp.Sleep(500*time.Millisecond),
		)
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("page settle failed: %w", err)
	}

	for _, sel := range opts.ClickSelectors {
		var clicked bool
		if err := chromedp.Run(tabCtx, chromedp.Evaluate(clickScript(sel), &clicked)); err != nil {
			s.logger.DebugWithFields("click failed", logger.Fields{"selector": sel, "error": err.Error()})
			continue
		}
		if clicked {
			out.Clicked = sel
			s.logger.DebugWithFields("clicked element", logger.Fields{"url": url, "selector": sel})
			if err := chromedp.Run(tabCtx, chromedp.Sleep(opts.Settle+time.Second)); err != nil {
				return nil, err
			}
			break
		}
	}

	if err := chromedp.Run(tabCtx,
		chromedp.Location(&out.FinalURL),
		chromedp.OuterHTML("html", &out.HTML, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	out.Requests = rec.list()

	s.logger.DebugWithFields("capture complete", logger.Fields{
		"url":       url,
		"final_url": out.FinalURL,
		"requests":  len(out.Requests),
	})
	return out, nil
}

// clickScript clicks the first element matching sel and reports whether
// one existed
func clickScript(sel string) string {
	quoted, _ := json.Marshal(sel)
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; el.click(); return true; })()`, quoted)
}

type recorder struct {
	mu   sync.Mutex
	keep func(string) bool
	seen map[string]bool
	urls []string
}

func newRecorder(keep func(string) bool) *recorder {
	return &recorder{keep: keep, seen: make(map[string]bool)}
}

func (r *recorder) add(u string) {
	if u == "" || strings.HasPrefix(u, "data:") {
		return
	}
	if r.keep != nil && !r.keep(u) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[u] {
		return
	}
	r.seen[u] = true
	r.urls = append(r.urls, u)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}
