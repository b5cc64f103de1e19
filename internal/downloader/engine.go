package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"mediagrab/pkg/config"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/extract"
	"mediagrab/pkg/fetch"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/retry"
	"mediagrab/pkg/storage"
)

// Opener starts a streaming GET
type Opener interface {
	Open(ctx context.Context, rawURL string, h fetch.Headers) (*http.Response, error)
}

// Outcome is the terminal state of a task
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Task is one file to acquire
type Task struct {
	URL     string
	Dest    string
	Headers fetch.Headers
	Kind    extract.Kind
}

// Result reports how a task ended
type Result struct {
	Task    Task
	Outcome Outcome
	// Path is where the file was stored; it differs from Task.Dest under
	// the rename policy
	Path string
	// URL is the source that produced the file
	URL      string
	Bytes    int64
	Retries  int
	Err      error
	Duration time.Duration
}

// Config controls an Engine
type Config struct {
	MaxAttempts int
	Backoff     retry.BackoffStrategy
	ImageFloor  int64
	VideoFloor  int64
	Overwrite   string
	// RejectHTML fails a task whose response is a markup page
	RejectHTML bool
}

// ConfigFrom builds an engine config from the application config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     retry.NewExponentialBackoff(cfg.Retry.BaseDelay, cfg.Retry.MaxDelay),
		ImageFloor:  cfg.Acquire.ImageFloor,
		VideoFloor:  cfg.Acquire.VideoFloor,
		Overwrite:   cfg.Output.Overwrite,
		RejectHTML:  true,
	}
}

// Engine transfers single files with existence skip, retries and
// post-download validation
type Engine struct {
	client   Opener
	cfg      Config
	reserver *Reserver
	logger   logger.Logger
}

// NewEngine creates an engine
func NewEngine(client Opener, cfg Config, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.NewExponentialBackoff(time.Second, 30*time.Second)
	}
	return &Engine{client: client, cfg: cfg, reserver: NewReserver(), logger: log}
}

// Derive returns an engine that shares e's client and path reservations
// but runs with cfg adjusted by fn
func (e *Engine) Derive(fn func(*Config)) *Engine {
	cfg := e.cfg
	fn(&cfg)
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Engine{client: e.client, cfg: cfg, reserver: e.reserver, logger: e.logger}
}

// Acquire runs one task to a terminal outcome. It never leaves a partial
// file under the destination name.
func (e *Engine) Acquire(ctx context.Context, t Task) Result {
	return e.acquire(ctx, []string{t.URL}, t)
}

// AcquireFirst tries urls in order for the same destination and stops at
// the first success
func (e *Engine) AcquireFirst(ctx context.Context, urls []string, t Task) Result {
	if len(urls) == 0 {
		return Result{Task: t, Outcome: OutcomeFailed, Err: errs.New(errs.ErrorTypeExtractionEmpty, t.URL, "no download URL")}
	}
	if t.URL == "" {
		t.URL = urls[0]
	}
	return e.acquire(ctx, urls, t)
}

func (e *Engine) acquire(ctx context.Context, urls []string, t Task) Result {
	start := time.Now()
	res := Result{Task: t, Path: t.Dest}
	if t.Kind == "" {
		t.Kind = extract.KindOf(t.URL)
		res.Task.Kind = t.Kind
	}

	resv, err := e.reserver.Reserve(t.Dest, e.cfg.Overwrite)
	if errors.Is(err, ErrExists) {
		res.Outcome = OutcomeSkipped
		res.Duration = time.Since(start)
		logger.LogAcquire(t.Dest, t.URL, string(t.Kind), string(res.Outcome), nil)
		return res
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = errs.Wrap(errs.ErrorTypePermanent, t.URL, err, "failed to reserve destination")
		res.Duration = time.Since(start)
		return res
	}
	defer resv.Release()
	res.Path = resv.Path

	for i, u := range urls {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		var n int64
		var retries int
		n, retries, err = e.fetchTo(ctx, u, resv.Path, t)
		res.Retries += retries
		if err == nil {
			res.Outcome = OutcomeSuccess
			res.URL = u
			res.Bytes = n
			res.Duration = time.Since(start)
			logger.LogAcquire(resv.Path, u, string(t.Kind), string(res.Outcome), nil)
			return res
		}
		if i < len(urls)-1 {
			e.logger.WarnWithFields("source failed, trying next", logger.Fields{
				"url":       u,
				"error":     err.Error(),
				"remaining": len(urls) - i - 1,
			})
		}
	}

	res.Outcome = OutcomeFailed
	res.Err = err
	res.Duration = time.Since(start)
	logger.LogAcquire(resv.Path, t.URL, string(t.Kind), string(res.Outcome), err)
	return res
}

func (e *Engine) retryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts: e.cfg.MaxAttempts,
		Backoff:     e.cfg.Backoff,
		RetryIf:     retry.DefaultRetryIf,
		Logger:      e.logger,
	}
}

// fetchTo streams u into path through a .part file and validates it
func (e *Engine) fetchTo(ctx context.Context, u, path string, t Task) (int64, int, error) {
	part := path + storage.PartSuffix
	var written int64

	retries, err := retry.Do(ctx, e.retryConfig(), func(ctx context.Context) error {
		n, err := e.attempt(ctx, u, part, t)
		written = n
		return err
	})
	if err != nil {
		os.Remove(part)
		var ex *retry.ExhaustedError
		if errors.As(err, &ex) {
			// exhausted transient failures are demoted to permanent; the last
			// cause stays in the chain
			err = errs.Wrap(errs.ErrorTypePermanent, u, ex.Last,
				fmt.Sprintf("gave up after %d attempts (%s)", ex.Attempts, errs.TypeOf(ex.Last)))
		}
		return 0, retries, err
	}

	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return 0, retries, errs.Wrap(errs.ErrorTypePermanent, u, err, "failed to finalise file")
	}
	return written, retries, nil
}

// attempt performs one transfer into part. Validation failures remove the
// file and are not retried.
func (e *Engine) attempt(ctx context.Context, u, part string, t Task) (int64, error) {
	resp, err := e.client.Open(ctx, u, t.Headers)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if e.cfg.RejectHTML && strings.Contains(ct, "text/html") {
		return 0, errs.New(errs.ErrorTypeContentMismatch, u, "received an HTML page instead of media")
	}

	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypePermanent, u, err, "failed to create file")
	}
	n, copyErr := io.Copy(f, resp.Body)
	syncErr := f.Sync()
	closeErr := f.Close()

	if copyErr != nil {
		os.Remove(part)
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errs.Wrap(errs.ErrorTypeTransient, u, copyErr, "transfer interrupted")
	}
	if syncErr != nil || closeErr != nil {
		os.Remove(part)
		return 0, errs.Wrap(errs.ErrorTypePermanent, u, errors.Join(syncErr, closeErr), "failed to flush file")
	}

	floor := e.cfg.ImageFloor
	if t.Kind == extract.KindVideo {
		floor = e.cfg.VideoFloor
	}
	if n == 0 || n < floor {
		os.Remove(part)
		return 0, errs.New(errs.ErrorTypeValidation, u, fmt.Sprintf("file too small (%d bytes < %d)", n, floor))
	}
	return n, nil
}
