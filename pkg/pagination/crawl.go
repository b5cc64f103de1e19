package pagination

import (
	"context"
	"time"

	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/retry"
)

// PageFunc processes one page and returns how many candidates it
// contributed that had not been seen before
type PageFunc func(ctx context.Context, ref PageReference) (added int, err error)

// Crawler walks pages sequentially with a pause between fetches
type Crawler struct {
	// Delay separates two page fetches. Rate limit backoff belongs to the
	// fetch layer's pacer, so the crawler never widens it.
	Delay time.Duration
	// MaxConsecutiveFailures stops the crawl early; 10 when zero
	MaxConsecutiveFailures int
	Logger                 logger.Logger
}

// NewCrawler creates a crawler with the standard pacing
func NewCrawler(delay time.Duration, maxFailures int, log logger.Logger) *Crawler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Crawler{Delay: delay, MaxConsecutiveFailures: maxFailures, Logger: log}
}

// CrawlStats summarises a crawl
type CrawlStats struct {
	Visited   int
	Failed    int
	Added     int
	StopCause string
}

// Stop causes
const (
	StopNone     = ""
	StopFailures = "consecutive_failures"
	StopNoNew    = "no_new_candidates"
	StopCanceled = "canceled"
)

// Crawl calls fn for every page in order. Failures never abort the crawl
// until MaxConsecutiveFailures pages fail in a row. Offset pages stop the
// crawl at the first page that adds nothing new. A 429 is an ordinary page
// failure here; the pacer behind the fetcher has already penalized the host.
func (c *Crawler) Crawl(ctx context.Context, pages []PageReference, fn PageFunc) CrawlStats {
	var st CrawlStats
	maxFail := c.MaxConsecutiveFailures
	if maxFail <= 0 {
		maxFail = 10
	}
	streak := 0

	for i, ref := range pages {
		if i > 0 && c.Delay > 0 {
			if err := retry.Wait(ctx, c.Delay); err != nil {
				st.StopCause = StopCanceled
				return st
			}
		}
		if ctx.Err() != nil {
			st.StopCause = StopCanceled
			return st
		}

		added, err := fn(ctx, ref)
		st.Visited++
		if err != nil {
			st.Failed++
			streak++
			c.Logger.WithFields(logger.Fields{
				"url":  ref.URL,
				"page": ref.Sequence,
				"type": errs.TypeOf(err),
			}).WithError(err).Warn("page failed")

			if streak >= maxFail {
				c.Logger.WarnWithFields("too many consecutive page failures, stopping", logger.Fields{
					"failures": streak,
					"visited":  st.Visited,
				})
				st.StopCause = StopFailures
				return st
			}
			continue
		}

		streak = 0
		st.Added += added
		logger.LogPageProgress(ref.URL, ref.Sequence, len(pages), added)

		if ref.Offset && added == 0 {
			c.Logger.InfoWithFields("page added nothing new, stopping", logger.Fields{"url": ref.URL})
			st.StopCause = StopNoNew
			return st
		}
	}
	return st
}
