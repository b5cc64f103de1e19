// Package ratelimit paces outbound HTTP requests.
//
// Every page fetch, probe and download goes through a Limiter before it is
// sent. The Pacer keeps one slot per host: a fixed delay plus jitter between
// requests, and an optional golang.org/x/time/rate token bucket on top.
//
//	p := ratelimit.NewPacer(ratelimit.Config{
//	    Delay:    500 * time.Millisecond,
//	    MaxDelay: 5 * time.Second,
//	})
//	if err := p.Wait(ctx, pageURL); err != nil {
//	    return err
//	}
//
// On HTTP 429 callers invoke Penalize, which doubles the host's delay up to
// MaxDelay; Relax walks it back after a success.
package ratelimit
