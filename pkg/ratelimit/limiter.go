package ratelimit

import (
	"context"
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests per host
type Limiter interface {
	// Wait blocks until a request to rawURL may be sent
	Wait(ctx context.Context, rawURL string) error
	// Penalize widens the delay for rawURL's host after a 429
	Penalize(rawURL string) time.Duration
	// Relax narrows a widened delay after a successful request
	Relax(rawURL string)
}

// Config controls a Pacer
type Config struct {
	// Delay is the minimum gap between two requests to the same host
	Delay time.Duration
	// MaxDelay caps the gap after repeated penalties
	MaxDelay time.Duration
	// Jitter adds a random extra gap in [0, Jitter)
	Jitter time.Duration
	// RequestsPerMinute bounds throughput per host; 0 disables it
	RequestsPerMinute int
}

// Pacer enforces a jittered inter-request delay and a per-host token
// bucket. Delays double on Penalize up to MaxDelay and halve on Relax back
// to the configured base.
type Pacer struct {
	cfg    Config
	mu     sync.Mutex
	hosts  map[string]*hostState
	rules  []hostRule
	jitter func() time.Duration
}

type hostRule struct {
	re    *regexp.Regexp
	delay time.Duration
}

type hostState struct {
	limiter *rate.Limiter
	delay   time.Duration
	base    time.Duration
	next    time.Time
}

// NewPacer creates a Pacer
func NewPacer(cfg Config) *Pacer {
	if cfg.MaxDelay < cfg.Delay {
		cfg.MaxDelay = cfg.Delay
	}
	p := &Pacer{cfg: cfg, hosts: make(map[string]*hostState)}
	p.jitter = func() time.Duration {
		if cfg.Jitter <= 0 {
			return 0
		}
		return time.Duration(rand.Int63n(int64(cfg.Jitter)))
	}
	return p
}

// SetHostDelay overrides the base delay for one host
func (p *Pacer) SetHostDelay(host string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state(host)
	s.base = d
	s.delay = d
}

// AddHostRule sets the base delay for every host matching re that has not
// been contacted yet
func (p *Pacer) AddHostRule(re *regexp.Regexp, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, hostRule{re: re, delay: d})
}

// Wait blocks until the host's next slot, then takes a token
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)

	p.mu.Lock()
	s := p.state(host)
	now := time.Now()
	start := now
	if s.next.After(now) {
		start = s.next
	}
	s.next = start.Add(s.delay + p.jitter())
	limiter := s.limiter
	p.mu.Unlock()

	if wait := time.Until(start); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

// Penalize doubles the host's delay and returns the new value
func (p *Pacer) Penalize(rawURL string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state(hostOf(rawURL))
	if s.delay <= 0 {
		s.delay = 500 * time.Millisecond
	} else {
		s.delay *= 2
	}
	max := p.cfg.MaxDelay
	if max < s.base {
		max = s.base
	}
	if max > 0 && s.delay > max {
		s.delay = max
	}
	s.next = time.Now().Add(s.delay)
	return s.delay
}

// Relax halves a penalized delay, never going below the host's base
func (p *Pacer) Relax(rawURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state(hostOf(rawURL))
	if s.delay > s.base {
		s.delay /= 2
		if s.delay < s.base {
			s.delay = s.base
		}
	}
}

// Delay returns the current gap for rawURL's host
func (p *Pacer) Delay(rawURL string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state(hostOf(rawURL)).delay
}

func (p *Pacer) state(host string) *hostState {
	s, ok := p.hosts[host]
	if !ok {
		base := p.cfg.Delay
		for _, r := range p.rules {
			if r.re.MatchString(host) {
				base = r.delay
				break
			}
		}
		s = &hostState{delay: base, base: base}
		if p.cfg.RequestsPerMinute > 0 {
			s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.cfg.RequestsPerMinute)), 1)
		}
		p.hosts[host] = s
	}
	return s
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

// Unlimited is a Limiter that never waits
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context, _ string) error { return ctx.Err() }
func (Unlimited) Penalize(string) time.Duration            { return 0 }
func (Unlimited) Relax(string)                             {}
