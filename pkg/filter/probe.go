package filter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"mediagrab/pkg/fetch"
	"mediagrab/pkg/logger"
)

// Prober is the HTTP capability phase 2 needs
type Prober interface {
	Head(ctx context.Context, rawURL string, h fetch.Headers) (*fetch.Meta, error)
	GetPrefix(ctx context.Context, rawURL string, h fetch.Headers, n int64) ([]byte, error)
}

// DefaultTrustedCDNs report unreliable Content-Length, so only their
// dimensions are checked
var DefaultTrustedCDNs = []string{
	"jpg1.su", "jpg2.su", "jpg3.su", "jpg4.su", "jpg5.su",
	"jpg6.su", "jpg7.su", "jpg8.su", "jpg9.su", "jpg10.su",
	"selti-delivery.ru", "ibb.co", "imgbb.com", "i.imgur.com", "i.redd.it",
}

// DefaultPresets are exact thumbnail renditions rejected at any byte size.
// Large squares such as 1024x1024 are deliberately absent since they are
// common full-size uploads; add them through ProbeConfig.Presets if a site
// needs it.
var DefaultPresets = []Dimensions{
	{96, 96}, {48, 48}, {50, 62}, {192, 192},
	{64, 64}, {128, 128}, {32, 32}, {112, 112},
}

// ProbeConfig controls the phase 2 classifier
type ProbeConfig struct {
	MinBytes    int64
	SmallSide   int
	SquareSide  int
	PrefixBytes int64
	Presets     []Dimensions
	TrustedCDNs []string
	// Delay separates consecutive probes in FilterAll
	Delay time.Duration
	// HeadersFor returns extra headers for a probe, e.g. a Referer
	HeadersFor func(rawURL string) fetch.Headers
}

// DefaultProbeConfig returns the standard thresholds
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		MinBytes:    5000,
		SmallSide:   100,
		SquareSide:  150,
		PrefixBytes: 32 << 10,
		Presets:     DefaultPresets,
		TrustedCDNs: DefaultTrustedCDNs,
		Delay:       50 * time.Millisecond,
	}
}

// PropertyProber is the network-backed phase 2 classifier. It leans
// towards keeping a candidate whenever the probe itself is inconclusive.
type PropertyProber struct {
	client Prober
	cfg    ProbeConfig
	logger logger.Logger
}

// NewPropertyProber creates a phase 2 classifier
func NewPropertyProber(client Prober, cfg ProbeConfig, log logger.Logger) *PropertyProber {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.PrefixBytes <= 0 {
		cfg.PrefixBytes = 32 << 10
	}
	return &PropertyProber{client: client, cfg: cfg, logger: log}
}

func (p *PropertyProber) trusted(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, cdn := range p.cfg.TrustedCDNs {
		if strings.Contains(host, cdn) {
			return true
		}
	}
	return false
}

func (p *PropertyProber) headers(rawURL string) fetch.Headers {
	if p.cfg.HeadersFor == nil {
		return nil
	}
	return p.cfg.HeadersFor(rawURL)
}

// Classify probes rawURL and applies the size and dimension rules
func (p *PropertyProber) Classify(ctx context.Context, rawURL string) Verdict {
	h := p.headers(rawURL)
	var size *int64

	meta, err := p.client.Head(ctx, rawURL, h)
	switch {
	case err != nil:
		p.logger.DebugWithFields("head probe failed", logger.Fields{"url": rawURL, "error": err.Error()})
	case p.trusted(rawURL):
		if strings.Contains(meta.ContentType, "text/html") {
			return reject("html page, not media")
		}
	default:
		ct := meta.ContentType
		if ct != "" && !strings.HasPrefix(ct, "image/") && !strings.HasPrefix(ct, "video/") {
			return reject(fmt.Sprintf("not media (content-type %s)", ct))
		}
		if meta.ContentLength >= 0 && meta.Status < 400 {
			n := meta.ContentLength
			size = &n
			if n < p.cfg.MinBytes {
				v := reject(fmt.Sprintf("file too small (%d bytes < %d)", n, p.cfg.MinBytes))
				v.Size = size
				return v
			}
		}
	}

	prefix, err := p.client.GetPrefix(ctx, rawURL, h, p.cfg.PrefixBytes)
	if err != nil {
		v := keep("check failed, assuming valid")
		v.Size = size
		return v
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(prefix))
	if err != nil {
		if size != nil && *size >= p.cfg.MinBytes {
			v := keep("could not check dimensions, size ok")
			v.Size = size
			return v
		}
		v := keep("could not verify, assuming valid")
		v.Size = size
		return v
	}

	dims := Dimensions{Width: cfg.Width, Height: cfg.Height}
	v := p.judge(dims)
	v.Size = size
	v.Dims = &dims
	return v
}

func (p *PropertyProber) judge(d Dimensions) Verdict {
	if d.Width <= p.cfg.SmallSide && d.Height <= p.cfg.SmallSide {
		return reject(fmt.Sprintf("dimensions too small (%s)", d))
	}
	if d.Width == d.Height && d.Width <= p.cfg.SquareSide {
		return reject(fmt.Sprintf("small square image (%s, likely avatar/icon)", d))
	}
	for _, preset := range p.cfg.Presets {
		if preset == d {
			return reject(fmt.Sprintf("known thumbnail size (%s)", d))
		}
	}
	return keep("ok")
}
