package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/ratelimit"
)

// DefaultUserAgent is sent when no override is configured
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Headers are per-request header overrides
type Headers map[string]string

// Client is the HTTP client shared by every stage of a run
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	pacer      ratelimit.Limiter
	apiKeys    map[string]string
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithPacer paces every request through l
func WithPacer(l ratelimit.Limiter) Option {
	return func(c *Client) { c.pacer = l }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTransport replaces the underlying round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// WithJar installs a cookie jar
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) { c.httpClient.Jar = jar }
}

// WithUserAgent overrides the default User-Agent
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.headers["User-Agent"] = ua
		}
	}
}

// WithAPIKey sends key as Basic auth (key with an empty password) to every
// host ending in hostSuffix
func WithAPIKey(hostSuffix, key string) Option {
	return func(c *Client) {
		if key != "" {
			c.apiKeys[hostSuffix] = key
		}
	}
}

// NewClient creates a client with browser-like default headers
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":      DefaultUserAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
			"DNT":             "1",
		},
		pacer:   ratelimit.Unlimited{},
		apiKeys: make(map[string]string),
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHeader sets a default header for every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Jar returns the installed cookie jar, if any
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// Do sends one paced request. The caller owns the response body. Only
// transport failures are returned as errors; status handling is left to
// the caller.
func (c *Client) Do(ctx context.Context, method, rawURL string, h Headers) (*http.Response, error) {
	if err := c.pacer.Wait(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePermanent, rawURL, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, value := range h {
		req.Header.Set(key, value)
	}
	if key := c.apiKeyFor(req.URL.Hostname()); key != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(key+":")))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", logger.Fields{
			"method":   method,
			"url":      rawURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeTransient, rawURL, err, "network error")
	}

	c.logger.DebugWithFields("HTTP request completed", logger.Fields{
		"method":   method,
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		delay := c.pacer.Penalize(rawURL)
		logger.LogRateLimit(rawURL, delay.Milliseconds())
	case resp.StatusCode < 400:
		c.pacer.Relax(rawURL)
	}
	return resp, nil
}

func (c *Client) apiKeyFor(host string) string {
	for suffix, key := range c.apiKeys {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return key
		}
	}
	return ""
}

// Page is a fetched HTML document
type Page struct {
	URL      string
	FinalURL string
	Status   int
	Body     string
}

// GetHTML fetches a document and fails on any non-success status
func (c *Client) GetHTML(ctx context.Context, rawURL string, h Headers) (*Page, error) {
	resp, err := c.Do(ctx, http.MethodGet, rawURL, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeTransient, rawURL, err, "failed to read response body")
	}
	page := &Page{
		URL:      rawURL,
		FinalURL: resp.Request.URL.String(),
		Status:   resp.StatusCode,
		Body:     string(body),
	}
	if err := CheckStatus(resp); err != nil {
		return page, err
	}
	return page, nil
}

// FetchHTML returns only the body of a document
func (c *Client) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	page, err := c.GetHTML(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	return page.Body, nil
}

// GetJSON fetches rawURL and decodes the body into target
func (c *Client) GetJSON(ctx context.Context, rawURL string, h Headers, target interface{}) error {
	resp, err := c.Do(ctx, http.MethodGet, rawURL, h)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeTransient, rawURL, err, "failed to read response body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", logger.Fields{
			"url":          rawURL,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errs.Wrap(errs.ErrorTypeParsing, rawURL, err, "failed to parse JSON")
	}
	return nil
}

// Meta is what a HEAD request reveals about a resource
type Meta struct {
	Status      int
	ContentType string
	// ContentLength is -1 when the server did not declare it
	ContentLength int64
}

// Head issues a HEAD request. Non-success statuses are reported in Meta,
// not as errors.
func (c *Client) Head(ctx context.Context, rawURL string, h Headers) (*Meta, error) {
	resp, err := c.Do(ctx, http.MethodHead, rawURL, h)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return &Meta{
		Status:        resp.StatusCode,
		ContentType:   strings.ToLower(resp.Header.Get("Content-Type")),
		ContentLength: resp.ContentLength,
	}, nil
}

// GetPrefix fetches at most n leading bytes of a resource with a ranged GET
func (c *Client) GetPrefix(ctx context.Context, rawURL string, h Headers, n int64) ([]byte, error) {
	merged := Headers{"Range": fmt.Sprintf("bytes=0-%d", n-1)}
	for k, v := range h {
		merged[k] = v
	}
	resp, err := c.Do(ctx, http.MethodGet, rawURL, merged)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, n))
	if err != nil && len(data) == 0 {
		return nil, errs.Wrap(errs.ErrorTypeTransient, rawURL, err, "failed to read prefix")
	}
	return data, nil
}

// Open starts a streaming GET. On success the caller must close the body.
func (c *Client) Open(ctx context.Context, rawURL string, h Headers) (*http.Response, error) {
	resp, err := c.Do(ctx, http.MethodGet, rawURL, h)
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// CheckStatus maps a non-success status onto a classified error
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	u := ""
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL.String()
	}
	return errs.FromStatus(resp.StatusCode, u)
}

// Origin returns scheme://host of rawURL
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
