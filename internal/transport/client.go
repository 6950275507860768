// Package transport performs HTTP requests for the harvesting engines with
// identity rotation, proxy assignment, rate-limit gating, and retry on
// transient failure.
package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/proxy"
	"github.com/grantscope/harvester/internal/ratelimit"
	"github.com/grantscope/harvester/internal/retry"
)

type proxyKey struct{}

// Config controls a Client.
type Config struct {
	// UserAgents overrides the default rotation list.
	UserAgents []string
	// DelayBetweenRequests is the minimum spacing between requests on this
	// client. Requests block cooperatively until the delay has elapsed.
	DelayBetweenRequests time.Duration
	Timeout              time.Duration
	MaxRetries           int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	FollowRedirects      bool
	MaxBodyBytes         int64
	// OnRateLimitWait, when set, observes how long each request spent
	// waiting for limiter and pacer admission.
	OnRateLimitWait func(url string, waited time.Duration)
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 15 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 * 1024 * 1024
	}
	return c
}

// Options carries per-request overrides.
type Options struct {
	Headers     map[string]string
	Body        []byte
	ContentType string
}

// Response is the transport result handed back to engines.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
	Duration   time.Duration
}

// IsHTML reports whether the response looks like textual markup.
func (r *Response) IsHTML() bool {
	ct := r.Header.Get("Content-Type")
	return ct == "" ||
		containsAny(ct, "text/html", "application/xhtml+xml", "text/plain", "application/xml")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) > 0 && bytes.Contains([]byte(s), []byte(sub)) {
			return true
		}
	}
	return false
}

// Client is the shared HTTP transport for one source. Requests on one client
// are serialized by the limiter and the inter-request delay; concurrency
// comes from running independent clients in parallel.
type Client struct {
	cfg      Config
	http     *http.Client
	identity *Identity
	limiter  *ratelimit.Limiter
	proxies  *proxy.Manager
	pacer    *rate.Limiter
	logger   *zap.Logger

	mu           sync.Mutex
	requestCount int
	lastRequest  time.Time
}

// New builds a Client. limiter and proxies may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, proxies *proxy.Manager, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:      cfg,
		identity: NewIdentity(cfg.UserAgents),
		limiter:  limiter,
		proxies:  proxies,
		logger:   logger,
	}
	if cfg.DelayBetweenRequests > 0 {
		c.pacer = rate.NewLimiter(rate.Every(cfg.DelayBetweenRequests), 1)
	}
	c.http = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newHTTPTransport(),
	}
	if !cfg.FollowRedirects {
		c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

// Get issues a retried GET.
func (c *Client) Get(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, opts)
}

// Post issues a retried POST.
func (c *Client) Post(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, opts)
}

// Put issues a retried PUT.
func (c *Client) Put(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	return c.do(ctx, http.MethodPut, rawURL, opts)
}

// Delete issues a retried DELETE.
func (c *Client) Delete(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	return c.do(ctx, http.MethodDelete, rawURL, opts)
}

// Identity exposes the client's rotation so sibling fetchers (the markup
// collector, the browser engine) share one fingerprint sequence.
func (c *Client) Identity() *Identity {
	return c.identity
}

// RequestCount reports how many requests this client has issued.
func (c *Client) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestCount
}

// LastRequestAt reports when the most recent request started.
func (c *Client) LastRequestAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequest
}

func (c *Client) do(ctx context.Context, method, rawURL string, opts Options) (*Response, error) {
	op := func(ctx context.Context) (*Response, error) {
		return c.once(ctx, method, rawURL, opts)
	}
	resp, _, err := retry.Do(ctx, op, retry.Options{
		MaxRetries: c.cfg.MaxRetries,
		BaseDelay:  c.cfg.BaseDelay,
		MaxDelay:   c.cfg.MaxDelay,
		Jitter:     true,
		Condition:  retry.Transient,
		OnRetry: func(err error, attempt int) {
			c.logger.Warn("transport retrying",
				zap.String("method", method),
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Error(err))
		},
	})
	return resp, err
}

func (c *Client) once(ctx context.Context, method, rawURL string, opts Options) (*Response, error) {
	admitStart := time.Now()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("inter-request delay: %w", err)
		}
	}
	if c.cfg.OnRateLimitWait != nil {
		if waited := time.Since(admitStart); waited > 0 {
			c.cfg.OnRateLimitWait(rawURL, waited)
		}
	}

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	c.identity.Apply(req)

	var assigned *proxy.Proxy
	if c.proxies != nil {
		assigned = c.proxies.Next()
		if assigned != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey{}, assigned.URL))
		}
	}

	c.mu.Lock()
	c.requestCount++
	c.lastRequest = time.Now()
	c.mu.Unlock()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if assigned != nil {
			c.proxies.MarkErrored(assigned)
		}
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		if assigned != nil {
			c.proxies.MarkErrored(assigned)
		}
		return nil, fmt.Errorf("read body from %s: %w", rawURL, classifyNetErr(err))
	}
	if assigned != nil {
		c.proxies.MarkUsed(assigned)
	}

	data, err = decodeBody(resp.Header.Get("Content-Encoding"), data)
	if err != nil {
		return nil, fmt.Errorf("decode body from %s: %w", rawURL, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
		FinalURL:   resp.Request.URL.String(),
		Duration:   time.Since(start),
	}
	if err := ClassifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	return out, nil
}

// decodeBody reverses a Content-Encoding the stdlib did not strip, which
// happens when a caller sets Accept-Encoding explicitly and so opts out of
// net/http's transparent decompression.
func decodeBody(encoding string, data []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return data, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return out, nil
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		out, err := io.ReadAll(fr)
		if err != nil {
			return nil, fmt.Errorf("deflate body: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// ClassifyStatus maps an HTTP status into the harvesting error taxonomy.
// 2xx and 3xx are success; 429/502/503/504 are transient; everything else in
// 4xx/5xx is permanent.
func ClassifyStatus(status int) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusTooManyRequests,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return fmt.Errorf("status %d: %w", status, harvest.ErrTransientHTTP)
	default:
		return fmt.Errorf("status %d: %w", status, harvest.ErrPermanentHTTP)
	}
}

func classifyNetErr(err error) error {
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok || isConnReset(err) || isDNSErr(err) {
		return fmt.Errorf("%v: %w", err, harvest.ErrTransientNetwork)
	}
	return err
}

// newHTTPTransport builds a pooled transport whose proxy is selected per
// request from the rotation, via the request context.
func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
				return u, nil
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
