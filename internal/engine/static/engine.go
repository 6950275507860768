// Package static implements the markup-fetch engine: a colly collector pulls
// the page and goquery extracts one candidate record per configured
// container selector.
package static

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/proxy"
	"github.com/grantscope/harvester/internal/ratelimit"
	"github.com/grantscope/harvester/internal/retry"
	"github.com/grantscope/harvester/internal/transport"
)

// Config controls the static engine.
type Config struct {
	Timeout         time.Duration
	FollowRedirects bool
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	UserAgent       string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
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
	return c
}

// Engine fetches static HTML sources.
type Engine struct {
	cfg      Config
	limits   *ratelimit.Registry
	proxies  *proxy.Manager
	identity *transport.Identity
	robots   *robotsGate
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a static engine. proxies may be nil; client backs the robots
// gate and shares its identity rotation with the collector.
func New(cfg Config, client *transport.Client, limits *ratelimit.Registry, proxies *proxy.Manager, logger *zap.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	identity := transport.NewIdentity(nil)
	if client != nil {
		identity = client.Identity()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = identity.NextUserAgent()
	}
	return &Engine{
		cfg:      cfg,
		limits:   limits,
		proxies:  proxies,
		identity: identity,
		robots:   newRobotsGate(client, ua, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Kind implements harvest.Engine.
func (e *Engine) Kind() harvest.EngineKind { return harvest.EngineStatic }

// Scrape fetches source.URL and extracts one record per container match.
// Containers missing a usable title are dropped with a warning; a parse
// failure in one container never aborts the rest.
func (e *Engine) Scrape(ctx context.Context, source harvest.SourceConfig) ([]harvest.RawGrantData, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if source.RateLimit.RespectRobotsTxt && e.robots.http != nil {
		if !e.robots.allowed(ctx, source.URL) {
			return nil, harvest.NewSourceError(source, fmt.Errorf("blocked by robots.txt"))
		}
	}

	page, err := e.fetch(ctx, source)
	if err != nil {
		return nil, harvest.NewSourceError(source, err)
	}
	return e.extract(source, page)
}

// fetchedPage is the raw outcome of one collector visit.
type fetchedPage struct {
	body        []byte
	statusCode  int
	contentType string
}

func (e *Engine) fetch(ctx context.Context, source harvest.SourceConfig) (*fetchedPage, error) {
	op := func(ctx context.Context) (*fetchedPage, error) {
		return e.visit(ctx, source)
	}
	page, _, err := retry.Do(ctx, op, retry.Options{
		MaxRetries: e.cfg.MaxRetries,
		BaseDelay:  e.cfg.BaseDelay,
		MaxDelay:   e.cfg.MaxDelay,
		Jitter:     true,
		Condition:  retry.Transient,
		OnRetry: func(err error, attempt int) {
			e.logger.Warn("static fetch retrying",
				zap.String("source", source.ID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		},
	})
	return page, err
}

// visit runs one collector pass, wiring the shared rate limiter, identity
// rotation, and proxy rotation into colly.
func (e *Engine) visit(ctx context.Context, source harvest.SourceConfig) (*fetchedPage, error) {
	if e.limits != nil {
		limiter := e.limits.GetWith(source.ID, ratelimit.Config{
			RequestsPerMinute: source.RateLimit.RequestsPerMinute,
			Burst:             source.RateLimit.RequestsPerMinute,
		})
		if source.RateLimit.RequestsPerMinute > 0 {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
	}
	if d := source.RateLimit.DelayBetweenRequests; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	// colly v2.1.0's Async option ignores its argument and always enables
	// async mode; assign the field directly to keep the collector synchronous.
	collector := colly.NewCollector()
	collector.Async = false
	collector.UserAgent = e.identity.NextUserAgent()
	collector.IgnoreRobotsTxt = true // policy enforced by the robots gate
	collector.SetRequestTimeout(e.cfg.Timeout)
	if !e.cfg.FollowRedirects {
		collector.SetRedirectHandler(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})
	}

	var assigned *proxy.Proxy
	if e.proxies != nil {
		if assigned = e.proxies.Next(); assigned != nil {
			if err := collector.SetProxy(assigned.URL.String()); err != nil {
				return nil, fmt.Errorf("set proxy: %w", err)
			}
		}
	}

	secondary := e.identity.SecondaryHeaders()
	collector.OnRequest(func(r *colly.Request) {
		for k, v := range secondary {
			r.Headers.Set(k, v)
		}
		for k, v := range source.Headers {
			r.Headers.Set(k, v)
		}
	})

	var (
		page     fetchedPage
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		page.body = append([]byte(nil), r.Body...)
		page.statusCode = r.StatusCode
		page.contentType = r.Headers.Get("Content-Type")
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			page.statusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() { done <- collector.Visit(source.URL) }()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			if assigned != nil {
				e.proxies.MarkErrored(assigned)
			}
			if serr := transport.ClassifyStatus(page.statusCode); page.statusCode >= 400 && serr != nil {
				return nil, serr
			}
			return nil, fmt.Errorf("%v: %w", err, harvest.ErrTransientNetwork)
		}
	}
	if assigned != nil {
		e.proxies.MarkUsed(assigned)
	}

	if page.statusCode != http.StatusOK {
		if err := transport.ClassifyStatus(page.statusCode); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unexpected status %d: %w", page.statusCode, harvest.ErrPermanentHTTP)
	}
	if ct := page.contentType; ct != "" && !isMarkup(ct) {
		return nil, fmt.Errorf("response is %q, not textual markup: %w", ct, harvest.ErrPermanentHTTP)
	}
	return &page, nil
}

func isMarkup(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml+xml") ||
		strings.Contains(ct, "text/plain") ||
		strings.Contains(ct, "application/xml")
}
