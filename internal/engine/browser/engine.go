// Package browser implements the headless-browser engine for sources that
// render their listings with JavaScript. Navigation runs through chromedp
// with the stealth mutations applied before every page load.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/engine/markup"
	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/ratelimit"
	"github.com/grantscope/harvester/internal/stealth"
	"github.com/grantscope/harvester/internal/transport"
)

// Config controls the browser engine.
type Config struct {
	// MaxParallel bounds concurrent tabs; zero means unbounded.
	MaxParallel       int
	NavigationTimeout time.Duration
	// WaitTimeout bounds the wait for a source's WaitSelector. A timeout
	// here is tolerated: extraction proceeds with whatever rendered.
	WaitTimeout time.Duration
	// ScreenshotDir, when set, receives a capture of the page on
	// unrecoverable navigation failures.
	ScreenshotDir string
	Humanize      bool
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	return c
}

// Engine drives headless Chrome sessions.
type Engine struct {
	cfg         Config
	limiter     chan struct{}
	limits      *ratelimit.Registry
	identity    *transport.Identity
	stealth     *stealth.Browser
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
	now         func() time.Time
}

// New builds a browser engine backed by one shared Chrome allocator. client
// may be nil; when set its identity rotation seeds each tab's persona.
func New(cfg Config, client *transport.Client, limits *ratelimit.Registry, logger *zap.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	identity := transport.NewIdentity(nil)
	if client != nil {
		identity = client.Identity()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Engine{
		cfg:         cfg,
		limiter:     limiter,
		limits:      limits,
		identity:    identity,
		stealth:     stealth.New(logger),
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Close cancels the allocator context, tearing down the browser.
func (e *Engine) Close() {
	e.allocCancel()
}

// Kind implements harvest.Engine.
func (e *Engine) Kind() harvest.EngineKind { return harvest.EngineBrowser }

// Scrape renders source.URL in a fresh tab and extracts one record per
// container match. A rate-limit page triggers one backed-off reload before
// the source is given up on.
func (e *Engine) Scrape(ctx context.Context, source harvest.SourceConfig) ([]harvest.RawGrantData, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if e.limits != nil && source.RateLimit.RequestsPerMinute > 0 {
		limiter := e.limits.GetWith(source.ID, ratelimit.Config{
			RequestsPerMinute: source.RateLimit.RequestsPerMinute,
			Burst:             source.RateLimit.RequestsPerMinute,
		})
		if err := limiter.Wait(ctx); err != nil {
			return nil, harvest.NewSourceError(source, err)
		}
	}
	if err := e.acquire(ctx); err != nil {
		return nil, harvest.NewSourceError(source, err)
	}
	defer e.release()

	taskCtx, taskCancel := chromedp.NewContext(e.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, e.cfg.NavigationTimeout)
	defer cancel()

	html, err := e.render(taskCtx, source)
	if err != nil {
		e.screenshot(taskCtx, source)
		return nil, harvest.NewSourceError(source, err)
	}

	records, err := markup.Extract(source, []byte(html), e.now(), e.logger)
	if err != nil {
		return nil, err
	}
	e.logger.Info("browser extraction complete",
		zap.String("source", source.ID), zap.Int("records", len(records)))
	return records, nil
}

// render navigates, verifies the page is real content, and returns the
// rendered DOM.
func (e *Engine) render(ctx context.Context, source harvest.SourceConfig) (string, error) {
	persona := stealth.RandomPersona(e.identity.NextUserAgent())

	if len(source.BlockResources) > 0 {
		e.blockResources(ctx, source.BlockResources)
	}

	setup := chromedp.Tasks{e.networkSetup(source)}
	if len(source.BlockResources) > 0 {
		setup = append(setup, fetch.Enable())
	}
	setup = append(setup, e.stealth.Apply(persona))

	if err := chromedp.Run(ctx, setup, chromedp.Navigate(source.URL)); err != nil {
		return "", fmt.Errorf("navigate: %w: %w", err, harvest.ErrTransientNetwork)
	}
	if err := e.settle(ctx, source); err != nil {
		return "", err
	}

	ok, err := e.stealth.CheckNotBlocked(ctx)
	if err != nil {
		return "", fmt.Errorf("bot check: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("page blocked by anti-bot challenge: %w", harvest.ErrPermanentHTTP)
	}
	if cleared, err := e.stealth.WaitForChallenge(ctx, e.cfg.WaitTimeout); err != nil {
		return "", fmt.Errorf("challenge wait: %w", err)
	} else if !cleared {
		return "", fmt.Errorf("challenge widget never resolved: %w", harvest.ErrPermanentHTTP)
	}

	limited, err := e.stealth.CheckRateLimited(ctx)
	if err != nil {
		return "", fmt.Errorf("rate limit check: %w", err)
	}
	if limited {
		// CheckRateLimited already slept the backoff; one reload attempt.
		e.logger.Info("reloading after rate-limit backoff", zap.String("source", source.ID))
		if err := chromedp.Run(ctx, chromedp.Reload()); err != nil {
			return "", fmt.Errorf("reload: %w: %w", err, harvest.ErrTransientNetwork)
		}
		if err := e.settle(ctx, source); err != nil {
			return "", err
		}
		if limited, err = e.stealth.CheckRateLimited(ctx); err != nil {
			return "", err
		} else if limited {
			return "", fmt.Errorf("source still rate limited after backoff: %w", harvest.ErrTransientHTTP)
		}
	}

	if e.cfg.Humanize {
		if err := chromedp.Run(ctx, e.stealth.Humanize(stealth.DefaultHumanize)); err != nil {
			e.logger.Debug("humanize actions failed", zap.Error(err))
		}
	}

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read dom: %w", err)
	}
	return html, nil
}

// settle waits for the document body and then, when configured, for the
// source's wait selector. A selector timeout is logged and tolerated.
func (e *Engine) settle(ctx context.Context, source harvest.SourceConfig) error {
	if err := chromedp.Run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for body: %w: %w", err, harvest.ErrTransientNetwork)
	}
	if source.WaitSelector == "" {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.WaitTimeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(source.WaitSelector, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wait for selector: %w", ctx.Err())
		}
		e.logger.Warn("wait selector never appeared, extracting anyway",
			zap.String("source", source.ID),
			zap.String("selector", source.WaitSelector))
	}
	return nil
}

func (e *Engine) networkSetup(source harvest.SourceConfig) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		headers := network.Headers{}
		for k, v := range e.identity.SecondaryHeaders() {
			headers[k] = v
		}
		for k, v := range source.Headers {
			headers[k] = v
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// blockResources fails every paused request whose resource type is on the
// source's block list and continues the rest.
func (e *Engine) blockResources(ctx context.Context, types []string) {
	blocked := make(map[network.ResourceType]bool, len(types))
	for _, t := range types {
		blocked[network.ResourceType(t)] = true
	}
	chromedp.ListenTarget(ctx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(ctx)
			exec := cdp.WithExecutor(ctx, c.Target)
			if blocked[paused.ResourceType] {
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(exec)
				return
			}
			_ = fetch.ContinueRequest(paused.RequestID).Do(exec)
		}()
	})
}

// screenshot captures the failed page for later triage. Best effort.
func (e *Engine) screenshot(ctx context.Context, source harvest.SourceConfig) {
	if e.cfg.ScreenshotDir == "" || ctx.Err() != nil {
		return
	}
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		e.logger.Debug("failure screenshot not captured", zap.Error(err))
		return
	}
	name := fmt.Sprintf("%s-%d.png", source.ID, e.now().Unix())
	path := filepath.Join(e.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		e.logger.Warn("write failure screenshot", zap.Error(err))
		return
	}
	e.logger.Info("failure screenshot saved",
		zap.String("source", source.ID), zap.String("path", path))
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	select {
	case e.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (e *Engine) release() {
	if e.limiter == nil {
		return
	}
	select {
	case <-e.limiter:
	default:
	}
}
