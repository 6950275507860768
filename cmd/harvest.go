package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/adapter"
	"github.com/grantscope/harvester/internal/config"
	apiengine "github.com/grantscope/harvester/internal/engine/api"
	"github.com/grantscope/harvester/internal/engine/browser"
	"github.com/grantscope/harvester/internal/engine/pdf"
	"github.com/grantscope/harvester/internal/engine/static"
	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/logging"
	"github.com/grantscope/harvester/internal/proxy"
	"github.com/grantscope/harvester/internal/ratelimit"
	"github.com/grantscope/harvester/internal/retry"
	"github.com/grantscope/harvester/internal/server"
	"github.com/grantscope/harvester/internal/session"
	"github.com/grantscope/harvester/internal/sink"
	"github.com/grantscope/harvester/internal/transport"
)

var serveAfterRun bool

func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvests every configured source once",
		Long: `Runs one harvest pass over the sources in the configuration file,
storing normalized records in the configured sink. Source failures are
isolated: one site going down never aborts the rest of the run.`,
		RunE: runHarvestCommand,
	}
	cmd.Flags().BoolVar(&serveAfterRun, "serve", false,
		"keep the ops endpoint up after the run until interrupted")
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := session.New(session.Config{
		RateLimitDefaults: ratelimit.Config{RequestsPerMinute: cfg.Harvest.RequestsPerMinute},
		Breaker: retry.BreakerConfig{
			FailureThreshold: cfg.Harvest.BreakerThreshold,
			ResetTimeout:     cfg.Harvest.BreakerReset,
		},
	}, logger)
	defer sess.Close()

	proxies, err := setupProxies(cfg, sess)
	if err != nil {
		return fmt.Errorf("proxy pool init: %w", err)
	}

	client := transport.New(transport.Config{
		Timeout:              cfg.Transport.Timeout,
		MaxRetries:           cfg.Transport.MaxRetries,
		BaseDelay:            cfg.Transport.BaseDelay,
		MaxDelay:             cfg.Transport.MaxDelay,
		DelayBetweenRequests: cfg.Transport.DelayBetweenRequests,
		UserAgents:           cfg.Transport.UserAgents,
		OnRateLimitWait:      sess.Metrics().ObserveRateLimitDelay,
	}, nil, proxies, logger.Named("transport"))

	engines, closeEngines, err := buildEngines(cfg, client, proxies, sess, logger)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	defer closeEngines()

	adapters, err := buildAdapters(cfg, engines, logger)
	if err != nil {
		return err
	}

	out, err := buildSink(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("sink init: %w", err)
	}
	defer out.Close()

	ops := server.New(sess.Metrics(), logger.Named("ops"))
	if cfg.Server.Enabled {
		go func() {
			if serveErr := ops.Run(ctx, cfg.Server.Port); serveErr != nil {
				logger.Error("ops server failed", zap.Error(serveErr))
			}
		}()
	}

	runner := session.NewRunner(sess, out, cfg.Harvest.Concurrency)
	report, err := runner.Run(ctx, adapters)
	ops.SetReport(report)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("harvest run: %w", err)
	}

	logger.Info("run summary",
		zap.String("run_id", report.RunID),
		zap.Int("sources", len(report.Results)),
		zap.Int("failed_sources", report.Failed()),
		zap.Int("records", report.TotalRecords))

	if serveAfterRun && cfg.Server.Enabled && ctx.Err() == nil {
		logger.Info("run complete, serving ops endpoint until interrupted",
			zap.Int("port", cfg.Server.Port))
		<-ctx.Done()
	}
	return nil
}

func setupProxies(cfg config.Config, sess *session.Session) (*proxy.Manager, error) {
	if len(cfg.Proxy.URLs) == 0 {
		return nil, nil
	}
	m, err := sess.Proxies().Add("default", proxy.Config{
		Endpoints:     cfg.Proxy.URLs,
		Strategy:      proxyStrategy(cfg.Proxy.Strategy),
		ProbeURL:      cfg.Proxy.HealthCheckURL,
		ProbeInterval: cfg.Proxy.HealthCheckInterval,
		MaxErrorCount: cfg.Proxy.MaxErrorCount,
		// Keep the gauge current as probes and request failures flip
		// proxies in and out of rotation.
		OnHealthChange: sess.Metrics().SetHealthyProxies,
	})
	if err != nil {
		return nil, err
	}
	sess.Metrics().SetHealthyProxies(m.HealthyCount())
	return m, nil
}

func proxyStrategy(name string) proxy.Strategy {
	switch name {
	case "random":
		return proxy.Random
	case "least_used":
		return proxy.LeastUsed
	case "fastest":
		return proxy.Fastest
	default:
		return proxy.RoundRobin
	}
}

// buildEngines constructs one engine per kind the configured sources need.
// The returned close func releases the browser allocator when one was built.
func buildEngines(
	cfg config.Config,
	client *transport.Client,
	proxies *proxy.Manager,
	sess *session.Session,
	logger *zap.Logger,
) (map[harvest.EngineKind]harvest.Engine, func(), error) {
	needed := make(map[harvest.EngineKind]bool, len(cfg.Sources))
	for _, src := range cfg.Sources {
		needed[harvest.EngineKind(src.Engine)] = true
	}

	engines := make(map[harvest.EngineKind]harvest.Engine, len(needed))
	closeFn := func() {}

	if needed[harvest.EngineStatic] {
		engines[harvest.EngineStatic] = static.New(static.Config{
			Timeout:    cfg.Transport.Timeout,
			MaxRetries: cfg.Transport.MaxRetries,
			BaseDelay:  cfg.Transport.BaseDelay,
			MaxDelay:   cfg.Transport.MaxDelay,
		}, client, sess.Limits(), proxies, logger.Named("static"))
	}
	if needed[harvest.EngineBrowser] {
		b, err := browser.New(browser.Config{
			MaxParallel:       cfg.Browser.MaxParallel,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			WaitTimeout:       cfg.Browser.WaitTimeout,
			ScreenshotDir:     cfg.Browser.ScreenshotDir,
			Humanize:          cfg.Browser.Humanize,
		}, client, sess.Limits(), logger.Named("browser"))
		if err != nil {
			return nil, nil, err
		}
		engines[harvest.EngineBrowser] = b
		closeFn = b.Close
	}
	if needed[harvest.EngineAPI] {
		a, err := apiengine.New(client, sess.Limits(), logger.Named("api"))
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		engines[harvest.EngineAPI] = a
	}
	if needed[harvest.EnginePDF] {
		p, err := pdf.New(client, sess.Limits(), logger.Named("pdf"))
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		engines[harvest.EnginePDF] = p
	}
	return engines, closeFn, nil
}

func buildAdapters(
	cfg config.Config,
	engines map[harvest.EngineKind]harvest.Engine,
	logger *zap.Logger,
) ([]session.Harvester, error) {
	adapters := make([]session.Harvester, 0, len(cfg.Sources))
	for _, fileSrc := range cfg.Sources {
		src, err := fileSrc.ToSource()
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", fileSrc.ID, err)
		}
		engine, ok := engines[src.Engine]
		if !ok {
			return nil, fmt.Errorf("source %s: no engine built for %q", src.ID, src.Engine)
		}
		a, err := adapter.New(src, []harvest.Engine{engine}, logger.Named("adapter"))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", fileSrc.ID, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

func buildSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (sink.RecordSink, error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database DSN configured, harvested records stay in memory")
		return sink.NewMemory(), nil
	}
	pg, err := sink.NewPostgres(ctx, sink.PostgresConfig{
		DSN:   cfg.Database.DSN,
		Table: cfg.Database.Table,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("postgres sink initialized", zap.String("table", cfg.Database.Table))
	return pg, nil
}
