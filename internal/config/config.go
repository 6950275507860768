// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every service knob loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sources   []SourceConfig  `mapstructure:"sources"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the ops HTTP endpoint.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TransportConfig controls the shared HTTP client behavior.
type TransportConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	BaseDelay            time.Duration `mapstructure:"base_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	DelayBetweenRequests time.Duration `mapstructure:"delay_between_requests"`
	UserAgents           []string      `mapstructure:"user_agents"`
}

// BrowserConfig controls the headless engine.
type BrowserConfig struct {
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir"`
	Humanize          bool          `mapstructure:"humanize"`
}

// ProxyConfig lists the rotation pool.
type ProxyConfig struct {
	URLs                []string      `mapstructure:"urls"`
	Strategy            string        `mapstructure:"strategy"`
	HealthCheckURL      string        `mapstructure:"health_check_url"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	MaxErrorCount       int           `mapstructure:"max_error_count"`
}

// HarvestConfig controls the run as a whole.
type HarvestConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	BreakerThreshold  int `mapstructure:"breaker_threshold"`
	// BreakerReset is how long an open circuit stays closed to callers.
	BreakerReset time.Duration `mapstructure:"breaker_reset"`
}

// DatabaseConfig controls the Postgres sink. An empty DSN selects the
// in-memory sink.
type DatabaseConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// SourceConfig is one harvestable source as written in the config file; the
// harvest command maps it onto the core source descriptor.
type SourceConfig struct {
	ID             string            `mapstructure:"id"`
	Name           string            `mapstructure:"name"`
	URL            string            `mapstructure:"url"`
	Type           string            `mapstructure:"type"`
	Engine         string            `mapstructure:"engine"`
	Selectors      map[string]string `mapstructure:"selectors"`
	Headers        map[string]string `mapstructure:"headers"`
	WaitSelector   string            `mapstructure:"wait_selector"`
	BlockResources []string          `mapstructure:"block_resources"`

	RequestsPerMinute    int           `mapstructure:"requests_per_minute"`
	DelayBetweenRequests time.Duration `mapstructure:"delay_between_requests"`
	RespectRobotsTxt     bool          `mapstructure:"respect_robots_txt"`

	Auth       map[string]string `mapstructure:"auth"`
	Pagination PaginationConfig  `mapstructure:"pagination"`
}

// PaginationConfig is the file-side pagination block.
type PaginationConfig struct {
	Kind        string `mapstructure:"kind"`
	PageSize    int    `mapstructure:"page_size"`
	MaxPages    int    `mapstructure:"max_pages"`
	CursorField string `mapstructure:"cursor_field"`
}

// Init wires Viper's search paths, defaults, and environment binding. Call
// once at startup, before Load.
func Init(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("harvester")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/harvester/")
		viper.AddConfigPath("$HOME/.harvester")
	}

	viper.SetDefault("logging.development", false)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.port", 9090)
	viper.SetDefault("transport.timeout", "30s")
	viper.SetDefault("transport.max_retries", 3)
	viper.SetDefault("transport.base_delay", "500ms")
	viper.SetDefault("transport.max_delay", "15s")
	viper.SetDefault("transport.delay_between_requests", "1s")
	viper.SetDefault("browser.max_parallel", 2)
	viper.SetDefault("browser.navigation_timeout", "45s")
	viper.SetDefault("browser.wait_timeout", "10s")
	viper.SetDefault("proxy.strategy", "round_robin")
	viper.SetDefault("proxy.health_check_interval", "5m")
	viper.SetDefault("proxy.max_error_count", 3)
	viper.SetDefault("harvest.concurrency", 4)
	viper.SetDefault("harvest.requests_per_minute", 30)
	viper.SetDefault("harvest.breaker_threshold", 5)
	viper.SetDefault("harvest.breaker_reset", "1m")
	viper.SetDefault("database.table", "grant_records")

	viper.SetEnvPrefix("HARVESTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// Load unmarshals and validates the effective configuration.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the harvester cannot run with.
func (c Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be positive")
	}
	if c.Harvest.RequestsPerMinute < 0 {
		return fmt.Errorf("harvest.requests_per_minute must be >= 0")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = struct{}{}
		if src.URL == "" {
			return fmt.Errorf("source %s: url is required", src.ID)
		}
		switch src.Engine {
		case "static", "browser", "api", "pdf":
		default:
			return fmt.Errorf("source %s: unknown engine %q", src.ID, src.Engine)
		}
	}
	return nil
}
