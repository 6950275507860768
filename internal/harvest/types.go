package harvest

import (
	"fmt"
	"strings"
	"time"
)

// SourceType classifies the organization behind a source.
type SourceType string

// Source type values recorded on every configuration.
const (
	SourceGovernment SourceType = "government"
	SourceFoundation SourceType = "foundation"
	SourceNGO        SourceType = "ngo"
	SourceCorporate  SourceType = "corporate"
	SourceAcademic   SourceType = "academic"
)

// EngineKind selects which fetch strategy a source uses.
type EngineKind string

// Engine selector values.
const (
	EngineStatic  EngineKind = "static"
	EngineBrowser EngineKind = "browser"
	EngineAPI     EngineKind = "api"
	EnginePDF     EngineKind = "pdf"
)

// Selectors maps record fields to CSS selectors (static/browser engines) or
// JSON paths (API engine). An empty selector means the field is absent for
// this source, never an error.
type Selectors struct {
	GrantContainer string `mapstructure:"grant_container"`
	Title          string `mapstructure:"title"`
	Description    string `mapstructure:"description"`
	Deadline       string `mapstructure:"deadline"`
	FundingAmount  string `mapstructure:"funding_amount"`
	Eligibility    string `mapstructure:"eligibility"`
	ApplicationURL string `mapstructure:"application_url"`
	FunderInfo     string `mapstructure:"funder_info"`
}

// RateLimitConfig bounds how aggressively one source may be fetched.
type RateLimitConfig struct {
	RequestsPerMinute    int
	DelayBetweenRequests time.Duration
	RespectRobotsTxt     bool
}

// SourceConfig is the immutable per-source descriptor handed to an engine.
// It is constructed once by an adapter at startup and never mutated during a
// harvest run; engines take copies when they need per-request overrides such
// as a pagination URL.
type SourceConfig struct {
	ID         string
	Name       string
	URL        string
	Type       SourceType
	Engine     EngineKind
	Selectors  Selectors
	RateLimit  RateLimitConfig
	Headers    map[string]string
	Auth       AuthConfig
	Pagination PaginationConfig
	// WaitSelector is the element the browser engine waits for before
	// extracting. A timeout on this wait is tolerated.
	WaitSelector string
	// BlockResources lists resource types the browser engine skips loading
	// (e.g. "Image", "Font", "Media").
	BlockResources []string
}

// Validate checks invariants a source must satisfy before harvesting.
func (c SourceConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("source id must be set")
	}
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("source %s: url must be set", c.ID)
	}
	switch c.Engine {
	case EngineStatic, EngineBrowser, EngineAPI, EnginePDF:
	default:
		return fmt.Errorf("source %s: unknown engine %q", c.ID, c.Engine)
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("source %s: requests_per_minute must be >= 0", c.ID)
	}
	return nil
}

// WithURL returns a copy of the configuration pointing at a different URL.
// Used for pagination and document links; the original is never mutated.
func (c SourceConfig) WithURL(url string) SourceConfig {
	c.URL = url
	return c
}

// UnknownFunder is recorded when a source exposes no funder name. The value
// is a visible placeholder, never a fabricated plausible name.
const UnknownFunder = "Unknown Funder"

// RawGrantData is the canonical output unit of every engine: one harvested
// funding-opportunity listing, normalized but not yet post-processed.
type RawGrantData struct {
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Deadline       string         `json:"deadline,omitempty"`
	FundingAmount  string         `json:"funding_amount,omitempty"`
	Eligibility    string         `json:"eligibility,omitempty"`
	ApplicationURL string         `json:"application_url,omitempty"`
	FunderName     string         `json:"funder_name"`
	SourceURL      string         `json:"source_url"`
	ScrapedAt      time.Time      `json:"scraped_at"`
	RawContent     map[string]any `json:"raw_content,omitempty"`
}

// Valid reports whether the record satisfies the output invariants: a
// non-empty title and a harvest timestamp that is set and not in the future.
func (r RawGrantData) Valid(now time.Time) bool {
	if strings.TrimSpace(r.Title) == "" {
		return false
	}
	if r.ScrapedAt.IsZero() || r.ScrapedAt.After(now) {
		return false
	}
	return true
}

// SetRaw attaches a provenance entry, allocating the bag on first use.
func (r *RawGrantData) SetRaw(key string, value any) {
	if r.RawContent == nil {
		r.RawContent = make(map[string]any)
	}
	r.RawContent[key] = value
}
