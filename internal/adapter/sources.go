package adapter

import (
	"time"

	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/harvest"
)

// The constructors below are the representative source shapes the harvester
// ships with: a government portal with server-rendered listings, a
// foundation publishing through a JSON API, and an NGO directory rendered
// client-side. Real deployments add more of the same through config.

// NewGovernmentStatic configures a government grants portal harvested with
// the static engine.
func NewGovernmentStatic(url string, engine harvest.Engine, logger *zap.Logger) (*Adapter, error) {
	source := harvest.SourceConfig{
		ID:     "gov-grants-portal",
		Name:   "Government Grants Portal",
		URL:    url,
		Type:   harvest.SourceGovernment,
		Engine: harvest.EngineStatic,
		Selectors: harvest.Selectors{
			GrantContainer: "div.grant-listing, article.opportunity",
			Title:          "h2.opportunity-title, h3.title",
			Description:    "div.synopsis, p.description",
			Deadline:       "span.close-date, td.deadline",
			FundingAmount:  "span.award-ceiling, td.amount",
			Eligibility:    "div.eligible-applicants",
			ApplicationURL: "a.opportunity-link",
			FunderInfo:     "span.agency-name",
		},
		RateLimit: harvest.RateLimitConfig{
			RequestsPerMinute:    20,
			DelayBetweenRequests: 2 * time.Second,
			RespectRobotsTxt:     true,
		},
	}
	return New(source, []harvest.Engine{engine}, logger)
}

// NewFoundationAPI configures a foundation's REST API harvested with the API
// engine. apiKey may be empty for open endpoints.
func NewFoundationAPI(url, apiKey string, engine harvest.Engine, logger *zap.Logger) (*Adapter, error) {
	source := harvest.SourceConfig{
		ID:     "foundation-grants-api",
		Name:   "Foundation Grants API",
		URL:    url,
		Type:   harvest.SourceFoundation,
		Engine: harvest.EngineAPI,
		Pagination: harvest.OffsetPagination{
			PageSize: 50,
			MaxPages: 20,
		},
		RateLimit: harvest.RateLimitConfig{
			RequestsPerMinute: 60,
		},
	}
	if apiKey != "" {
		source.Auth = harvest.APIKeyAuth{Key: apiKey, HeaderName: "X-Api-Key"}
	}
	return New(source, []harvest.Engine{engine}, logger)
}

// NewNGOBrowser configures an NGO funding directory that renders its
// listings client-side, harvested with the browser engine.
func NewNGOBrowser(url string, engine harvest.Engine, logger *zap.Logger) (*Adapter, error) {
	source := harvest.SourceConfig{
		ID:     "ngo-funding-directory",
		Name:   "NGO Funding Directory",
		URL:    url,
		Type:   harvest.SourceNGO,
		Engine: harvest.EngineBrowser,
		Selectors: harvest.Selectors{
			GrantContainer: "div.funding-card",
			Title:          "h3.card-title",
			Description:    "p.card-summary",
			Deadline:       "span.deadline-badge",
			FundingAmount:  "span.amount-badge",
			ApplicationURL: "a.card-link",
			FunderInfo:     "span.funder-label",
		},
		WaitSelector:   "div.funding-card",
		BlockResources: []string{"Image", "Font", "Media"},
		RateLimit: harvest.RateLimitConfig{
			RequestsPerMinute:    10,
			DelayBetweenRequests: 5 * time.Second,
		},
	}
	return New(source, []harvest.Engine{engine}, logger)
}
