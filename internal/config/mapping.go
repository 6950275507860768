package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/grantscope/harvester/internal/harvest"
)

// ToSource maps a file-side source block onto the core source descriptor.
// Credential values support an "env:NAME" form resolved at load time so
// secrets stay out of config files.
func (s SourceConfig) ToSource() (harvest.SourceConfig, error) {
	out := harvest.SourceConfig{
		ID:     s.ID,
		Name:   s.Name,
		URL:    s.URL,
		Type:   harvest.SourceType(s.Type),
		Engine: harvest.EngineKind(s.Engine),
		Selectors: harvest.Selectors{
			GrantContainer: s.Selectors["grant_container"],
			Title:          s.Selectors["title"],
			Description:    s.Selectors["description"],
			Deadline:       s.Selectors["deadline"],
			FundingAmount:  s.Selectors["funding_amount"],
			Eligibility:    s.Selectors["eligibility"],
			ApplicationURL: s.Selectors["application_url"],
			FunderInfo:     s.Selectors["funder_info"],
		},
		RateLimit: harvest.RateLimitConfig{
			RequestsPerMinute:    s.RequestsPerMinute,
			DelayBetweenRequests: s.DelayBetweenRequests,
			RespectRobotsTxt:     s.RespectRobotsTxt,
		},
		Headers:        s.Headers,
		WaitSelector:   s.WaitSelector,
		BlockResources: s.BlockResources,
	}

	auth, err := s.auth()
	if err != nil {
		return harvest.SourceConfig{}, err
	}
	out.Auth = auth
	out.Pagination = s.pagination()

	if err := out.Validate(); err != nil {
		return harvest.SourceConfig{}, err
	}
	return out, nil
}

func (s SourceConfig) auth() (harvest.AuthConfig, error) {
	if len(s.Auth) == 0 {
		return nil, nil
	}
	secret := func(key string) string { return resolveSecret(s.Auth[key]) }
	switch kind := s.Auth["kind"]; kind {
	case "bearer":
		return harvest.BearerAuth{Token: secret("token")}, nil
	case "basic":
		return harvest.BasicAuth{Username: secret("username"), Password: secret("password")}, nil
	case "apikey":
		return harvest.APIKeyAuth{Key: secret("key"), HeaderName: s.Auth["header"]}, nil
	case "oauth2":
		return harvest.OAuth2Auth{
			TokenURL:     s.Auth["token_url"],
			ClientID:     secret("client_id"),
			ClientSecret: secret("client_secret"),
			Scope:        s.Auth["scope"],
		}, nil
	default:
		return nil, fmt.Errorf("source %s: unknown auth kind %q", s.ID, kind)
	}
}

func (s SourceConfig) pagination() harvest.PaginationConfig {
	p := s.Pagination
	switch p.Kind {
	case "offset":
		return harvest.OffsetPagination{PageSize: p.PageSize, MaxPages: p.MaxPages}
	case "page":
		return harvest.PagePagination{PageSize: p.PageSize, MaxPages: p.MaxPages}
	case "cursor":
		return harvest.CursorPagination{PageSize: p.PageSize, MaxPages: p.MaxPages, CursorField: p.CursorField}
	default:
		return nil
	}
}

// resolveSecret dereferences "env:NAME" values through the environment.
func resolveSecret(value string) string {
	if name, ok := strings.CutPrefix(value, "env:"); ok {
		return os.Getenv(name)
	}
	return value
}
