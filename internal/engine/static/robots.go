package static

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/transport"
)

// robotsGate checks robots.txt directives per host, caching the parsed file.
// A fetch failure is treated as allow-all so an unreachable robots.txt never
// strands a harvest.
type robotsGate struct {
	http      *transport.Client
	userAgent string
	logger    *zap.Logger
	cache     sync.Map // host -> *robotstxt.RobotsData
}

func newRobotsGate(client *transport.Client, userAgent string, logger *zap.Logger) *robotsGate {
	return &robotsGate{http: client, userAgent: userAgent, logger: logger}
}

// allowed reports whether rawURL may be fetched under the host's robots.txt.
func (g *robotsGate) allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

func (g *robotsGate) load(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	if cached, ok := g.cache.Load(u.Host); ok {
		return cached.(*robotstxt.RobotsData), nil
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	resp, err := g.http.Get(ctx, robotsURL, transport.Options{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", robotsURL, err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", robotsURL, err)
	}
	g.cache.Store(u.Host, data)
	return data, nil
}
