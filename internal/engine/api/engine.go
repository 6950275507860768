// Package api implements the JSON-API engine for sources that publish their
// listings behind a REST endpoint instead of rendered markup.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/ratelimit"
	"github.com/grantscope/harvester/internal/transport"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// maxConsecutivePageFailures bounds how many pages in a row may fail before
// a partially harvested source is cut off.
const maxConsecutivePageFailures = 3

// Engine fetches paginated JSON APIs through the shared transport.
type Engine struct {
	client *transport.Client
	limits *ratelimit.Registry
	logger *zap.Logger
	now    func() time.Time
}

// New builds an API engine on top of client. A nil limits registry disables
// per-source pacing.
func New(client *transport.Client, limits *ratelimit.Registry, logger *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("api engine requires a transport client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, limits: limits, logger: logger, now: time.Now}, nil
}

// Kind implements harvest.Engine.
func (e *Engine) Kind() harvest.EngineKind { return harvest.EngineAPI }

// Scrape resolves credentials once, then walks the source's pages. After the
// first successful page, up to three consecutive page failures are tolerated
// and the partial harvest is returned; a failure before any page succeeds
// fails the whole source.
func (e *Engine) Scrape(ctx context.Context, source harvest.SourceConfig) ([]harvest.RawGrantData, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	cred, err := e.resolveAuth(ctx, source.Auth)
	if err != nil {
		return nil, harvest.NewSourceError(source, err)
	}

	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, harvest.NewSourceError(source, fmt.Errorf("parse source url: %w", err))
	}

	state := newPageState(source.Pagination)
	scrapedAt := e.now()

	var (
		records     []harvest.RawGrantData
		succeeded   int
		consecFails int
	)
	for {
		payload, count, pageRecords, err := e.fetchPage(ctx, source, base, cred, state, scrapedAt)
		if err != nil {
			if succeeded == 0 {
				return nil, harvest.NewSourceError(source, err)
			}
			consecFails++
			e.logger.Warn("page fetch failed after partial harvest",
				zap.String("source", source.ID),
				zap.Int("page", state.page),
				zap.Int("consecutive_failures", consecFails),
				zap.Error(err))
			if consecFails > maxConsecutivePageFailures || errors.Is(err, context.Canceled) {
				break
			}
			if !state.skip() {
				break
			}
			continue
		}
		succeeded++
		consecFails = 0
		records = append(records, pageRecords...)
		if !state.advance(payload, count) {
			break
		}
	}

	e.logger.Info("api harvest complete",
		zap.String("source", source.ID),
		zap.Int("pages", succeeded),
		zap.Int("records", len(records)))
	return records, nil
}

// fetchPage requests one page and maps its items. The decoded payload comes
// back so the pagination state can read has-more signals and cursors.
func (e *Engine) fetchPage(ctx context.Context, source harvest.SourceConfig, base *url.URL, cred *credential, state *pageState, scrapedAt time.Time) (map[string]any, int, []harvest.RawGrantData, error) {
	if err := e.admit(ctx, source); err != nil {
		return nil, 0, nil, err
	}

	pageURL := *base
	query := pageURL.Query()
	for key, vals := range state.params() {
		for _, v := range vals {
			query.Set(key, v)
		}
	}
	pageURL.RawQuery = query.Encode()

	headers := map[string]string{"Accept": "application/json"}
	for k, v := range source.Headers {
		headers[k] = v
	}
	if cred != nil {
		headers[cred.header] = cred.value
	}

	resp, err := e.client.Get(ctx, pageURL.String(), transport.Options{Headers: headers})
	if err != nil {
		return nil, 0, nil, err
	}
	if resp.StatusCode != 200 {
		if serr := transport.ClassifyStatus(resp.StatusCode); serr != nil {
			return nil, 0, nil, serr
		}
		return nil, 0, nil, fmt.Errorf("unexpected status %d: %w", resp.StatusCode, harvest.ErrPermanentHTTP)
	}

	payload, itemList, err := decodePage(resp.Body, source.Selectors.GrantContainer)
	if err != nil {
		return nil, 0, nil, err
	}

	var records []harvest.RawGrantData
	for i, raw := range itemList {
		item, ok := raw.(map[string]any)
		if !ok {
			e.logger.Warn("skipping non-object item",
				zap.String("source", source.ID), zap.Int("index", i))
			continue
		}
		record, ok := mapItem(source, base, item, scrapedAt)
		if !ok {
			e.logger.Warn("dropping item without usable title",
				zap.String("source", source.ID), zap.Int("index", i))
			continue
		}
		records = append(records, record)
	}
	return payload, len(itemList), records, nil
}

// admit holds the page request until the source's rate limit window and
// configured inter-request delay allow it.
func (e *Engine) admit(ctx context.Context, source harvest.SourceConfig) error {
	if e.limits != nil {
		limiter := e.limits.GetWith(source.ID, ratelimit.Config{
			RequestsPerMinute: source.RateLimit.RequestsPerMinute,
			Burst:             source.RateLimit.RequestsPerMinute,
		})
		if source.RateLimit.RequestsPerMinute > 0 {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
	}
	if d := source.RateLimit.DelayBetweenRequests; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// decodePage unmarshals a page body, accepting either a top-level object or
// a bare array of items.
func decodePage(body []byte, containerPath string) (map[string]any, []any, error) {
	var root any
	if err := jsonAPI.Unmarshal(body, &root); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w: %w", err, harvest.ErrPermanentHTTP)
	}
	switch v := root.(type) {
	case []any:
		return map[string]any{}, v, nil
	case map[string]any:
		itemList := items(v, containerPath)
		if itemList == nil {
			return nil, nil, fmt.Errorf("response has no recognizable item array: %w", harvest.ErrPermanentHTTP)
		}
		return v, itemList, nil
	default:
		return nil, nil, fmt.Errorf("response is not an object or array: %w", harvest.ErrPermanentHTTP)
	}
}
