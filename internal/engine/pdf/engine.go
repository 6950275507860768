// Package pdf implements the document engine for funders that publish their
// calls as PDF announcements rather than structured pages. One document
// yields one record, with the listing fields recovered heuristically from
// the extracted text.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/ratelimit"
	"github.com/grantscope/harvester/internal/textclean"
	"github.com/grantscope/harvester/internal/transport"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 600
)

// Engine downloads and analyzes PDF announcements.
type Engine struct {
	client *transport.Client
	limits *ratelimit.Registry
	logger *zap.Logger
	now    func() time.Time
}

// New builds a PDF engine on top of client. A nil limits registry disables
// per-source pacing.
func New(client *transport.Client, limits *ratelimit.Registry, logger *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("pdf engine requires a transport client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, limits: limits, logger: logger, now: time.Now}, nil
}

// Kind implements harvest.Engine.
func (e *Engine) Kind() harvest.EngineKind { return harvest.EnginePDF }

// Scrape fetches the document at source.URL and distills it into a single
// record. A document with no recoverable text fails the source.
func (e *Engine) Scrape(ctx context.Context, source harvest.SourceConfig) ([]harvest.RawGrantData, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}

	if err := e.admit(ctx, source); err != nil {
		return nil, harvest.NewSourceError(source, err)
	}

	headers := map[string]string{"Accept": "application/pdf"}
	for k, v := range source.Headers {
		headers[k] = v
	}
	resp, err := e.client.Get(ctx, source.URL, transport.Options{Headers: headers})
	if err != nil {
		return nil, harvest.NewSourceError(source, err)
	}
	if !looksLikePDF(resp) {
		return nil, harvest.NewSourceError(source,
			fmt.Errorf("response is not a pdf document: %w", harvest.ErrPermanentHTTP))
	}

	text, pages, err := documentText(resp.Body)
	if err != nil {
		return nil, harvest.NewSourceError(source, err)
	}

	record := analyze(source, text, e.now())
	record.SetRaw("pages", pages)
	record.SetRaw("quality_score", textclean.QualityScore(text))

	e.logger.Info("pdf harvest complete",
		zap.String("source", source.ID),
		zap.Int("pages", pages),
		zap.Int("text_chars", len(text)))
	return []harvest.RawGrantData{record}, nil
}

// admit holds the document request until the source's rate limit window and
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

func looksLikePDF(resp *transport.Response) bool {
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "pdf") {
		return true
	}
	return bytes.HasPrefix(resp.Body, []byte("%PDF-"))
}

// documentText parses the document and concatenates per-page text, skipping
// pages that carry no text operators.
func documentText(body []byte) (string, int, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(body), conf)
	if err != nil {
		return "", 0, fmt.Errorf("parse pdf: %w: %w", err, harvest.ErrPermanentHTTP)
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		text := pageText(ctx, pageNr)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}
	if sb.Len() == 0 {
		return "", 0, fmt.Errorf("no text content found in pdf: %w", harvest.ErrPermanentHTTP)
	}
	return sb.String(), ctx.PageCount, nil
}

// analyze recovers listing fields from extracted document text: the first
// non-empty line serves as the title, leading prose as the description, and
// the remaining fields come from pattern extraction over the whole text.
func analyze(source harvest.SourceConfig, text string, scrapedAt time.Time) harvest.RawGrantData {
	record := harvest.RawGrantData{
		FunderName: harvest.UnknownFunder,
		SourceURL:  source.URL,
		ScrapedAt:  scrapedAt,
	}

	lines := nonEmptyLines(text)
	if len(lines) > 0 {
		record.Title = textclean.CleanTextMax(lines[0], maxTitleLength)
	}
	if len(lines) > 1 {
		record.Description = textclean.CleanTextMax(strings.Join(lines[1:], " "), maxDescriptionLength)
	}
	if funder := findFunder(lines); funder != "" {
		record.FunderName = funder
	}
	if deadline, ok := textclean.ExtractDeadline(text); ok {
		record.Deadline = deadline.Format("2006-01-02")
	}
	if amount := textclean.ExtractFundingAmount(text); amount != nil {
		record.FundingAmount = formatAmount(amount)
	}
	if regions := textclean.ExtractLocationEligibility(text); len(regions) > 0 {
		record.Eligibility = strings.Join(regions, "; ")
	}
	return record
}

// funderMarkers are organization words that make a heading line a plausible
// funder name.
var funderMarkers = []string{
	"foundation", "agency", "department", "ministry", "institute",
	"council", "trust", "fund", "commission", "bureau",
}

// findFunder scans the leading lines for one that names an organization.
// The title line itself is skipped.
func findFunder(lines []string) string {
	limit := len(lines)
	if limit > 15 {
		limit = 15
	}
	for i := 1; i < limit; i++ {
		line := lines[i]
		if len(line) > 120 {
			continue
		}
		lower := strings.ToLower(line)
		for _, marker := range funderMarkers {
			if strings.Contains(lower, marker) {
				return textclean.CleanTextMax(line, maxTitleLength)
			}
		}
	}
	return ""
}

func formatAmount(a *textclean.Amount) string {
	sep := " "
	switch a.Currency {
	case "", "$", "€", "£", "¥":
		sep = ""
	}
	if a.Max > a.Min {
		return fmt.Sprintf("%s%s%.0f to %s%s%.0f", a.Currency, sep, a.Min, a.Currency, sep, a.Max)
	}
	return fmt.Sprintf("%s%s%.0f", a.Currency, sep, a.Min)
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
