// Package markup turns fetched HTML into harvest records. It is shared by
// the static and browser engines, which differ only in how the page bytes
// were obtained.
package markup

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/textclean"
)

// Extract walks every container match and builds one record per container.
// Containers without a usable title are dropped with a warning; a failure in
// one container never aborts the rest.
func Extract(source harvest.SourceConfig, body []byte, scrapedAt time.Time, logger *zap.Logger) ([]harvest.RawGrantData, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, harvest.NewSourceError(source, fmt.Errorf("parse markup: %w", err))
	}
	container := source.Selectors.GrantContainer
	if container == "" {
		return nil, harvest.NewSourceError(source, fmt.Errorf("no grant container selector configured"))
	}

	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, harvest.NewSourceError(source, fmt.Errorf("parse source url: %w", err))
	}

	var records []harvest.RawGrantData
	doc.Find(container).Each(func(i int, sel *goquery.Selection) {
		record, ok := extractOne(source, base, sel, scrapedAt, logger)
		if !ok {
			logger.Warn("dropping container without usable title",
				zap.String("source", source.ID), zap.Int("index", i))
			return
		}
		records = append(records, record)
	})
	return records, nil
}

// extractOne maps one container element into a record. Any panic from a
// malformed container is contained so the remaining containers still parse.
func extractOne(source harvest.SourceConfig, base *url.URL, sel *goquery.Selection, scrapedAt time.Time, logger *zap.Logger) (record harvest.RawGrantData, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("container extraction panicked",
				zap.String("source", source.ID), zap.Any("cause", r))
			ok = false
		}
	}()

	s := source.Selectors
	record = harvest.RawGrantData{
		Title:         textclean.CleanText(fieldText(sel, s.Title)),
		Description:   textclean.CleanText(fieldText(sel, s.Description)),
		Deadline:      textclean.CleanText(fieldText(sel, s.Deadline)),
		FundingAmount: textclean.CleanText(fieldText(sel, s.FundingAmount)),
		Eligibility:   textclean.CleanText(fieldText(sel, s.Eligibility)),
		FunderName:    textclean.CleanText(fieldText(sel, s.FunderInfo)),
		SourceURL:     source.URL,
		ScrapedAt:     scrapedAt,
	}
	if record.Title == "" {
		return harvest.RawGrantData{}, false
	}
	if record.FunderName == "" {
		record.FunderName = harvest.UnknownFunder
	}
	if raw := applicationURL(sel, s.ApplicationURL); raw != "" {
		record.ApplicationURL = ResolveURL(base, raw)
	}
	if html, err := goquery.OuterHtml(sel); err == nil {
		record.SetRaw("html", html)
	}
	return record, true
}

// fieldText applies a CSS selector scoped to the container; an empty or
// invalid selector yields an absent field, never an error.
func fieldText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

// applicationURL prefers an anchor's link attribute, falling back to text.
func applicationURL(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	node := sel.Find(selector).First()
	if href, ok := node.Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	if nested, ok := node.Find("a").First().Attr("href"); ok && strings.TrimSpace(nested) != "" {
		return strings.TrimSpace(nested)
	}
	return strings.TrimSpace(node.Text())
}

// ResolveURL rewrites protocol-relative, absolute-path, and relative forms
// into a fully-qualified URL against the source's own origin.
func ResolveURL(base *url.URL, raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}
