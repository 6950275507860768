package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/grantscope/harvester/internal/engine/markup"
	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/textclean"
)

// Field alias lists, tried in order when a source configures no explicit
// JSON path. First match wins.
var (
	titleAliases = []string{
		"title", "name", "opportunity_title", "oppTitle", "grant_title",
		"grantTitle", "funding_title",
	}
	descriptionAliases = []string{
		"description", "summary", "synopsis", "abstract", "details",
	}
	deadlineAliases = []string{
		"deadline", "close_date", "closeDate", "due_date", "dueDate",
		"application_deadline", "end_date",
	}
	amountAliases = []string{
		"funding_amount", "amount", "award_amount", "awardAmount",
		"award_ceiling", "total_funding",
	}
	eligibilityAliases = []string{
		"eligibility", "eligible_applicants", "applicant_types", "who_can_apply",
	}
	urlAliases = []string{
		"application_url", "apply_url", "url", "link", "opportunity_url",
	}
	funderAliases = []string{
		"funder", "funder_name", "agency", "agency_name", "organization", "sponsor",
	}
	itemsAliases = []string{
		"data", "items", "results", "opportunities", "grants", "records", "hits",
	}
)

// mapItem converts one API item into a record. ok is false when the item has
// no usable title.
func mapItem(source harvest.SourceConfig, base *url.URL, item map[string]any, scrapedAt time.Time) (harvest.RawGrantData, bool) {
	s := source.Selectors
	record := harvest.RawGrantData{
		Title:         itemField(item, s.Title, titleAliases),
		Description:   itemField(item, s.Description, descriptionAliases),
		Deadline:      itemField(item, s.Deadline, deadlineAliases),
		FundingAmount: itemField(item, s.FundingAmount, amountAliases),
		Eligibility:   itemField(item, s.Eligibility, eligibilityAliases),
		FunderName:    itemField(item, s.FunderInfo, funderAliases),
		SourceURL:     source.URL,
		ScrapedAt:     scrapedAt,
	}
	if record.Title == "" {
		return harvest.RawGrantData{}, false
	}
	if record.FunderName == "" {
		record.FunderName = harvest.UnknownFunder
	}
	if raw := itemField(item, s.ApplicationURL, urlAliases); raw != "" {
		record.ApplicationURL = markup.ResolveURL(base, raw)
	}
	record.SetRaw("item", item)
	return record, true
}

// itemField resolves one field: the configured JSON path when present,
// otherwise the alias list in order.
func itemField(item map[string]any, path string, aliases []string) string {
	if path != "" {
		return stringify(lookupPath(item, path))
	}
	for _, alias := range aliases {
		if v := stringify(lookupPath(item, alias)); v != "" {
			return v
		}
	}
	return ""
}

// items locates the result array in a page payload. A bare top-level array
// decodes into the "" key by the caller; objects are probed with the
// configured container path first, then the alias list.
func items(payload map[string]any, containerPath string) []any {
	if containerPath != "" {
		if arr, ok := lookupPath(payload, containerPath).([]any); ok {
			return arr
		}
		return nil
	}
	for _, alias := range itemsAliases {
		if arr, ok := payload[alias].([]any); ok {
			return arr
		}
	}
	return nil
}

// lookupPath walks a dot-separated path through nested objects.
func lookupPath(obj map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = obj
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// stringify renders scalar JSON values as trimmed, cleaned text. Arrays and
// objects yield nothing rather than a JSON dump.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return textclean.CleanText(val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	}
	return ""
}
