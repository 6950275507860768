package adapter

import (
	"strings"

	"github.com/grantscope/harvester/internal/harvest"
)

// Dedupe drops records whose normalized title and funder match an earlier
// record. First occurrence wins, order is preserved.
func Dedupe(records []harvest.RawGrantData) []harvest.RawGrantData {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, record := range records {
		key := dedupeKey(record)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, record)
	}
	return out
}

func dedupeKey(record harvest.RawGrantData) string {
	return normalizeKey(record.Title) + "|" + normalizeKey(record.FunderName)
}

// normalizeKey lowers, strips punctuation, and collapses whitespace so
// cosmetic differences do not defeat matching.
func normalizeKey(s string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			sb.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}
