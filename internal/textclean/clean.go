// Package textclean provides pure text normalization and structured-field
// extraction used by every engine and adapter: markup stripping, funding
// amounts, deadlines, eligibility locations, and a quality heuristic.
package textclean

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	scriptRe   = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe    = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	commentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe      = regexp.MustCompile(`<[^>]*>`)
	bulletRe   = regexp.MustCompile(`^\s*(?:[-*•◦▪]|\d+[.)])\s+`)
	spaceRe    = regexp.MustCompile(`[ \t\r\f\v]+`)
	truncateRe = regexp.MustCompile(`(?i)(?:\.{3}|…|\(more\)|\(continued\))\s*$`)
)

// DefaultMaxLength bounds cleaned text unless the caller overrides it.
const DefaultMaxLength = 5000

// CleanText strips markup and noise from raw extracted text: script/style
// blocks, tags, comments, HTML entities, leading bullet markers, truncation
// markers, and redundant whitespace. Running it on already-clean text
// returns the text unchanged.
func CleanText(raw string) string {
	return CleanTextMax(raw, DefaultMaxLength)
}

// CleanTextMax is CleanText with an explicit maximum length. When the text is
// actually truncated an ellipsis marker is appended; otherwise none is added.
func CleanTextMax(raw string, maxLen int) string {
	if raw == "" {
		return ""
	}
	s := scriptRe.ReplaceAllString(raw, " ")
	s = styleRe.ReplaceAllString(s, " ")
	s = commentRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = bulletRe.ReplaceAllString(line, "")
		line = spaceRe.ReplaceAllString(line, " ")
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	s = strings.Join(kept, "\n")
	s = truncateRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if maxLen > 0 && len(s) > maxLen {
		end := maxLen
		// Never split a multi-byte rune at the cut point.
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		cut := s[:end]
		// Back up to the last space so we never cut mid-word.
		if i := strings.LastIndexByte(cut, ' '); i > maxLen/2 {
			cut = cut[:i]
		}
		s = strings.TrimSpace(cut) + "..."
	}
	return s
}
