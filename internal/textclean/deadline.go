package textclean

import (
	"regexp"
	"time"
)

// datePattern pairs a locator regexp with the layouts its match may parse as.
type datePattern struct {
	re      *regexp.Regexp
	layouts []string
}

// deadlinePatterns are tried in order; the first match that parses to a
// valid date wins.
var deadlinePatterns = []datePattern{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), []string{"2006-01-02"}},
	{regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`), []string{"1/2/2006", "2/1/2006"}},
	{regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`), []string{"1-2-2006", "2-1-2006"}},
	{regexp.MustCompile(`(?i)(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}`),
		[]string{"January 2, 2006", "January 2 2006"}},
	{regexp.MustCompile(`(?i)\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}`),
		[]string{"2 January 2006"}},
}

// ExtractDeadline scans text for the first recognizable date and returns it.
// The second result is false when no pattern parses to a valid date.
func ExtractDeadline(text string) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	for _, p := range deadlinePatterns {
		match := p.re.FindString(text)
		if match == "" {
			continue
		}
		for _, layout := range p.layouts {
			if t, err := time.Parse(layout, canonicalMonthCase(match)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

var monthRe = regexp.MustCompile(`(?i)january|february|march|april|may|june|july|august|september|october|november|december`)

// canonicalMonthCase title-cases month names so time.Parse accepts matches
// regardless of source casing.
func canonicalMonthCase(s string) string {
	return monthRe.ReplaceAllStringFunc(s, func(m string) string {
		if len(m) == 0 {
			return m
		}
		b := []byte(m)
		if b[0] >= 'a' && b[0] <= 'z' {
			b[0] -= 'a' - 'A'
		}
		for i := 1; i < len(b); i++ {
			if b[i] >= 'A' && b[i] <= 'Z' {
				b[i] += 'a' - 'A'
			}
		}
		return string(b)
	})
}
