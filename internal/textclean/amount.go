package textclean

import (
	"regexp"
	"strconv"
	"strings"
)

// Amount is a recognized funding amount or range in its source currency.
type Amount struct {
	Min      float64
	Max      float64
	Currency string
}

// amountRe recognizes a currency marker followed by a number with optional
// thousands separators, decimals, and a K/M/B magnitude suffix.
var amountRe = regexp.MustCompile(
	`(?i)(\$|€|£|¥|USD|EUR|GBP|CAD|AUD|CHF)\s*([\d][\d,]*(?:\.\d+)?)\s*([KMB])?`)

// rangeSepRe matches the text allowed between two amounts of a range:
// -, en dash, em dash, or "to".
var rangeSepRe = regexp.MustCompile(`(?i)^\s*(?:[-–—]|to)\s*$`)

// ExtractFundingAmount recognizes a single amount or a range and returns it
// with the detected currency. Returns nil when no amount pattern matches,
// never a zero-filled guess.
func ExtractFundingAmount(text string) *Amount {
	if text == "" {
		return nil
	}
	locs := amountRe.FindAllStringSubmatchIndex(text, 2)
	if len(locs) == 0 {
		return nil
	}

	first, ok := parseAmountAt(text, locs[0])
	if !ok {
		return nil
	}
	out := &Amount{Min: first.value, Max: first.value, Currency: first.currency}

	// A range needs a second amount joined by nothing but a separator.
	if len(locs) == 2 && rangeSepRe.MatchString(text[locs[0][1]:locs[1][0]]) {
		if second, ok := parseAmountAt(text, locs[1]); ok && second.value >= first.value {
			out.Max = second.value
		}
	}
	return out
}

type parsedAmount struct {
	value    float64
	currency string
}

func parseAmountAt(text string, loc []int) (parsedAmount, bool) {
	group := func(n int) string {
		if loc[2*n] < 0 {
			return ""
		}
		return text[loc[2*n]:loc[2*n+1]]
	}
	raw := strings.ReplaceAll(group(2), ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return parsedAmount{}, false
	}
	switch strings.ToUpper(group(3)) {
	case "K":
		v *= 1_000
	case "M":
		v *= 1_000_000
	case "B":
		v *= 1_000_000_000
	}
	return parsedAmount{value: v, currency: normalizeCurrency(group(1))}, true
}

func normalizeCurrency(raw string) string {
	switch raw {
	case "$", "€", "£", "¥":
		return raw
	default:
		return strings.ToUpper(raw)
	}
}
