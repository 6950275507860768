package adapter

import (
	"strings"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/textclean"
)

// languageMarkers are high-frequency function words per language, used for
// keyword-frequency voting. English wins ties since most configured sources
// publish in English.
var languageMarkers = map[string][]string{
	"en": {"the", "and", "for", "with", "grant", "funding", "application"},
	"es": {"el", "la", "los", "las", "para", "con", "subvención", "financiación"},
	"fr": {"le", "la", "les", "pour", "avec", "subvention", "financement"},
	"de": {"der", "die", "das", "und", "für", "mit", "förderung", "antrag"},
}

// DetectLanguage votes marker-word frequency across a small language set.
// Returns "en" when nothing scores.
func DetectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return "en"
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[strings.Trim(w, ".,;:!?()\"'")]++
	}

	best, bestScore := "en", 0
	for _, lang := range []string{"en", "es", "fr", "de"} {
		score := 0
		for _, marker := range languageMarkers[lang] {
			score += counts[marker]
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	return best
}

// usdRates is the static conversion table to the common reporting currency.
// Rates are deliberately coarse; reporting needs magnitude, not FX precision.
var usdRates = map[string]float64{
	"$": 1, "USD": 1,
	"€": 1.08, "EUR": 1.08,
	"£": 1.27, "GBP": 1.27,
	"¥": 0.0067,
	"CAD": 0.73,
	"AUD": 0.65,
	"CHF": 1.12,
}

// ConvertToUSD converts an amount to US dollars via the static rate table.
// Unknown currencies convert to nothing rather than a wrong number.
func ConvertToUSD(value float64, currency string) (float64, bool) {
	rate, ok := usdRates[currency]
	if !ok {
		return 0, false
	}
	return value * rate, true
}

// categoryKeywords is the fixed taxonomy for category inference.
var categoryKeywords = map[string][]string{
	"health":      {"health", "medical", "clinic", "disease", "wellness", "hospital"},
	"education":   {"education", "school", "student", "scholarship", "teacher", "literacy"},
	"environment": {"environment", "climate", "conservation", "water", "wildlife", "sustainability"},
	"arts":        {"arts", "culture", "museum", "music", "theater", "heritage"},
	"research":    {"research", "science", "innovation", "laboratory", "study", "technology"},
	"community":   {"community", "housing", "poverty", "food", "youth", "neighborhood"},
}

// InferCategories votes keyword frequency against the taxonomy and returns
// every category that scored, best first.
func InferCategories(text string) []string {
	lower := strings.ToLower(text)
	type scored struct {
		category string
		score    int
	}
	var hits []scored
	for _, category := range []string{"health", "education", "environment", "arts", "research", "community"} {
		score := 0
		for _, kw := range categoryKeywords[category] {
			score += strings.Count(lower, kw)
		}
		if score > 0 {
			hits = append(hits, scored{category, score})
		}
	}
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].score > hits[j-1].score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.category
	}
	return out
}

// enrich attaches the post-processing results to a record's provenance bag.
func enrich(record *harvest.RawGrantData) {
	prose := record.Title + " " + record.Description + " " + record.Eligibility
	record.SetRaw("language", DetectLanguage(prose))

	if regions := textclean.ExtractLocationEligibility(prose); len(regions) > 0 {
		record.SetRaw("regions", regions)
	}
	if categories := InferCategories(prose); len(categories) > 0 {
		record.SetRaw("categories", categories)
	}
	if amount := textclean.ExtractFundingAmount(record.FundingAmount); amount != nil {
		if usd, ok := ConvertToUSD(amount.Max, amount.Currency); ok {
			record.SetRaw("amount_usd", usd)
		}
	}
}
