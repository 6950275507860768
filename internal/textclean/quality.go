package textclean

import (
	"regexp"
	"strings"
)

var (
	sentenceRe     = regexp.MustCompile(`[.!?]+\s`)
	truncMarkerRe  = regexp.MustCompile(`(?i)\.{3}|…|\(more\)|\(continued\)`)
	fundingCueRe   = regexp.MustCompile(`(?i)\b(?:grant|funding|award|fellowship|[$€£]\s*[\d,]+)\b`)
	deadlineCueRe  = regexp.MustCompile(`(?i)\b(?:deadline|due date|closes?|apply by|submission)\b`)
	applyCueRe     = regexp.MustCompile(`(?i)\b(?:apply|application|eligib|how to submit)\b`)
	nonTextNoiseRe = regexp.MustCompile(`[{}<>|\\^~\[\]]`)
)

// QualityScore is a bounded [0,100] heuristic over extracted text: it rewards
// a sane length, sentence structure, lexical variety, and the presence of
// funding/deadline/application cues, while penalizing truncation markers and
// very short or noisy text.
func QualityScore(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	score := 0

	// Length in a sane range.
	n := len(text)
	switch {
	case n >= 200 && n <= 3000:
		score += 30
	case n >= 80:
		score += 20
	case n >= 30:
		score += 10
	}

	// Sentence structure.
	sentences := len(sentenceRe.FindAllString(text, -1)) + 1
	switch {
	case sentences >= 3:
		score += 15
	case sentences == 2:
		score += 10
	}

	// Lexical variety: distinct words over total words.
	words := strings.Fields(strings.ToLower(text))
	if len(words) > 0 {
		distinct := make(map[string]struct{}, len(words))
		for _, w := range words {
			distinct[w] = struct{}{}
		}
		ratio := float64(len(distinct)) / float64(len(words))
		switch {
		case ratio > 0.7:
			score += 15
		case ratio > 0.5:
			score += 10
		case ratio > 0.3:
			score += 5
		}
	}

	// Domain cues.
	if fundingCueRe.MatchString(text) {
		score += 15
	}
	if deadlineCueRe.MatchString(text) {
		score += 10
	}
	if applyCueRe.MatchString(text) {
		score += 10
	}

	// Penalties.
	if truncMarkerRe.MatchString(text) {
		score -= 10
	}
	if len(words) < 5 {
		score -= 15
	}
	noise := len(nonTextNoiseRe.FindAllString(text, -1))
	if noise > 0 && noise*20 > n {
		score -= 20
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
