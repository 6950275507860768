package textclean

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText_EntitiesWhitespaceEllipsis(t *testing.T) {
	got := CleanText("Grant &amp; Research   Program...")
	assert.Equal(t, "Grant & Research Program", got)
}

func TestCleanText_StripsMarkupAndScripts(t *testing.T) {
	raw := `<div><script>alert(1)</script><style>.x{}</style>
		<!-- hidden --><p>Community <b>Health</b> Grants</p></div>`
	assert.Equal(t, "Community Health Grants", CleanText(raw))
}

func TestCleanText_StripsBulletMarkers(t *testing.T) {
	raw := "- First condition\n2) Second condition\n• Third condition"
	assert.Equal(t, "First condition\nSecond condition\nThird condition", CleanText(raw))
}

func TestCleanText_Idempotent(t *testing.T) {
	clean := CleanText("Apply for the  rural development &ndash; fund (more)")
	assert.Equal(t, clean, CleanText(clean))
}

func TestCleanTextMax_TruncatesWithMarker(t *testing.T) {
	long := strings.Repeat("funding opportunity ", 50)
	got := CleanTextMax(long, 100)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 104)

	short := "short text"
	assert.Equal(t, short, CleanTextMax(short, 100), "no marker when nothing was truncated")
}

func TestCleanTextMax_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("助成金プログラム", 40)
	for maxLen := 30; maxLen <= 36; maxLen++ {
		got := CleanTextMax(long, maxLen)
		assert.True(t, utf8.ValidString(got), "maxLen=%d produced invalid UTF-8", maxLen)
		assert.True(t, strings.HasSuffix(got, "..."))
	}
}

func TestExtractFundingAmount_Range(t *testing.T) {
	got := ExtractFundingAmount("$100,000 - $500,000")
	require.NotNil(t, got)
	assert.Equal(t, 100000.0, got.Min)
	assert.Equal(t, 500000.0, got.Max)
	assert.Equal(t, "$", got.Currency)
}

func TestExtractFundingAmount_RangeSeparators(t *testing.T) {
	for _, text := range []string{
		"€10K – €50K",
		"€10K — €50K",
		"€10K to €50K",
	} {
		got := ExtractFundingAmount(text)
		require.NotNil(t, got, text)
		assert.Equal(t, 10000.0, got.Min, text)
		assert.Equal(t, 50000.0, got.Max, text)
		assert.Equal(t, "€", got.Currency, text)
	}
}

func TestExtractFundingAmount_SingleAndSuffixes(t *testing.T) {
	got := ExtractFundingAmount("up to USD 2.5M per project")
	require.NotNil(t, got)
	assert.Equal(t, 2_500_000.0, got.Min)
	assert.Equal(t, 2_500_000.0, got.Max)
	assert.Equal(t, "USD", got.Currency)
}

func TestExtractFundingAmount_AbsentNotGuessed(t *testing.T) {
	assert.Nil(t, ExtractFundingAmount("TBD"))
	assert.Nil(t, ExtractFundingAmount("Funding amounts vary"))
	assert.Nil(t, ExtractFundingAmount(""))
}

func TestExtractDeadline_Patterns(t *testing.T) {
	cases := map[string]time.Time{
		"Deadline: 2026-03-15":            time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		"Apply by 03/15/2026":             time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		"Closes 15-03-2026 at noon":       time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		"Due March 15, 2026":              time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		"Submissions close 15 March 2026": time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	for text, want := range cases {
		got, ok := ExtractDeadline(text)
		require.True(t, ok, text)
		assert.Equal(t, want.Year(), got.Year(), text)
		assert.Equal(t, want.Month(), got.Month(), text)
		assert.Equal(t, want.Day(), got.Day(), text)
	}
}

func TestExtractDeadline_Absent(t *testing.T) {
	_, ok := ExtractDeadline("rolling basis")
	assert.False(t, ok)
}

func TestExtractLocationEligibility(t *testing.T) {
	got := ExtractLocationEligibility("Open to applicants in California, NY, and nationwide programs in the United States")
	assert.Contains(t, got, "California")
	assert.Contains(t, got, "New York")
	assert.Contains(t, got, "Nationwide")
	assert.Contains(t, got, "United States")
}

func TestExtractLocationEligibility_DedupesCaseInsensitively(t *testing.T) {
	got := ExtractLocationEligibility("GLOBAL reach, global grants, Global impact")
	count := 0
	for _, v := range got {
		if strings.EqualFold(v, "global") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestQualityScore_Bounds(t *testing.T) {
	assert.Equal(t, 0, QualityScore(""))
	rich := "The Community Health Grant program awards $50,000 to eligible nonprofits. " +
		"The application deadline is March 15, 2026. Apply through the online portal with a project budget."
	score := QualityScore(rich)
	assert.Greater(t, score, 50)
	assert.LessOrEqual(t, score, 100)

	assert.Less(t, QualityScore("x..."), 20)
}

func TestQualityScore_PenalizesTruncation(t *testing.T) {
	base := "The fellowship supports early-career researchers working on water policy across several regions. Awards fund travel and equipment."
	assert.Greater(t, QualityScore(base), QualityScore(base+" (continued)"))
}
