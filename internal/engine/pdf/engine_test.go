package pdf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/ratelimit"
	"github.com/grantscope/harvester/internal/transport"
)

func TestStreamTextShowOperators(t *testing.T) {
	stream := []byte("BT\n(Hello) Tj\n[(World) -120 (Wide)] TJ\nT*\n(Next line) '\nET\n")
	got := streamText(stream)
	assert.Contains(t, got, "Hello")
	assert.Contains(t, got, "WorldWide")
	assert.Contains(t, got, "Next line")
}

func TestStreamTextIgnoresNonTextOperators(t *testing.T) {
	stream := []byte("q\n1 0 0 1 50 700 cm\n/Im1 Do\nQ\n")
	assert.Empty(t, streamText(stream))
}

func TestDecodeLiteralEscapes(t *testing.T) {
	assert.Equal(t, "a(b)c", decodeLiteral([]byte(`a\(b\)c`)))
	assert.Equal(t, "tab\there", decodeLiteral([]byte(`tab\there`)))
	assert.Equal(t, " ", decodeLiteral([]byte(`\040`)))
	assert.Equal(t, `back\slash`, decodeLiteral([]byte(`back\\slash`)))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "one two", collapseWhitespace("one    two  "))
	assert.Equal(t, "a\nb", collapseWhitespace("a\nb"))
}

const announcement = `Community Resilience Grant Program 2026
Issued by the Atlantic Coastal Foundation
This program supports community-led climate adaptation projects.
Awards range from $25,000 to $100,000 per project.
Applications are due by March 15, 2026.
Eligible applicants must operate in California or New York.`

func TestAnalyzeRecoversFields(t *testing.T) {
	source := harvest.SourceConfig{
		ID: "pdf-src", URL: "https://example.org/call.pdf", Engine: harvest.EnginePDF,
	}
	scrapedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	record := analyze(source, announcement, scrapedAt)
	assert.Equal(t, "Community Resilience Grant Program 2026", record.Title)
	assert.Equal(t, "Issued by the Atlantic Coastal Foundation", record.FunderName)
	assert.Equal(t, "2026-03-15", record.Deadline)
	assert.Equal(t, "$25000 to $100000", record.FundingAmount)
	assert.Contains(t, record.Eligibility, "California")
	assert.Contains(t, record.Eligibility, "New York")
	assert.NotEmpty(t, record.Description)
	assert.Equal(t, source.URL, record.SourceURL)
	assert.Equal(t, scrapedAt, record.ScrapedAt)
}

func TestAnalyzeDefaultsFunder(t *testing.T) {
	record := analyze(harvest.SourceConfig{URL: "u"}, "Some Grant\nPlain prose only.", time.Now())
	assert.Equal(t, harvest.UnknownFunder, record.FunderName)
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, nil, zap.NewNop())
	require.Error(t, err)
}

func TestLooksLikePDF(t *testing.T) {
	byHeader := &transport.Response{Header: map[string][]string{"Content-Type": {"application/pdf"}}}
	assert.True(t, looksLikePDF(byHeader))

	byMagic := &transport.Response{Header: map[string][]string{}, Body: []byte("%PDF-1.7\n")}
	assert.True(t, looksLikePDF(byMagic))

	neither := &transport.Response{Header: map[string][]string{"Content-Type": {"text/html"}}, Body: []byte("<html>")}
	assert.False(t, looksLikePDF(neither))
}

func TestAdmitWaitsOnSourceLimiter(t *testing.T) {
	client := transport.New(transport.Config{Timeout: time.Second}, nil, nil, zap.NewNop())
	limits := ratelimit.NewRegistry(ratelimit.Config{})

	source := harvest.SourceConfig{
		ID: "pdf-src", URL: "https://example.org/call.pdf", Engine: harvest.EnginePDF,
	}
	source.RateLimit.RequestsPerMinute = 1
	limits.GetWith(source.ID, ratelimit.Config{
		RequestsPerMinute: 1,
		Burst:             1,
		Window:            60 * time.Millisecond,
	})

	e, err := New(client, limits, zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, e.admit(context.Background(), source))
	require.NoError(t, e.admit(context.Background(), source))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond,
		"the second fetch waits for the source window to open")
}

func TestAdmitHonorsRequestDelay(t *testing.T) {
	client := transport.New(transport.Config{Timeout: time.Second}, nil, nil, zap.NewNop())
	e, err := New(client, nil, zap.NewNop())
	require.NoError(t, err)

	source := harvest.SourceConfig{
		ID: "pdf-src", URL: "https://example.org/call.pdf", Engine: harvest.EnginePDF,
	}
	source.RateLimit.DelayBetweenRequests = 30 * time.Millisecond

	start := time.Now()
	require.NoError(t, e.admit(context.Background(), source))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
