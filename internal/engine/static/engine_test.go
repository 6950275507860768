package static

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/engine/markup"
	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/transport"
)

const listingPage = `<html><body>
<div class="grant">
  <h2 class="title">Community Health Grant</h2>
  <p class="desc">Funds local clinics.</p>
  <span class="deadline">March 15, 2026</span>
  <span class="amount">$50,000</span>
  <span class="funder">Acme Foundation</span>
  <a class="apply" href="/apply/health">Apply</a>
</div>
<div class="grant">
  <h2 class="title"></h2>
  <p class="desc">No title, should be dropped.</p>
</div>
<div class="grant">
  <h2 class="title">Rural Education Fund</h2>
  <p class="desc">Scholarships for rural students.</p>
  <a class="apply" href="https://grants.example.org/edu">Apply</a>
</div>
</body></html>`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{Timeout: 5 * time.Second, MaxRetries: 1, BaseDelay: time.Millisecond},
		nil, nil, nil, zap.NewNop())
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func listingSource(url string) harvest.SourceConfig {
	return harvest.SourceConfig{
		ID:     "test-source",
		Name:   "Test Source",
		URL:    url,
		Type:   harvest.SourceFoundation,
		Engine: harvest.EngineStatic,
		Selectors: harvest.Selectors{
			GrantContainer: "div.grant",
			Title:          "h2.title",
			Description:    "p.desc",
			Deadline:       "span.deadline",
			FundingAmount:  "span.amount",
			FunderInfo:     "span.funder",
			ApplicationURL: "a.apply",
		},
	}
}

func TestScrapeExtractsRecordsInDocumentOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	e := newTestEngine(t)
	records, err := e.Scrape(context.Background(), listingSource(srv.URL))
	require.NoError(t, err)
	require.Len(t, records, 2, "titleless container must be dropped")

	first, second := records[0], records[1]
	assert.Equal(t, "Community Health Grant", first.Title)
	assert.Equal(t, "Funds local clinics.", first.Description)
	assert.Equal(t, "March 15, 2026", first.Deadline)
	assert.Equal(t, "$50,000", first.FundingAmount)
	assert.Equal(t, "Acme Foundation", first.FunderName)
	assert.Equal(t, srv.URL+"/apply/health", first.ApplicationURL)
	assert.Equal(t, srv.URL, first.SourceURL)
	assert.False(t, first.ScrapedAt.IsZero())
	assert.Contains(t, first.RawContent, "html")

	assert.Equal(t, "Rural Education Fund", second.Title)
	assert.Equal(t, harvest.UnknownFunder, second.FunderName, "missing funder defaults to placeholder")
	assert.Equal(t, "https://grants.example.org/edu", second.ApplicationURL, "absolute links pass through")
}

func TestScrapeEmptySelectorMeansAbsentField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<div class="grant"><h2 class="title">Only Title</h2></div>`))
	}))
	defer srv.Close()

	source := listingSource(srv.URL)
	source.Selectors.Description = ""
	source.Selectors.Deadline = ""

	e := newTestEngine(t)
	records, err := e.Scrape(context.Background(), source)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Description)
	assert.Empty(t, records[0].Deadline)
}

func TestScrapePermanentStatusIsNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	e := newTestEngine(t)
	_, err := e.Scrape(context.Background(), listingSource(srv.URL))
	require.Error(t, err)
	assert.True(t, errors.Is(err, harvest.ErrPermanentHTTP))
	assert.Equal(t, 1, hits, "404 must not be retried")
}

func TestScrapeServerErrorRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	e := New(Config{Timeout: 5 * time.Second, MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		nil, nil, nil, zap.NewNop())
	records, err := e.Scrape(context.Background(), listingSource(srv.URL))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 3, hits)
}

func TestScrapeRejectsNonMarkupResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	e := newTestEngine(t)
	_, err := e.Scrape(context.Background(), listingSource(srv.URL))
	require.Error(t, err)
	assert.True(t, errors.Is(err, harvest.ErrPermanentHTTP))
}

func TestScrapeInvalidSourceRejected(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Scrape(context.Background(), harvest.SourceConfig{ID: "x", Engine: harvest.EngineStatic})
	require.Error(t, err)
}

func TestScrapeHonorsRobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /grants\n"))
	})
	mux.HandleFunc("/grants", func(w http.ResponseWriter, r *http.Request) {
		t.Error("disallowed path must not be fetched")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := transport.New(transport.Config{Timeout: 5 * time.Second, MaxRetries: 1}, nil, nil, zap.NewNop())
	e := New(Config{Timeout: 5 * time.Second, MaxRetries: 1, BaseDelay: time.Millisecond},
		client, nil, nil, zap.NewNop())

	source := listingSource(srv.URL + "/grants")
	source.RateLimit.RespectRobotsTxt = true
	_, err := e.Scrape(context.Background(), source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "robots")
}

func TestResolveURLForms(t *testing.T) {
	base := mustParse(t, "https://grants.example.gov/listing/page")
	cases := map[string]string{
		"/apply/123":                   "https://grants.example.gov/apply/123",
		"details/456":                  "https://grants.example.gov/listing/details/456",
		"//cdn.example.net/doc":        "https://cdn.example.net/doc",
		"https://other.org/grant":      "https://other.org/grant",
		"?page=2":                      "https://grants.example.gov/listing/page?page=2",
	}
	for raw, want := range cases {
		assert.Equal(t, want, markup.ResolveURL(base, raw), "raw %q", raw)
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestEngineKind(t *testing.T) {
	assert.Equal(t, harvest.EngineStatic, newTestEngine(t).Kind())
}
