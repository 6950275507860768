package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantscope/harvester/internal/harvest"
)

func TestClient_GetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>grants</html>"))
	}))
	defer srv.Close()

	c := New(Config{MaxRetries: 1}, nil, nil, nil)
	resp, err := c.Get(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "grants")
	assert.True(t, resp.IsHTML())
	assert.Equal(t, 1, c.RequestCount())
	assert.False(t, c.LastRequestAt().IsZero())
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil, nil, nil)
	resp, err := c.Get(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}

func TestClient_DoesNotRetryPermanentStatus(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{MaxRetries: 3, BaseDelay: time.Millisecond}, nil, nil, nil)
	_, err := c.Get(context.Background(), srv.URL, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, harvest.ErrPermanentHTTP)
	mu.Lock()
	assert.Equal(t, 1, calls, "4xx must not be retried")
	mu.Unlock()
}

func TestClient_RotatesUserAgents(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{UserAgents: []string{"ua-one", "ua-two"}}, nil, nil, nil)
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL, Options{})
		require.NoError(t, err)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, agents, 3)
	assert.Equal(t, "ua-one", agents[0])
	assert.Equal(t, "ua-two", agents[1])
	assert.Equal(t, "ua-one", agents[2], "rotation list is cyclic")
}

func TestClient_InterRequestDelayPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{DelayBetweenRequests: 100 * time.Millisecond}, nil, nil, nil)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL, Options{})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond,
		"requests must be spaced by the configured delay")
}

func TestClient_PostSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("ack"))
	}))
	defer srv.Close()

	c := New(Config{}, nil, nil, nil)
	resp, err := c.Post(context.Background(), srv.URL, Options{
		Body:        []byte("grant_type=client_credentials"),
		ContentType: "application/x-www-form-urlencoded",
	})
	require.NoError(t, err)
	assert.Equal(t, "ack", string(resp.Body))
}

func TestClassifyStatus(t *testing.T) {
	assert.NoError(t, ClassifyStatus(200))
	assert.NoError(t, ClassifyStatus(302))
	assert.ErrorIs(t, ClassifyStatus(429), harvest.ErrTransientHTTP)
	assert.ErrorIs(t, ClassifyStatus(503), harvest.ErrTransientHTTP)
	assert.ErrorIs(t, ClassifyStatus(404), harvest.ErrPermanentHTTP)
	assert.ErrorIs(t, ClassifyStatus(500), harvest.ErrPermanentHTTP)
}

func gzipHandler(t *testing.T, body string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = w.Write([]byte(body))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html")
		zw := gzip.NewWriter(w)
		_, err := zw.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
	}
}

func TestClient_GetDecompressesGzip(t *testing.T) {
	srv := httptest.NewServer(gzipHandler(t, "<html>Community Grant</html>"))
	defer srv.Close()

	c := New(Config{}, nil, nil, nil)
	resp, err := c.Get(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "Community Grant")
}

func TestClient_GetDecodesForcedGzip(t *testing.T) {
	srv := httptest.NewServer(gzipHandler(t, `{"data":[{"title":"Community Grant"}]}`))
	defer srv.Close()

	// An explicit Accept-Encoding opts out of net/http's transparent
	// decompression; the transport must decode the body itself.
	c := New(Config{}, nil, nil, nil)
	resp, err := c.Get(context.Background(), srv.URL, Options{
		Headers: map[string]string{"Accept-Encoding": "gzip"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "Community Grant")
}

func TestDecodeBodyDeflate(t *testing.T) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write([]byte("deadline 2026-03-15"))
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	out, err := decodeBody("deflate", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "deadline 2026-03-15", string(out))

	_, err = decodeBody("br", []byte("x"))
	assert.Error(t, err)
}

func TestIdentityOmitsAcceptEncoding(t *testing.T) {
	id := NewIdentity(nil)
	_, ok := id.SecondaryHeaders()["Accept-Encoding"]
	assert.False(t, ok, "identity headers must leave compression to net/http")
}
