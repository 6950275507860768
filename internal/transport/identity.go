package transport

import (
	"math/rand"
	"net/http"
	"sync/atomic"
)

// defaultUserAgents is the cyclic identity rotation list. Entries are real
// browser strings so no single fingerprint dominates a harvest run.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.8,fr;q=0.5",
	"en-US,en;q=0.9,de;q=0.6",
}

// Identity hands out user agents cyclically and fills in randomized but
// plausible secondary headers so consecutive requests do not share a fixed
// fingerprint. Shared by the HTTP client and the markup fetcher.
type Identity struct {
	agents []string
	cursor atomic.Uint64
}

// NewIdentity builds an Identity; an empty list falls back to the defaults.
func NewIdentity(agents []string) *Identity {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &Identity{agents: agents}
}

// NextUserAgent returns the next agent in the cyclic rotation.
func (r *Identity) NextUserAgent() string {
	n := r.cursor.Add(1) - 1
	return r.agents[n%uint64(len(r.agents))]
}

// SecondaryHeaders returns the randomized plausible headers merged into
// every request, excluding User-Agent. Accept-Encoding is deliberately not
// set: a manual value disables net/http's transparent gzip handling, so the
// transport lets the stdlib negotiate compression itself.
func (r *Identity) SecondaryHeaders() map[string]string {
	h := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": acceptLanguages[rand.Intn(len(acceptLanguages))],
		"Connection":      "keep-alive",
	}
	if rand.Intn(2) == 0 {
		h["DNT"] = "1"
	}
	return h
}

// Apply sets identity headers on req, leaving caller-provided values alone.
func (r *Identity) Apply(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", r.NextUserAgent())
	}
	for k, v := range r.SecondaryHeaders() {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
}
