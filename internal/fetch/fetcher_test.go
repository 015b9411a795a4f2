package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebot/backend/internal/errs"
	"github.com/sitebot/backend/internal/source"
)

func validMarkup() string {
	body := strings.Repeat("Fresh bread, pastries and coffee every morning. ", 60)
	return "<html><body><p>" + body + "</p></body></html>"
}

func TestFetchPastedText(t *testing.T) {
	f := NewFetcher(Config{})

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{
			name:    "long enough text passes through",
			text:    "We are a family-run bakery in Lisbon, open since 1987.",
			wantErr: false,
		},
		{
			name:    "short text rejected",
			text:    "hi there",
			wantErr: true,
		},
		{
			name:    "whitespace padding does not count",
			text:    "   short    \n\n   ",
			wantErr: true,
		},
		{
			name:    "exactly ten trimmed characters rejected",
			text:    "0123456789",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := f.Fetch(context.Background(), source.NewPastedText(tt.text))
			if tt.wantErr {
				var verr *errs.ValidationError
				require.Error(t, err)
				assert.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.text, raw.Text)
			assert.False(t, raw.IsMarkup)
			assert.Equal(t, "pasted", raw.Strategy)
		})
	}
}

func TestFetchSocialProfileAlwaysFails(t *testing.T) {
	f := NewFetcher(Config{})

	_, err := f.Fetch(context.Background(), source.NewSocialProfile("instagram", "someshop"))

	var ferr *errs.FetchError
	require.Error(t, err)
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Error(), "paste the profile content manually")
}

func TestFetchDocumentUnsupportedExtension(t *testing.T) {
	f := NewFetcher(Config{})

	_, err := f.Fetch(context.Background(), source.NewDocument([]byte("data"), "notes.txt"))

	var verr *errs.ValidationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &verr)
}

func TestFetchPageNoStrategiesConfigured(t *testing.T) {
	f := NewFetcher(Config{})

	_, err := f.Fetch(context.Background(), source.NewLink("https://example.com"))

	var cerr *errs.ConfigurationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &cerr)
}

func TestFetchPageRelayChainFallsThrough(t *testing.T) {
	// First relay returns a JSON error envelope, second returns a body too
	// short to trust, third returns real markup.
	var calls []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/r1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"error":"origin unreachable"}`))
		case "/r2":
			w.Write([]byte("<html>tiny</html>"))
		case "/r3":
			w.Write([]byte(validMarkup()))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewFetcher(Config{
		Relays: []string{
			srv.URL + "/r1?u=%s",
			srv.URL + "/r2?u=%s",
			srv.URL + "/r3?u=%s",
		},
	})

	raw, err := f.Fetch(context.Background(), source.NewLink("https://example.com/menu"))
	require.NoError(t, err)

	assert.Equal(t, "relay_3", raw.Strategy)
	assert.True(t, raw.IsMarkup)
	assert.Equal(t, len(raw.Text), raw.MarkupLen)
	assert.Equal(t, []string{"/r1", "/r2", "/r3"}, calls)
}

func TestFetchPageFirstSuccessWins(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(validMarkup()))
	}))
	defer srv.Close()

	f := NewFetcher(Config{
		Relays: []string{
			srv.URL + "/a?u=%s",
			srv.URL + "/b?u=%s",
		},
	})

	raw, err := f.Fetch(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)

	assert.Equal(t, "relay_1", raw.Strategy)
	assert.Equal(t, 1, calls)
}

func TestFetchPageAllStrategiesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(Config{
		Relays: []string{
			srv.URL + "/a?u=%s",
			srv.URL + "/b?u=%s",
		},
	})

	_, err := f.Fetch(context.Background(), source.NewLink("https://example.com"))

	var aerr *errs.AggregateFetchError
	require.Error(t, err)
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 2, aerr.Attempts)
}

func TestFetchPageScrapeBackendPreferred(t *testing.T) {
	markup := validMarkup()

	var relayCalled bool
	relaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayCalled = true
		w.Write([]byte(markup))
	}))
	defer relaySrv.Close()

	scrapeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "test-key", user)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com", req["url"])
		assert.Equal(t, true, req["browserHtml"])

		json.NewEncoder(w).Encode(map[string]string{"browserHtml": markup})
	}))
	defer scrapeSrv.Close()

	f := NewFetcher(Config{
		ScrapeEndpoint: scrapeSrv.URL,
		ScrapeAPIKey:   "test-key",
		Relays:         []string{relaySrv.URL + "/?u=%s"},
	})

	raw, err := f.Fetch(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)

	assert.Equal(t, "scrape_backend", raw.Strategy)
	assert.Equal(t, markup, raw.Text)
	assert.False(t, relayCalled)
}

func TestFetchPageScrapeBackendFailureFallsToRelay(t *testing.T) {
	scrapeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer scrapeSrv.Close()

	relaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(validMarkup()))
	}))
	defer relaySrv.Close()

	f := NewFetcher(Config{
		ScrapeEndpoint: scrapeSrv.URL,
		ScrapeAPIKey:   "bad-key",
		Relays:         []string{relaySrv.URL + "/?u=%s"},
	})

	raw, err := f.Fetch(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)
	assert.Equal(t, "relay_1", raw.Strategy)
}

type fakeCache struct {
	store map[string]string
	sets  int
}

func (c *fakeCache) GetMarkup(_ context.Context, pageURL string) (string, bool) {
	v, ok := c.store[pageURL]
	return v, ok
}

func (c *fakeCache) SetMarkup(_ context.Context, pageURL, markup string) {
	c.store[pageURL] = markup
	c.sets++
}

func TestFetchPageCacheHitSkipsNetwork(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(validMarkup()))
	}))
	defer srv.Close()

	cache := &fakeCache{store: map[string]string{}}
	f := NewFetcher(Config{
		Relays: []string{srv.URL + "/?u=%s"},
		Cache:  cache,
	})

	// First fetch misses the cache and stores the markup.
	raw, err := f.Fetch(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)
	assert.Equal(t, "relay_1", raw.Strategy)
	assert.Equal(t, 1, cache.sets)

	// Second fetch is served from the cache.
	raw, err = f.Fetch(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)
	assert.Equal(t, "cache", raw.Strategy)
	assert.Equal(t, 1, calls)
}

func TestLooksLikeMarkup(t *testing.T) {
	long := strings.Repeat("x", 200)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"html anchor", "<html>" + long, true},
		{"body anchor", "<BODY>" + long, true},
		{"doctype anchor", "<!DOCTYPE html>" + long, true},
		{"long but no anchor", long, false},
		{"anchor but too short", "<html><body>hi</body></html>", false},
		{"json envelope", `{"contents":"` + long + `"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeMarkup(tt.body))
		})
	}
}
