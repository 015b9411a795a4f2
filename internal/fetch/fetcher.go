// Package fetch resolves a source descriptor into raw content. Link sources
// go through an ordered chain of retrieval strategies; documents are handed
// to the extractor; pasted text passes straight through.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/errs"
	"github.com/sitebot/backend/internal/extract"
	"github.com/sitebot/backend/internal/source"
	"github.com/sitebot/backend/pkg/logger"
)

const (
	// minRelayBody guards against relays returning JSON error envelopes or
	// empty shells that would otherwise be misread as valid markup.
	minRelayBody = 100

	// minPastedText rejects accidental empty submissions.
	minPastedText = 10
)

// RawContent is the output of one successful fetch. For link sources Text
// holds the raw markup and IsMarkup is set; everything else is already plain.
type RawContent struct {
	Text      string
	IsMarkup  bool
	Strategy  string
	MarkupLen int
}

// MarkupCache stores fetched markup keyed by URL so re-ingesting a page can
// skip the relay chain. Optional.
type MarkupCache interface {
	GetMarkup(ctx context.Context, pageURL string) (string, bool)
	SetMarkup(ctx context.Context, pageURL, markup string)
}

type Config struct {
	ScrapeEndpoint string
	ScrapeAPIKey   string
	ScrapeTimeout  time.Duration
	Relays         []string
	RelayTimeout   time.Duration
	HTTPClient     *http.Client
	Cache          MarkupCache
}

type Fetcher struct {
	scrapeEndpoint string
	scrapeAPIKey   string
	scrapeTimeout  time.Duration
	relays         []string
	relayTimeout   time.Duration
	httpClient     *http.Client
	cache          MarkupCache
}

func NewFetcher(cfg Config) *Fetcher {
	if cfg.ScrapeTimeout == 0 {
		cfg.ScrapeTimeout = 45 * time.Second
	}
	if cfg.RelayTimeout == 0 {
		cfg.RelayTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.ScrapeTimeout}
	}

	return &Fetcher{
		scrapeEndpoint: cfg.ScrapeEndpoint,
		scrapeAPIKey:   cfg.ScrapeAPIKey,
		scrapeTimeout:  cfg.ScrapeTimeout,
		relays:         cfg.Relays,
		relayTimeout:   cfg.RelayTimeout,
		httpClient:     cfg.HTTPClient,
		cache:          cfg.Cache,
	}
}

// Fetch resolves the descriptor into raw content, dispatching per source
// kind. Social profiles always fail here; the caller offers a manual-paste
// fallback instead.
func (f *Fetcher) Fetch(ctx context.Context, desc source.Descriptor) (*RawContent, error) {
	switch desc.Kind {
	case source.KindLink:
		return f.fetchPage(ctx, desc.URL)

	case source.KindDocument:
		if !extract.SupportedExtension(desc.Filename) {
			return nil, &errs.ValidationError{
				Reason: fmt.Sprintf("unsupported file type for %q, expected .pdf, .doc or .docx", desc.Filename),
			}
		}
		text, err := extract.ExtractText(desc.Data, desc.Filename)
		if err != nil {
			return nil, err
		}
		return &RawContent{Text: text, Strategy: "document"}, nil

	case source.KindSocialProfile:
		return nil, &errs.FetchError{
			Strategy: "social",
			Reason:   "social profiles require an authenticated backend, paste the profile content manually",
		}

	case source.KindPastedText:
		if len(strings.TrimSpace(desc.Text)) <= minPastedText {
			return nil, &errs.ValidationError{Reason: "pasted text is too short to build a knowledge base from"}
		}
		return &RawContent{Text: desc.Text, Strategy: "pasted"}, nil

	default:
		return nil, &errs.ValidationError{Reason: fmt.Sprintf("unknown source kind %d", desc.Kind)}
	}
}

// fetchPage runs the strategy chain for a URL in strict priority order:
// professional scraping backend first when credentials exist, then each relay
// endpoint in turn. Each strategy is attempted exactly once.
func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) (*RawContent, error) {
	if f.cache != nil {
		if markup, ok := f.cache.GetMarkup(ctx, pageURL); ok {
			logger.Debug("Markup cache hit", zap.String("url", pageURL))
			return &RawContent{Text: markup, IsMarkup: true, Strategy: "cache", MarkupLen: len(markup)}, nil
		}
	}

	strategies := f.strategies()
	if len(strategies) == 0 {
		return nil, &errs.ConfigurationError{Name: "relay.endpoints"}
	}

	var lastErr error
	for _, s := range strategies {
		markup, err := s.run(ctx, pageURL)
		if err != nil {
			logger.Warn("Fetch strategy failed",
				zap.String("strategy", s.name),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		logger.Info("Page fetched",
			zap.String("strategy", s.name),
			zap.String("url", pageURL),
			zap.Int("markup_bytes", len(markup)),
		)

		if f.cache != nil {
			f.cache.SetMarkup(ctx, pageURL, markup)
		}

		return &RawContent{Text: markup, IsMarkup: true, Strategy: s.name, MarkupLen: len(markup)}, nil
	}

	return nil, &errs.AggregateFetchError{Attempts: len(strategies), Last: lastErr}
}

type strategy struct {
	name string
	run  func(ctx context.Context, pageURL string) (string, error)
}

func (f *Fetcher) strategies() []strategy {
	var out []strategy

	// The scraping backend is optional: no credential, no attempt, no error.
	if f.scrapeAPIKey != "" && f.scrapeEndpoint != "" {
		out = append(out, strategy{name: "scrape_backend", run: f.fetchViaScrapeBackend})
	}

	for i, tmpl := range f.relays {
		tmpl := tmpl
		out = append(out, strategy{
			name: fmt.Sprintf("relay_%d", i+1),
			run: func(ctx context.Context, pageURL string) (string, error) {
				return f.fetchViaRelay(ctx, tmpl, pageURL)
			},
		})
	}

	return out
}

// fetchViaScrapeBackend requests browser-rendered markup, not transport-level
// markup, because the target may be a script-rendered page.
func (f *Fetcher) fetchViaScrapeBackend(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.scrapeTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]interface{}{
		"url":         pageURL,
		"browserHtml": true,
	})
	if err != nil {
		return "", &errs.FetchError{Strategy: "scrape_backend", Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.scrapeEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &errs.FetchError{Strategy: "scrape_backend", Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(f.scrapeAPIKey, "")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &errs.FetchError{Strategy: "scrape_backend", Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &errs.FetchError{
			Strategy: "scrape_backend",
			Reason:   fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	var body struct {
		BrowserHTML string `json:"browserHtml"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &errs.FetchError{Strategy: "scrape_backend", Reason: "decode response", Err: err}
	}

	if strings.TrimSpace(body.BrowserHTML) == "" {
		return "", &errs.FetchError{Strategy: "scrape_backend", Reason: "empty browserHtml in response"}
	}

	return body.BrowserHTML, nil
}

// fetchViaRelay fetches the page through a public passthrough endpoint. The
// body only counts as a success when it is long enough and actually looks
// like markup.
func (f *Fetcher) fetchViaRelay(ctx context.Context, tmpl, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.relayTimeout)
	defer cancel()

	relayURL := fmt.Sprintf(tmpl, url.QueryEscape(pageURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, relayURL, nil)
	if err != nil {
		return "", &errs.FetchError{Strategy: "relay", Reason: "create request", Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &errs.FetchError{Strategy: "relay", Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &errs.FetchError{Strategy: "relay", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &errs.FetchError{Strategy: "relay", Reason: "read body", Err: err}
	}

	markup := string(body)
	if !looksLikeMarkup(markup) {
		return "", &errs.FetchError{Strategy: "relay", Reason: "response body does not look like an HTML document"}
	}

	return markup, nil
}

// looksLikeMarkup requires a minimum length and a recognizable markup anchor.
func looksLikeMarkup(body string) bool {
	if len(body) <= minRelayBody {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<!doctype")
}
