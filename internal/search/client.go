// Package search adapts the web-search capability. Results are
// normalized defensively: the backend is untrusted and routinely mixes
// malformed entries into otherwise good batches.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/llm"
	"github.com/thothlabs/coursegen/internal/metrics"
	"github.com/thothlabs/coursegen/internal/tracing"
)

// Result is one normalized search hit.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchClient runs a query against the web-search backend.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// HTTPClient is the production SearchClient.
type HTTPClient struct {
	base   string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClient builds a search client for the given backend.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// rawResult decodes loosely: every field is optional and score may
// arrive as a string.
type rawResult struct {
	URL     string          `json:"url"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Score   json.RawMessage `json:"score"`
}

// Search queries the backend and drops malformed entries instead of
// failing the whole call.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]Result, error) {
	ctx, span := tracing.StartBackendSpan(ctx, "search.query",
		attribute.Int("query_len", len(query)),
	)
	defer span.End()

	u := fmt.Sprintf("%s/v1/search?q=%s", c.base, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.SearchCalls.WithLabelValues("error").Inc()
		return nil, &llm.TransientError{Op: "search", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.SearchCalls.WithLabelValues("error").Inc()
		return nil, &llm.TransientError{Op: "search", Err: fmt.Errorf("backend returned status %d", resp.StatusCode)}
	}

	var envelope struct {
		Results []rawResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		metrics.SearchCalls.WithLabelValues("error").Inc()
		return nil, &llm.TransientError{Op: "search", Err: fmt.Errorf("decode response: %w", err)}
	}

	metrics.SearchCalls.WithLabelValues("ok").Inc()
	return c.normalize(envelope.Results), nil
}

// normalize keeps entries that have at least a URL and a title and
// coerces scores into [0, 1]. Everything else is dropped and counted.
func (c *HTTPClient) normalize(raw []rawResult) []Result {
	out := make([]Result, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		if strings.TrimSpace(r.URL) == "" || strings.TrimSpace(r.Title) == "" {
			dropped++
			continue
		}
		out = append(out, Result{
			URL:     r.URL,
			Title:   r.Title,
			Content: r.Content,
			Score:   parseScore(r.Score),
		})
	}
	if dropped > 0 {
		metrics.SearchResultsDropped.Add(float64(dropped))
		c.logger.Debug("Dropped malformed search results", zap.Int("dropped", dropped))
	}
	return out
}

// parseScore accepts numbers or numeric strings; anything else is 0.
func parseScore(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return clamp(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f); err == nil {
			return clamp(f)
		}
	}
	return 0
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
