// Package llm adapts the external completion backend. The engine only
// depends on the CompletionClient interface; the HTTP implementation
// here targets the generation service's /v1/complete endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thothlabs/coursegen/internal/metrics"
	"github.com/thothlabs/coursegen/internal/tracing"
)

// CompletionRequest carries one prompt plus sampling controls.
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// CompletionResult is the backend's raw text plus usage metadata.
type CompletionResult struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	ModelUsed  string `json:"model_used,omitempty"`
}

// CompletionClient sends a prompt to the generation backend and returns
// raw text. Implementations may fail transiently; an empty Text with a
// nil error means the backend had nothing to say (missing data, not an
// error).
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// TransientError marks a backend failure that the pipeline's stage
// retry loop should absorb.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Options configures the HTTP completion client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RatePerSecond bounds outbound calls; zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// HTTPClient is the production CompletionClient.
type HTTPClient struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPClient builds a completion client for the given backend.
func NewHTTPClient(opts Options, logger *zap.Logger) *HTTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &HTTPClient{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// Complete posts the prompt and returns the backend's text. Transport
// failures, non-2xx statuses, and undecodable envelopes all surface as
// TransientError so the caller's retry policy can engage.
func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return CompletionResult{}, &TransientError{Op: "completion", Err: err}
		}
	}

	ctx, span := tracing.StartBackendSpan(ctx, "llm.complete",
		attribute.Int("prompt_len", len(req.Prompt)),
		attribute.Int("max_tokens", req.MaxTokens),
	)
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("marshal completion request: %w", err)
	}

	url := c.base + "/v1/complete"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.CompletionCalls.WithLabelValues("error").Inc()
		return CompletionResult{}, &TransientError{Op: "completion", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.CompletionCalls.WithLabelValues("error").Inc()
		return CompletionResult{}, &TransientError{
			Op:  "completion",
			Err: fmt.Errorf("backend returned status %d", resp.StatusCode),
		}
	}

	var out CompletionResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.CompletionCalls.WithLabelValues("error").Inc()
		return CompletionResult{}, &TransientError{Op: "completion", Err: fmt.Errorf("decode response: %w", err)}
	}

	metrics.CompletionCalls.WithLabelValues("ok").Inc()
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())

	if strings.TrimSpace(out.Text) == "" {
		c.logger.Warn("Completion backend returned empty text",
			zap.Int("prompt_len", len(req.Prompt)),
		)
	}
	return out, nil
}
