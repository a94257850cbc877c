package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/gambit/pkg/logger"
	"github.com/okian/gambit/pkg/metrics"
)

// HTTPProvider calls an OpenAI-compatible /embeddings endpoint.
// Transient failures (network errors, 5xx, 429) are retried with
// exponential backoff, honoring Retry-After when the server sends
// one. After the retry budget is spent the call fails with
// ErrUnavailable.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) HTTPOption {
	return func(p *HTTPProvider) { p.apiKey = key }
}

// WithTimeout bounds a single attempt, not the whole retry loop.
func WithTimeout(d time.Duration) HTTPOption {
	return func(p *HTTPProvider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) HTTPOption {
	return func(p *HTTPProvider) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithBackoff sets the initial retry delay; it doubles per attempt.
func WithBackoff(d time.Duration) HTTPOption {
	return func(p *HTTPProvider) {
		if d > 0 {
			p.backoff = d
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// NewHTTPProvider creates a client for baseURL (without the
// /embeddings suffix). The dimension is the vector size the model is
// known to return; responses of a different size are rejected.
func NewHTTPProvider(baseURL, model string, dimension int, opts ...HTTPOption) (*HTTPProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	p := &HTTPProvider{
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		log:        logger.Named("embedder"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests a vector for text, retrying transient failures.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	start := time.Now()
	delay := p.backoff
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordWorkerRetry()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		vec, retryAfter, err := p.attempt(ctx, body)
		if err == nil {
			metrics.RecordEmbeddingLatency(float64(time.Since(start).Milliseconds()))
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			metrics.RecordEmbedderError()
			return nil, err
		}
		if retryAfter > 0 {
			delay = retryAfter
		}
		lastErr = err
		p.log.Debug(ctx, "embedding attempt failed",
			logger.Int("attempt", attempt+1),
			logger.Error(err))
	}

	metrics.RecordEmbedderError()
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// attempt performs one request. A positive retryAfter carries the
// server's Retry-After hint.
func (p *HTTPProvider) attempt(ctx context.Context, body []byte) (vec []float32, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, perr := strconv.Atoi(s); perr == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, retryAfter, fmt.Errorf("status %d: %w", resp.StatusCode, ErrUnavailable)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("status %d: %s: %w", resp.StatusCode, bytes.TrimSpace(msg), ErrBadRequest)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode response failed: %w: %v", ErrUnavailable, err)
	}
	if len(parsed.Data) == 0 {
		return nil, 0, fmt.Errorf("empty response: %w", ErrUnavailable)
	}
	got := parsed.Data[0].Embedding
	if len(got) != p.dimension {
		return nil, 0, fmt.Errorf("vector size %d, want %d: %w", len(got), p.dimension, ErrBadRequest)
	}
	return got, 0, nil
}

func isTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrBadRequest)
}
