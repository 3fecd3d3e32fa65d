// Package waterfall is the HTTP client for the Waterfall data service.
package waterfall

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

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/schemabounce/waterfall-bridge/types"
)

// ClientConfig configures the Waterfall client.
type ClientConfig struct {
	// Timeout bounds each call (default: 30s).
	Timeout time.Duration

	// RateLimit paces outbound calls in requests per second. Zero means
	// unpaced.
	RateLimit float64

	// RateBurst is the limiter burst size (default: 1).
	RateBurst int

	// UserAgent string (default: "waterfall-bridge").
	UserAgent string

	// Headers to add to all requests.
	Headers map[string]string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper

	Logger hclog.Logger
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:   30 * time.Second,
		RateBurst: 1,
		UserAgent: "waterfall-bridge",
		Headers:   make(map[string]string),
	}
}

// Client issues single-attempt calls against the service. Failed calls are
// never retried.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      hclog.Logger
}

// NewClient creates a new client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateBurst <= 0 {
		config.RateBurst = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = "waterfall-bridge"
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	logger := config.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(limit, config.RateBurst),
		logger:      logger,
	}
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.config.Timeout
}

// do executes one request and returns the body of a 2xx answer.
func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	applyCredential(ctx, req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "url", target, "error", err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.logger.Debug("request completed",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// GetCollection fetches a JSON array of records from collectionURL.
func (c *Client) GetCollection(ctx context.Context, collectionURL string) (types.Collection, error) {
	data, err := c.do(ctx, http.MethodGet, collectionURL, nil)
	if err != nil {
		return nil, err
	}
	return decodeCollection(data)
}

// ListCollection fetches the full collection of resource under baseURL.
func (c *Client) ListCollection(ctx context.Context, baseURL, resource string) (types.Collection, error) {
	return c.GetCollection(ctx, JoinURL(baseURL, resource))
}

// GetRecord fetches one record of resource under baseURL.
func (c *Client) GetRecord(ctx context.Context, baseURL, resource, id string) (types.Record, error) {
	data, err := c.do(ctx, http.MethodGet, JoinURL(baseURL, resource, id), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// CreateRecord posts record to collectionURL and returns the created
// record as answered by the service.
func (c *Client) CreateRecord(ctx context.Context, collectionURL string, record types.Record) (types.Record, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, collectionURL, body)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

func decodeCollection(data []byte) (types.Collection, error) {
	raw, err := types.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, ok := raw.([]any); !ok {
		return nil, fmt.Errorf("%w, got %s", ErrNotArray, jsonKind(raw))
	}
	collection, err := types.AsCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	return collection, nil
}

func decodeRecord(data []byte) (types.Record, error) {
	raw, err := types.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	record, ok := types.AsRecord(raw)
	if !ok {
		return nil, fmt.Errorf("%w, got %s", ErrNotObject, jsonKind(raw))
	}
	return record, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// JoinURL appends escaped path segments to base.
func JoinURL(base string, segments ...string) string {
	out := strings.TrimSuffix(base, "/")
	for _, s := range segments {
		out += "/" + url.PathEscape(strings.Trim(s, "/"))
	}
	return out
}

// SplitCollectionURL splits a collection URL into the service base URL and
// the resource name, e.g. http://host/api/tasks?x=1 into http://host/api and
// tasks. The query string is dropped.
func SplitCollectionURL(collectionURL string) (base, resource string) {
	trimmed := collectionURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")

	i := strings.LastIndex(trimmed, "/")
	if i < 0 || strings.HasSuffix(trimmed[:i], "/") {
		// No path segment after the host.
		return trimmed, ""
	}
	return trimmed[:i], trimmed[i+1:]
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}
