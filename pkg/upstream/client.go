// Package upstream calls the external customer-engagement API on behalf of a
// data request.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/observability"
)

// Configuration keys read from a data request
const (
	ConfigFilters = "cioFilters"
)

// DefaultMaxResponseBytes bounds an upstream body when Config leaves it unset
const DefaultMaxResponseBytes = 32 << 20

var (
	// ErrResponseTooLarge is returned when the body exceeds the configured bound
	ErrResponseTooLarge = errors.New("upstream response too large")
	// ErrInvalidResponse is returned when a 2xx body is not JSON
	ErrInvalidResponse = errors.New("upstream response is not valid JSON")
)

// Config for the upstream client
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	RateBurst int

	// MaxResponseBytes caps the body read from the source
	MaxResponseBytes int64
}

// StatusError is returned when the source answers with a non-2xx status.
// Body holds the decoded JSON payload, or the raw text when it is not JSON.
type StatusError struct {
	StatusCode int
	Body       any
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Client runs data requests against the source API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	maxBody int64
	metrics *observability.Metrics
}

// Option customizes a Client
type Option func(*Client)

// WithMetrics records upstream request counts
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client. The API key is sent as a bearer token and every
// request is traced.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid upstream base URL %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.APIKey != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBytes
	}

	c := &Client{
		baseURL: base,
		maxBody: maxBody,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		limiter: limiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observability.NewNopMetrics()
	}
	return c, nil
}

// Run sends the data request to the source and returns the decoded payload
func (c *Client) Run(ctx context.Context, dr *models.DataRequest) (*models.ResponseData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := c.buildRequest(ctx, dr)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.UpstreamRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.UpstreamRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()

	// one byte past the bound tells a full body from a cut one
	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	if int64(len(raw)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: decodeErrorBody(raw)}
	}

	payload, err := decodeBody(raw)
	if err != nil {
		return nil, err
	}
	return &models.ResponseData{Data: capItems(payload, dr.ItemsLimit)}, nil
}

func (c *Client) buildRequest(ctx context.Context, dr *models.DataRequest) (*http.Request, error) {
	method := models.NormalizeMethod(dr.Method)
	if method == "" {
		method = http.MethodGet
	}

	u := c.baseURL.JoinPath(strings.TrimPrefix(dr.Route, "/"))

	var body io.Reader
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		payload := map[string]any{}
		if filters, ok := dr.Configuration[ConfigFilters]; ok && filters != nil {
			payload["filter"] = filters
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	default:
		u.RawQuery = queryFromConfig(dr.Configuration).Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// queryFromConfig turns scalar configuration entries into query parameters.
// Nested values only make sense in a request body and are skipped.
func queryFromConfig(config map[string]any) url.Values {
	q := url.Values{}
	for k, v := range config {
		switch val := v.(type) {
		case string:
			q.Set(k, val)
		case bool:
			q.Set(k, strconv.FormatBool(val))
		case float64:
			q.Set(k, strconv.FormatFloat(val, 'f', -1, 64))
		case int:
			q.Set(k, strconv.Itoa(val))
		case int64:
			q.Set(k, strconv.FormatInt(val, 10))
		case json.Number:
			q.Set(k, val.String())
		}
	}
	return q
}

// decodeBody decodes a successful reply. An empty body is a nil payload.
func decodeBody(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return payload, nil
}

// decodeErrorBody keeps the raw text of a failed reply when it is not JSON
func decodeErrorBody(raw []byte) any {
	payload, err := decodeBody(raw)
	if err != nil {
		return string(raw)
	}
	return payload
}

// capItems limits a list payload, or each list value of an object payload, to limit items
func capItems(payload any, limit int) any {
	if limit <= 0 {
		return payload
	}
	switch v := payload.(type) {
	case []any:
		if len(v) > limit {
			return v[:limit]
		}
	case map[string]any:
		for k, inner := range v {
			if list, ok := inner.([]any); ok && len(list) > limit {
				v[k] = list[:limit]
			}
		}
	}
	return payload
}

// IsStatusError reports whether err carries an upstream status, returning it
func IsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
