// Package client provides the CallRail v3 HTTP transport: token auth, request
// pacing, budget gating, a circuit breaker and mapping of responses onto a
// small error taxonomy. Retries are not done here; see package retry.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/callrail-extractor/pkg/ratelimit"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the CallRail API host. Endpoint paths carry the /v3 prefix.
const DefaultBaseURL = "https://api.callrail.com"

// Prometheus metrics for CallRail client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callrail_requests_total",
		Help: "Total CallRail requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callrail_request_duration_seconds",
		Help:    "CallRail request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callrail_errors_total",
		Help: "Total CallRail errors by kind",
	}, []string{"kind"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callrail_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
)

// BreakerConfig controls the circuit breaker around the HTTP call.
type BreakerConfig struct {
	Enabled bool

	// ConsecutiveFailures opens the circuit after this many server or network failures in a row.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the circuit stays open before probing again.
	OpenTimeout time.Duration
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API host, without the /v3 prefix.
	BaseURL string

	// APIKey is sent as `Authorization: Token token="<key>"`.
	APIKey string

	UserAgent string
	Timeout   time.Duration

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	Breaker BreakerConfig

	// Budget gates requests against the hourly/daily allowance. Optional.
	Budget *ratelimit.Tracker

	// HTTPClient overrides the default http.Client. Optional.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		APIKey:            apiKey,
		UserAgent:         "callrail-extractor/1.0",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             1,
		Breaker: BreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
	}
}

// Client is the CallRail API transport.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[any]
	budget     *ratelimit.Tracker
	logger     zerolog.Logger
}

// New creates a new CallRail client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "callrail-client").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		budget:     cfg.Budget,
		logger:     logger,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker, logger)
	}

	return c, nil
}

func newBreaker(cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "callrail-api",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only transient failures say anything about the health of the API.
		IsSuccessful: func(err error) bool {
			return err == nil || !KindOf(err).Retryable()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
		},
	})
}

// Get performs a GET request and returns the decoded JSON body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (any, error) {
	return c.Send(ctx, http.MethodGet, path, query, nil)
}

// Send performs one request and returns the decoded JSON body. An empty body
// decodes to an empty object. Failures are always *Error.
func (c *Client) Send(ctx context.Context, method, path string, query url.Values, body any) (any, error) {
	if c.budget != nil {
		state, err := c.budget.Reserve(ctx)
		switch {
		case errors.Is(err, ratelimit.ErrBudgetExhausted):
			errorsTotal.WithLabelValues(string(KindRateLimited)).Inc()
			requestsTotal.WithLabelValues(path, "budget_exhausted").Inc()
			return nil, &Error{
				Kind:       KindRateLimited,
				RetryAfter: state.TimeUntilReset(time.Now()),
				Message:    "local request budget exhausted",
				Err:        err,
			}
		case err != nil:
			// The budget store is advisory; a broken store must not stop extraction.
			c.logger.Warn().Err(err).Msg("Budget check failed, continuing without it")
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindUnreachable, Message: "request pacing interrupted", Err: err}
		}
	}

	if c.breaker == nil {
		return c.do(ctx, method, path, query, body)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, method, path, query, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		errorsTotal.WithLabelValues(string(KindUnreachable)).Inc()
		requestsTotal.WithLabelValues(path, "circuit_open").Inc()
		return nil, &Error{Kind: KindUnreachable, Message: "circuit breaker open", Err: err}
	}
	return result, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (any, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, &Error{Kind: KindUnexpected, Message: "build request", Err: err}
	}

	c.logger.Debug().
		Str("endpoint", path).
		Str("method", method).
		Str("query", req.URL.RawQuery).
		Msg("Executing CallRail request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(KindUnreachable)).Inc()
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", path).Msg("HTTP request failed")
		return nil, &Error{Kind: KindUnreachable, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	payload, readErr := io.ReadAll(resp.Body)

	if kind := kindForStatus(resp.StatusCode); kind != "" {
		apiErr := &Error{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp, payload),
		}
		if kind == KindRateLimited {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		errorsTotal.WithLabelValues(string(kind)).Inc()
		c.logger.Warn().
			Str("endpoint", path).
			Int("status", resp.StatusCode).
			Str("error_kind", string(kind)).
			Msg("CallRail request error")
		return nil, apiErr
	}

	if readErr != nil {
		errorsTotal.WithLabelValues(string(KindUnreachable)).Inc()
		return nil, &Error{Kind: KindUnreachable, StatusCode: resp.StatusCode, Message: "read body", Err: readErr}
	}

	return decodeBody(payload, resp.StatusCode)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Token token=%q", c.config.APIKey))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	return req, nil
}

// decodeBody decodes a success body. Numbers stay json.Number so that large
// ids render exactly in flat output.
func decodeBody(payload []byte, status int) (any, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		errorsTotal.WithLabelValues(string(KindUnexpected)).Inc()
		return nil, &Error{Kind: KindUnexpected, StatusCode: status, Message: "decode response", Err: err}
	}
	return out, nil
}

// errorMessage extracts a readable message from an error body, falling back to the status text.
func errorMessage(resp *http.Response, payload []byte) string {
	var body struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if len(payload) > 0 && json.Unmarshal(payload, &body) == nil {
		switch v := body.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return resp.Status
}
