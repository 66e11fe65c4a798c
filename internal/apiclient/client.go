// Package apiclient implements the shared HTTP machinery for the upstream
// government API clients: rate-limited request execution with retry and
// backoff, and pagination over the incompatible paging idioms the upstreams
// use (opaque offsetMark tokens vs. numeric offset/limit).
//
// Each upstream package (govinfo, congress, openstates) supplies two hooks —
// extract the items from a page and extract the next-page descriptor — and
// gets back a single lazy item sequence regardless of paging style.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Item is one decoded domain record from an upstream page response.
type Item = map[string]any

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultRateLimitCalls  = 100
	DefaultRateLimitPeriod = time.Hour
	DefaultMaxRetries      = 3
	DefaultBackoffBase     = time.Second
	DefaultTimeout         = 30 * time.Second

	// maxResponseSize bounds response reads to prevent resource exhaustion.
	maxResponseSize = 10 << 20

	// defaultRetryAfter is used when a 503 carries an unparseable
	// Retry-After value.
	defaultRetryAfter = 30 * time.Second
)

// RequestError is returned when a request still fails after the retry budget
// is exhausted. It carries the upstream status and (truncated) body so
// callers can decide whether the failure is per-item or fatal.
type RequestError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// PageToken describes how to reach the next page. OffsetMark is the opaque
// token idiom (GovInfo); Page covers the numeric page idiom. The pagination
// loop advances its own offset cursor, so upstreams that paginate by plain
// offset return an empty token to continue. A nil *PageToken from the
// NextPage hook terminates pagination.
type PageToken struct {
	OffsetMark string
	Page       int
}

// Hooks adapt one upstream's response shape to the shared pagination loop.
// Both functions must be pure: no I/O, no mutation of the page.
type Hooks struct {
	// ExtractItems returns the domain items contained in one page response.
	ExtractItems func(page map[string]any) []Item

	// NextPage returns the next-page descriptor, or nil when the listing
	// is exhausted.
	NextPage func(page map[string]any) *PageToken
}

// Config configures a Client.
type Config struct {
	BaseURL string

	// RateLimitCalls per RateLimitPeriod. Calls beyond the budget block
	// until capacity is available; they never fail.
	RateLimitCalls  int
	RateLimitPeriod time.Duration

	// MaxRetries is the generic retry budget per logical call. A 503 with
	// Retry-After does not consume it.
	MaxRetries  int
	BackoffBase time.Duration

	Timeout   time.Duration
	UserAgent string

	// Headers and Params inject per-request authentication. Exactly one is
	// typically set, matching the upstream's convention (header key vs.
	// query-param key). Keys injected here are never logged.
	Headers func(h http.Header)
	Params  func(q url.Values)

	Hooks Hooks

	Logger *slog.Logger

	// HTTPClient and Sleep are test seams. Defaults: a timeout-bound
	// http.Client and time.Sleep.
	HTTPClient *http.Client
	Sleep      func(time.Duration)
}

// Client executes JSON requests against one upstream base URL.
// Client is not safe for concurrent use; each ingestion run owns its own.
type Client struct {
	baseURL     string
	httpc       *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
	userAgent   string
	headers     func(h http.Header)
	params      func(q url.Values)
	hooks       Hooks
	logger      *slog.Logger
	sleep       func(time.Duration)
}

// New creates a Client. Zero Config fields get the package defaults.
func New(cfg Config) *Client {
	if cfg.RateLimitCalls <= 0 {
		cfg.RateLimitCalls = DefaultRateLimitCalls
	}
	if cfg.RateLimitPeriod <= 0 {
		cfg.RateLimitPeriod = DefaultRateLimitPeriod
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Budget of RateLimitCalls per trailing RateLimitPeriod: one admission
	// every period/calls with no burst, so the calls+1th request cannot
	// start before one full period has elapsed since the first.
	every := cfg.RateLimitPeriod / time.Duration(cfg.RateLimitCalls)
	limiter := rate.NewLimiter(rate.Every(every), 1)

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpc:       cfg.HTTPClient,
		limiter:     limiter,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		userAgent:   cfg.UserAgent,
		headers:     cfg.Headers,
		params:      cfg.Params,
		hooks:       cfg.Hooks,
		logger:      cfg.Logger,
		sleep:       cfg.Sleep,
	}
}

// Get executes a GET request and returns the decoded JSON body.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, endpoint, params, nil)
}

// Post executes a POST request with a JSON body and returns the decoded
// JSON response.
func (c *Client) Post(ctx context.Context, endpoint string, data any, params url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, endpoint, params, data)
}

// retryableStatus reports whether a status code is a transient upstream
// failure worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do executes one logical request: rate-limit wait, then the request itself,
// retried with exponential backoff on transient failures. A 503 carrying
// Retry-After sleeps exactly that long and retries without consuming the
// generic budget — upstream told us exactly how long to wait.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body any) (map[string]any, error) {
	reqURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	query := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	if c.params != nil {
		c.params(query)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body for %s: %w", endpoint, err)
		}
	}

	budget := c.maxRetries
	backoff := c.backoffBase

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", endpoint, err)
		}

		req, err := c.newRequest(ctx, method, reqURL, query, payload)
		if err != nil {
			return nil, err
		}

		// Note: reqURL only, never the query — it may carry an API key.
		c.logger.Debug("executing request", "method", method, "url", reqURL)

		resp, err := c.httpc.Do(req)
		if err != nil {
			if budget > 0 {
				budget--
				c.logger.Warn("request failed, retrying",
					"endpoint", endpoint, "error", err, "backoff", backoff)
				c.sleep(backoff)
				backoff *= 2
				continue
			}
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if readErr != nil {
			if budget > 0 {
				budget--
				c.sleep(backoff)
				backoff *= 2
				continue
			}
			return nil, fmt.Errorf("reading response from %s: %w", endpoint, readErr)
		}

		if resp.StatusCode == http.StatusServiceUnavailable {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				wait := defaultRetryAfter
				if secs, err := strconv.Atoi(strings.TrimSpace(ra)); err == nil && secs >= 0 {
					wait = time.Duration(secs) * time.Second
				}
				c.logger.Info("received 503 with Retry-After, waiting",
					"endpoint", endpoint, "wait", wait)
				c.sleep(wait)
				continue
			}
		}

		if retryableStatus(resp.StatusCode) && budget > 0 {
			budget--
			c.logger.Warn("transient upstream status, retrying",
				"endpoint", endpoint, "status", resp.StatusCode, "backoff", backoff)
			c.sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &RequestError{
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       truncate(string(data), 512),
			}
		}

		if len(data) == 0 {
			return map[string]any{}, nil
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, fmt.Errorf("decoding response from %s: %w", endpoint, err)
		}
		return decoded, nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, reqURL string, query url.Values, payload []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", reqURL, err)
	}
	req.URL.RawQuery = query.Encode()

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.headers != nil {
		c.headers(req.Header)
	}
	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
