package woocommerce

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shipzone-sync/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// APIError is an error response from the store's REST API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store API error (status %d)", e.Status)
	}
	return fmt.Sprintf("store API error (status %d, %s): %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client talks to a WooCommerce REST API (wp-json/wc/v3) using consumer
// key/secret basic auth. Every response has its "_links" hypermedia field
// removed before it is decoded.
type Client struct {
	baseURL        *url.URL
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     uint64
	maxElapsed     time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit bounds outgoing requests per second.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithRetry sets how often and for how long a temporary failure is retried.
func WithRetry(maxRetries uint64, maxElapsed time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.maxElapsed = maxElapsed
	}
}

// NewClient creates a store client. baseURL is the API root, for example
// https://shop.example.com/wp-json/wc/v3/.
func NewClient(baseURL, consumerKey, consumerSecret string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store base URL: %w", err)
	}

	c := &Client{
		baseURL:        u,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: 3,
		maxElapsed: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete removes a resource. Shipping resources are not trashable, so the
// request always forces deletion.
func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, path, url.Values{"force": {"true"}}, nil, out)
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     300 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      c.maxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, c.maxRetries), ctx)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})
	if query != nil {
		u.RawQuery = query.Encode()
	}

	// POST creates a new zone or method instance on every call, so it is only
	// retried when the store cannot have acted on it.
	idempotent := method != http.MethodPost

	attempt := 0
	var respBody []byte
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth(c.consumerKey, c.consumerSecret)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.StoreRequest(method, path, 0, time.Since(start), attempt, err)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			err = fmt.Errorf("store request failed: %w", err)
			if !idempotent && !isDialError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			err = fmt.Errorf("failed to read store response: %w", err)
			if !idempotent {
				return backoff.Permanent(err)
			}
			return err
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.Unmarshal(data, apiErr)
			logger.StoreRequest(method, path, resp.StatusCode, time.Since(start), attempt, apiErr)
			// 4xx other than 429 is a problem with the request itself. A 5xx
			// may come after the store already created the resource.
			if !apiErr.Temporary() || (!idempotent && apiErr.Status != http.StatusTooManyRequests) {
				return backoff.Permanent(apiErr)
			}
			return apiErr
		}

		logger.StoreRequest(method, path, resp.StatusCode, time.Since(start), attempt, nil)
		respBody = data
		return nil
	}

	if err := backoff.Retry(operation, c.backoff(ctx)); err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	return decodeWithoutLinks(respBody, out)
}

// decodeWithoutLinks strips "_links" from the response (a single object or
// a list of objects) and decodes the rest into out.
func decodeWithoutLinks(data []byte, out interface{}) error {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to decode store response: %w", err)
	}
	generic = removeLinks(generic)

	clean, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to re-encode store response: %w", err)
	}
	if err := json.Unmarshal(clean, out); err != nil {
		return fmt.Errorf("failed to decode store response: %w", err)
	}
	return nil
}

func removeLinks(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		delete(t, "_links")
		return t
	case []interface{}:
		for i := range t {
			t[i] = removeLinks(t[i])
		}
		return t
	default:
		return v
	}
}

// isDialError reports whether err happened while connecting, before
// anything was sent.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// IsNotFound reports whether err is a 404 from the store.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
