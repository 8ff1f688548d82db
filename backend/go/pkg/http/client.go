package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"otherly/backend/go/internal/config"
	"otherly/backend/go/pkg/circuitbreaker"
)

// ErrTooLarge is returned when a body exceeds the client's byte limit.
var ErrTooLarge = errors.New("response body exceeds size limit")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Response is a fully read response body.
type Response struct {
	Body        []byte
	ContentType string
}

// Client downloads source documents behind a circuit breaker with a
// per-request timeout and a hard size limit.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
	maxBytes   int64
}

// NewClient creates a Client. A disabled breaker config yields a passthrough breaker.
func NewClient(cb config.CircuitBreakerConfig, timeout time.Duration, maxBytes int64) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    NewBreaker("source-fetch", cb, circuitbreaker.WithClassifier(isServerFailure)),
		maxBytes:   maxBytes,
	}
}

// WithHTTPClient swaps the underlying client, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Fetch GETs url and returns the whole body.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	var out *Response
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{URL: url, Code: resp.StatusCode}
		}
		if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
			return ErrTooLarge
		}

		body, err := readLimited(resp.Body, c.maxBytes)
		if err != nil {
			return err
		}
		out = &Response{Body: body, ContentType: contentType(resp.Header.Get("Content-Type"))}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, ErrTooLarge
	}
	return body, nil
}

// contentType strips parameters such as charset.
func contentType(header string) string {
	mt, _, _ := strings.Cut(header, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// isServerFailure counts transport errors and 5xx responses against the breaker.
func isServerFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	return true
}

// NewBreaker builds a named breaker from config; a disabled config or an
// unparseable timeout yields a breaker that never opens.
func NewBreaker(name string, cfg config.CircuitBreakerConfig, opts ...circuitbreaker.Option) circuitbreaker.CircuitBreaker {
	if !cfg.Enabled {
		return circuitbreaker.Disabled()
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return circuitbreaker.Disabled()
	}
	return circuitbreaker.New(name, cfg.FailureThreshold, cfg.SuccessThreshold, timeout, opts...)
}
