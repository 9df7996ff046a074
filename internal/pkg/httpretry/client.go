// Package httpretry wraps an HTTP client so order-platform calls survive
// rate limiting and short upstream outages.
package httpretry

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/order-reconciler/internal/pkg/logger"
)

// HTTPDoer is satisfied by *http.Client and *RetryClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// policy holds the backoff parameters for one client.
type policy struct {
	attempts int // retries after the first request
	base     time.Duration
	ceiling  time.Duration
}

// wait returns the pause before retry n (1-based), honoring a server hint.
func (p policy) wait(n int, hint time.Duration) time.Duration {
	if hint > 0 {
		return min(hint, p.ceiling)
	}
	capped := math.Min(float64(p.base)*math.Pow(2, float64(n-1)), float64(p.ceiling))
	d := time.Duration(rand.Float64() * capped)
	if floor := min(100*time.Millisecond, p.base); d < floor {
		d = floor
	}
	return d
}

// RetryClient retries transient failures with jittered exponential backoff.
type RetryClient struct {
	inner HTTPDoer
	pol   policy
}

// NewRetryClient wraps client. A nil client becomes an http.Client with a
// 30s timeout; maxRetries <= 0 means 3.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		inner: client,
		pol:   policy{attempts: maxRetries, base: time.Second, ceiling: 30 * time.Second},
	}
}

// WithBackoff overrides the base and maximum delay.
func (rc *RetryClient) WithBackoff(base, max time.Duration) *RetryClient {
	rc.pol.base, rc.pol.ceiling = base, max
	return rc
}

var errRetryableStatus = errors.New("httpretry: retryable status")

// Do sends req, retrying on 429 and 5xx gateway-class responses and on
// transport errors. The response of the final attempt is returned as-is so
// callers can read its status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var (
		failure error
		hint    time.Duration
	)

	for n := 0; n <= rc.pol.attempts; n++ {
		if n > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			delay := rc.pol.wait(n, hint)
			logger.Warn("httpretry: retrying request",
				"attempt", n, "max_retries", rc.pol.attempts,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
				"wait", delay, "cause", failure)
			if err := sleep(req, delay); err != nil {
				return nil, firstNonNil(failure, err)
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		hint = 0
		resp, err := rc.inner.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			failure = err
		case !isRetryableStatus(resp.StatusCode), n == rc.pol.attempts:
			return resp, nil
		default:
			hint = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			failure = fmt.Errorf("%w %d", errRetryableStatus, resp.StatusCode)
		}
	}
	return nil, failure
}

func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: reset request body: %w", err)
	}
	req.Body = body
	return nil
}

func sleep(req *http.Request, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isRetryableStatus(code int) bool {
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

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
