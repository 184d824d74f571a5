// Package external provides the anti-corruption layer between notification
// domain logic and third-party vendor APIs (identity directory, email
// delivery). Outbound HTTP traffic from vendor SDKs is routed through a
// BreakerTransport so every upstream shares the same circuit breaking,
// request id propagation and error mapping.
package external

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"meteonotify/internal/types"

	"github.com/sony/gobreaker/v2"
)

// errUpstreamStatus marks a response that counts as a breaker failure but is
// still handed back to the SDK so it can decode the vendor error body.
var errUpstreamStatus = errors.New("upstream returned failure status")

// BreakerTransport is an http.RoundTripper that wraps a base transport with a
// circuit breaker. Requests are attempted exactly once; there are no retries.
type BreakerTransport struct {
	base      http.RoundTripper
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// NewBreakerTransport creates a BreakerTransport named after the upstream it
// guards. A nil base uses http.DefaultTransport.
func NewBreakerTransport(name string, base http.RoundTripper, userAgent string) *BreakerTransport {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return NewBreakerTransportWithBreaker(cb, base, userAgent)
}

// NewBreakerTransportWithBreaker creates a BreakerTransport with a
// caller-provided circuit breaker.
func NewBreakerTransportWithBreaker(breaker *gobreaker.CircuitBreaker[*http.Response], base http.RoundTripper, userAgent string) *BreakerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &BreakerTransport{
		base:      base,
		breaker:   breaker,
		userAgent: userAgent,
	}
}

// RoundTrip executes the request inside the circuit breaker:
//  1. Request id injection (X-Request-ID from context)
//  2. User-Agent header injection
//  3. 5xx and 429 responses count as breaker failures
//
// Responses of any status are returned unchanged so the vendor SDK can map
// them. Transport failures and an open breaker surface as types.AppError.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())

	if requestID := types.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		r, doErr := t.base.RoundTrip(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("%w: %d", errUpstreamStatus, r.StatusCode)
		}
		return r, nil
	})

	if errors.Is(err, errUpstreamStatus) {
		return resp, nil
	}
	if err != nil {
		return nil, mapTransportError(err)
	}
	return resp, nil
}

// mapTransportError translates breaker and network failures into AppErrors.
func mapTransportError(err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			"circuit breaker is open; upstream service unavailable",
			err,
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamUnavailable,
		"upstream request failed",
		err,
	)
}

// NewHTTPClient returns an *http.Client whose transport is a BreakerTransport
// named name. The timeout bounds a single attempt.
func NewHTTPClient(name string, timeout time.Duration, userAgent string) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewBreakerTransport(name, nil, userAgent),
	}
}
