package resilience

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shiploop/shiploop-api/internal/errors"
)

// PoolConfig tunes the shared transport of one integration.
type PoolConfig struct {
	MaxIdle     int
	MaxActive   int
	IdleTimeout time.Duration
	Timeout     time.Duration
	Retry       RetryConfig
}

// DefaultPoolConfig returns the transport settings used for third-party APIs
func DefaultPoolConfig() PoolConfig {
	retry := FastRetryPolicy
	retry.RetryableErrors = IsRetryable
	return PoolConfig{
		MaxIdle:     10,
		MaxActive:   20,
		IdleTimeout: 90 * time.Second,
		Timeout:     15 * time.Second,
		Retry:       retry,
	}
}

// ConnectionPool is an HTTP client for one upstream with a pooled transport,
// circuit breaker and retries on transient failures.
type ConnectionPool struct {
	name      string
	client    *http.Client
	transport *http.Transport
	breaker   *CircuitBreaker
	retry     RetryConfig
	health    *DegradationManager
}

// NewConnectionPool creates a new connection pool guarded by cb. health may be nil.
func NewConnectionPool(name string, cfg PoolConfig, cb *CircuitBreaker, health *DegradationManager) *ConnectionPool {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.MaxIdle,
		MaxConnsPerHost:       cfg.MaxActive,
		MaxIdleConnsPerHost:   max(cfg.MaxIdle/2, 1),
		IdleConnTimeout:       cfg.IdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: time.Second,
	}
	if cb == nil {
		cb = NewCircuitBreaker(name, CircuitBreakerConfig{})
	}
	if health != nil {
		health.RegisterService(name, nil)
	}

	return &ConnectionPool{
		name:      name,
		client:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		transport: transport,
		breaker:   cb,
		retry:     cfg.Retry,
		health:    health,
	}
}

// Client returns the pooled http.Client for SDKs that accept one.
func (cp *ConnectionPool) Client() *http.Client {
	return cp.client
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"name":                  cp.name,
		"max_idle":              cp.transport.MaxIdleConns,
		"max_active":            cp.transport.MaxConnsPerHost,
		"idle_timeout_ms":       cp.transport.IdleConnTimeout.Milliseconds(),
		"circuit_breaker_state": cp.breaker.State().String(),
	}
}

// DoRequest executes an HTTP request with circuit breaker protection and retries.
// Non-2xx responses that are not worth retrying are returned to the caller as-is.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Response, error) {
	var resp *http.Response

	err := RetryWithConfig(ctx, cp.retry, func() error {
		return cp.breaker.Call(func() error {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, url, reader)
			if err != nil {
				return err
			}
			for key, value := range headers {
				req.Header.Set(key, value)
			}

			start := time.Now()
			r, err := cp.client.Do(req)
			duration := time.Since(start)
			if err != nil {
				slog.Warn("Upstream request failed", "service", cp.name, "url", url, "error", err, "duration_ms", duration.Milliseconds())
				cp.record(false)
				return errors.NewNetworkError(fmt.Sprintf("%s request failed", cp.name), err)
			}

			slog.Debug("Upstream request completed", "service", cp.name, "url", url, "status", r.StatusCode, "duration_ms", duration.Milliseconds())

			if isRetryableHTTPStatus(r.StatusCode) {
				drain(r)
				cp.record(false)
				return NewHTTPError(r.StatusCode, r.Status)
			}

			cp.record(true)
			resp = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Guard runs an SDK call that uses Client() through the same breaker,
// retry policy and health accounting as DoRequest.
func (cp *ConnectionPool) Guard(ctx context.Context, fn func(ctx context.Context) error) error {
	return RetryWithConfig(ctx, cp.retry, func() error {
		return cp.breaker.Call(func() error {
			err := fn(ctx)
			cp.record(err == nil)
			return err
		})
	})
}

func (cp *ConnectionPool) record(success bool) {
	if cp.health != nil {
		cp.health.RecordRequest(cp.name, success)
	}
}

// Close releases idle connections
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	slog.Debug("Connection pool closed", "service", cp.name)
	return nil
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
	_ = r.Body.Close()
}

// IsRetryable extends errors.IsRetryableError with retryable upstream statuses.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var cbErr *CircuitBreakerError
	if stderrors.As(err, &cbErr) {
		return false
	}
	return errors.IsRetryableError(err)
}
