// Package httputil builds the pooled HTTP clients used for outbound calls.
package httputil

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const defaultUserAgent = "guard_server/1.0"

// ClientConfig sizes the connection pool and bounds every phase of a call.
type ClientConfig struct {
	Timeout         time.Duration // whole request, including body read
	DialTimeout     time.Duration
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
	UserAgent       string
}

// ClassifierClientConfig is sized for a rate limited model endpoint. The
// limiter keeps concurrency low, so a small pool is enough.
func ClassifierClientConfig(timeout time.Duration) ClientConfig {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return ClientConfig{
		Timeout:         timeout,
		DialTimeout:     min(timeout, 5*time.Second),
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
	}
}

// NewClient returns a client whose transport enforces cfg and stamps a
// User-Agent on requests that lack one.
func NewClient(cfg ClientConfig) *http.Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.DialTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: userAgentTransport{next: transport, agent: cfg.UserAgent},
		Timeout:   cfg.Timeout,
	}
}

type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// ReadBody reads at most limit bytes of the body and closes it. A non-2xx
// status returns the body together with a *StatusError.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &StatusError{Code: resp.StatusCode}
	}
	return body, nil
}
