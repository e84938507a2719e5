package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	defaultRequestTimeout = 120 * time.Second
	defaultConnectTimeout = 30 * time.Second

	// maxErrorBodyBytes bounds how much of a failed streaming response is kept.
	maxErrorBodyBytes = 1 << 20
)

// HTTP implements Transport on top of net/http.
type HTTP struct {
	client         *http.Client
	requestTimeout time.Duration
}

// Compile-time check that HTTP implements Transport.
var _ Transport = (*HTTP)(nil)

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithRoundTripper replaces the underlying round tripper (e.g. for proxies or tests).
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(h *HTTP) {
		h.client.Transport = rt
	}
}

// WithRequestTimeout bounds non-streaming requests, including reading the body.
// Streaming requests are bounded only by their context.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		h.requestTimeout = d
	}
}

// New creates an HTTP transport.
func New(opts ...Option) *HTTP {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = (&net.Dialer{Timeout: defaultConnectTimeout}).DialContext

	h := &HTTP{
		client: &http.Client{
			Transport: base,
			// Client.Timeout = 0 allows long-running SSE streams
		},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Post implements Transport.
func (h *HTTP) Post(ctx context.Context, url string, body any, header http.Header) (*Response, error) {
	return h.roundTrip(ctx, http.MethodPost, url, body, header)
}

// Get implements Transport.
func (h *HTTP) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return h.roundTrip(ctx, http.MethodGet, url, nil, header)
}

// PostStreaming implements Transport.
func (h *HTTP) PostStreaming(ctx context.Context, url string, body any, header http.Header) (io.ReadCloser, error) {
	req, err := newRequest(ctx, http.MethodPost, url, body, header)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("streaming request failed: %w", err)
	}

	slog.DebugContext(ctx, "upstream stream opened", "method", req.Method, "url", url, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: errBody}
	}

	return resp.Body, nil
}

func (h *HTTP) roundTrip(ctx context.Context, method, url string, body any, header http.Header) (*Response, error) {
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	req, err := newRequest(ctx, method, url, body, header)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	slog.DebugContext(ctx, "upstream request completed",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func newRequest(ctx context.Context, method, url string, body any, header http.Header) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	// Continue the caller's W3C trace upstream; no-op without trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}
