// Package proxy serves an OpenAI-compatible HTTP API backed by GitHub Copilot.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/florianilch/copilot-proxy/internal/completions"
	"github.com/florianilch/copilot-proxy/internal/copilot"
	"github.com/florianilch/copilot-proxy/internal/observability/middleware"
)

// DefaultMaxRequestBytes limits request bodies unless configured otherwise.
const DefaultMaxRequestBytes = 32 << 20

// Upstream is the Copilot API surface the proxy needs. *copilot.Client
// implements it.
type Upstream interface {
	Chat(ctx context.Context, req copilot.ChatRequest) (*copilot.ChatCompletion, error)
	ChatStream(ctx context.Context, req copilot.ChatRequest) (iter.Seq2[*completions.Chunk, error], error)
	Models(ctx context.Context) ([]copilot.Model, error)
	Embeddings(ctx context.Context, req copilot.EmbeddingRequest) (*copilot.EmbeddingResponse, error)
}

// Compile-time check that the Copilot client satisfies Upstream.
var _ Upstream = (*copilot.Client)(nil)

// ReadinessChecker reports whether the proxy can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Proxy is the HTTP server. It implements http.Handler.
type Proxy struct {
	handler         http.Handler
	server          *http.Server
	addr            string
	logger          *slog.Logger
	maxRequestBytes int64
}

// Compile-time check that Proxy implements http.Handler.
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*Proxy)

// WithMaxRequestBytes limits request body sizes.
func WithMaxRequestBytes(n int64) Option {
	return func(p *Proxy) {
		p.maxRequestBytes = n
	}
}

// WithLogger sets the logger used for request logs. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// New creates a Proxy serving the OpenAI-compatible routes.
func New(upstream Upstream, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if upstream == nil {
		return nil, errors.New("upstream is required")
	}
	if health == nil {
		return nil, errors.New("readiness checker is required")
	}

	p := &Proxy{maxRequestBytes: DefaultMaxRequestBytes}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", &CreateChatCompletionsHandler{Upstream: upstream})
	mux.Handle("GET /v1/models", modelsHandler(upstream))
	mux.Handle("POST /v1/embeddings", embeddingsHandler(upstream))
	mux.Handle("GET /health/liveness", livenessHandler())
	mux.Handle("GET /health/readiness", readinessHandler(health))

	p.handler = applyMiddlewares(mux,
		Recovery,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(p.logger),
		middleware.RequestIDPropagation,
		RequestSizeLimit(p.maxRequestBytes),
	)

	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. Listen errors are
// returned directly; serve errors are delivered on the returned channel,
// which is closed when the server stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	p.addr = listener.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.InfoContext(ctx, "proxy listening", "addr", p.addr)
	return errCh, nil
}

// Addr returns the listener address once started.
func (p *Proxy) Addr() string {
	return p.addr
}

// Shutdown gracefully stops the server.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}
