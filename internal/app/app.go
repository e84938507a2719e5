// Package app wires configuration, the Copilot client and the proxy server
// into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/copilot-proxy/internal/copilot"
	"github.com/florianilch/copilot-proxy/internal/proxy"
	"github.com/florianilch/copilot-proxy/internal/tokensource"
	"github.com/florianilch/copilot-proxy/internal/transport"
)

// warmUpRetryInterval separates attempts to obtain the first service token.
const warmUpRetryInterval = 10 * time.Second

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *Config
	client *copilot.Client
	health *Health
	proxy  *proxy.Proxy

	retryInterval time.Duration
}

// Option configures an App.
type Option func(*options)

type options struct {
	transport transport.Transport
}

// WithTransport replaces the HTTP transport used for GitHub and Copilot.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// NewClient creates a Copilot client for githubToken from cfg. The client's
// service token cache is shared by all its callers.
func NewClient(cfg *Config, githubToken string, opts ...Option) (*copilot.Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = transport.New()
	}

	fetcher := tokensource.NewCopilotFetcher(o.transport, githubToken,
		tokensource.WithGitHubAPIURL(cfg.Upstream.GitHubAPIURL),
		tokensource.WithVSCodeVersion(cfg.Upstream.VSCodeVersion),
	)

	clientOpts := []copilot.Option{
		copilot.WithTransport(o.transport),
		copilot.WithTokenProvider(tokensource.NewShared(tokensource.NewRefresher(fetcher))),
		copilot.WithAccountType(cfg.Upstream.AccountType),
		copilot.WithGitHubAPIURL(cfg.Upstream.GitHubAPIURL),
		copilot.WithVSCodeVersion(cfg.Upstream.VSCodeVersion),
	}
	if cfg.Upstream.CopilotBaseURL != "" {
		clientOpts = append(clientOpts, copilot.WithBaseURL(cfg.Upstream.CopilotBaseURL))
	}

	return copilot.New(githubToken, clientOpts...)
}

// New creates a new App instance serving Copilot with githubToken.
func New(cfg *Config, githubToken string, opts ...Option) (*App, error) {
	client, err := NewClient(cfg, githubToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create copilot client: %w", err)
	}

	health := NewHealth()
	proxyServer, err := proxy.New(client, health, proxy.WithMaxRequestBytes(cfg.Server.MaxRequestBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:           cfg,
		client:        client,
		health:        health,
		proxy:         proxyServer,
		retryInterval: warmUpRetryInterval,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "addr", a.cfg.Server.Addr)
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		return a.warmUp(gCtx)
	})

	runtimeErr := g.Wait()

	slog.InfoContext(ctx, "shutting down services")
	a.health.SetReady(false)

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.InfoContext(ctx, "application stopped")
	return nil
}

// warmUp obtains the first service token and marks the app ready. Transient
// failures are retried; a rejected GitHub credential stops the app.
func (a *App) warmUp(ctx context.Context) error {
	for {
		token, err := a.client.Token(ctx)
		if err == nil {
			a.health.SetReady(true)
			slog.InfoContext(ctx, "copilot service token obtained", "token", token)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		var fetchErr *tokensource.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Unauthorized() {
			return fmt.Errorf("github credential rejected, run 'auth login' again: %w", err)
		}

		slog.WarnContext(ctx, "failed to obtain copilot service token, retrying",
			"error", err, "retry_in", a.retryInterval)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.retryInterval):
		}
	}
}

// Addr returns the address the proxy listens on once started.
func (a *App) Addr() string {
	return a.proxy.Addr()
}

// Ready reports whether the app has obtained a service token.
func (a *App) Ready() bool {
	return a.health.IsReady()
}
