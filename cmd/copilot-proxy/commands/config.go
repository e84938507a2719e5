package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/copilot-proxy/internal/app"
	"github.com/florianilch/copilot-proxy/internal/copilot"
	"github.com/florianilch/copilot-proxy/internal/credstore"
	"github.com/florianilch/copilot-proxy/internal/observability"
)

// flagOverrides maps CLI flags to config keys.
var flagOverrides = map[string]string{
	"log-level":  "log_level",
	"log-format": "log_format",
	"addr":       "server.addr",
}

// loadConfig loads the config at path with explicitly set flags applied on top.
func loadConfig(path string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	overrides := make(map[string]any)
	for flag, key := range flagOverrides {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}
	return app.LoadConfig(path, overrides, environ)
}

// setup loads the config and installs logging to logOutput. The returned
// function flushes exported logs.
func setup(ctx context.Context, cmd *cli.Command, environ func() []string, logOutput io.Writer) (*app.Config, observability.ShutdownFunc, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:    cfg.SlogLevel(),
		Format:   cfg.LogFormat,
		Exporter: cfg.Telemetry.Exporter,
		Output:   logOutput,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, shutdown, nil
}

// readGitHubToken reads the stored GitHub credential.
func readGitHubToken(ctx context.Context, cfg *app.Config) (string, error) {
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return "", fmt.Errorf("failed to create token store: %w", err)
	}

	token, err := store.Read(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		return "", fmt.Errorf("not logged in, run 'copilot-proxy auth login' first")
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

// newClient creates a Copilot client from the stored credential.
func newClient(ctx context.Context, cfg *app.Config) (*copilot.Client, error) {
	token, err := readGitHubToken(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app.NewClient(cfg, token)
}
