package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/copilot-proxy/internal/app"
)

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Starts the proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (host:port)",
			},
		},
		Action: startAction,
	}
}

func startAction(ctx context.Context, cmd *cli.Command) error {
	// Set up observability before creating app
	cfg, shutdown, err := setup(ctx, cmd, os.Environ, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "failed to flush telemetry", "error", err)
		}
	}()

	token, err := readGitHubToken(ctx, cfg)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, token)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting", "account_type", cfg.Upstream.AccountType)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
