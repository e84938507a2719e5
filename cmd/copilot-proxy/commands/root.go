package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "copilot-proxy",
		Usage:   "OpenAI-compatible gateway to GitHub Copilot",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
		},
		Commands: []*cli.Command{
			authCommand(),
			startCommand(),
			modelsCommand(),
			chatCommand(),
		},
	}

	return cmd.Run(ctx, args)
}
