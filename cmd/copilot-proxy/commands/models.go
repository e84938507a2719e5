package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:   "models",
		Usage:  "List the models available to the account",
		Action: modelsAction,
	}
}

func modelsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd, os.Environ, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	models, err := client.Models(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVENDOR\tCONTEXT\tPREVIEW")
	for _, m := range models {
		window := "-"
		if n := m.Capabilities.Limits.MaxContextWindowTokens; n > 0 {
			window = fmt.Sprint(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", m.ID, m.Name, m.Vendor, window, m.Preview)
	}
	return tw.Flush()
}
