package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/copilot-proxy/internal/copilot"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Send a prompt and stream the answer",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "model ID",
				Value:   copilot.DefaultModel,
			},
			&cli.StringFlag{
				Name:    "system",
				Aliases: []string{"s"},
				Usage:   "system prompt",
			},
		},
		Action: chatAction,
	}
}

func chatAction(ctx context.Context, cmd *cli.Command) error {
	prompt := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if prompt == "" {
		return fmt.Errorf("a prompt is required")
	}

	cfg, shutdown, err := setup(ctx, cmd, os.Environ, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	var messages []copilot.Message
	if system := cmd.String("system"); system != "" {
		messages = append(messages, copilot.NewMessage(copilot.RoleSystem, system))
	}
	messages = append(messages, copilot.NewMessage(copilot.RoleUser, prompt))

	stream, err := client.ChatStream(ctx, copilot.ChatRequest{
		Model:    cmd.String("model"),
		Messages: messages,
	})
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}

	for chunk, err := range stream {
		if err != nil {
			fmt.Println()
			return fmt.Errorf("stream failed: %w", err)
		}
		fmt.Print(chunk.DeltaContent())
	}
	fmt.Println()

	return nil
}
