package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/copilot-proxy/internal/app"
	"github.com/florianilch/copilot-proxy/internal/deviceflow"
	"github.com/florianilch/copilot-proxy/internal/transport"
)

// authCommand returns the 'auth' subcommand for managing GitHub authentication.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage GitHub authentication",
		Commands: []*cli.Command{
			authLoginCommand(),
			authImportCommand(),
			authLogoutCommand(),
			authStatusCommand(),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Authorize with GitHub using the device flow and save the credential",
		Action: authLoginAction,
	}
}

// authImportCommand returns the 'auth import' subcommand.
func authImportCommand() *cli.Command {
	return &cli.Command{
		Name:   "import",
		Usage:  "Save an existing GitHub access token",
		Action: authImportAction,
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Clear the saved GitHub credential",
		Action: authLogoutAction,
	}
}

// authStatusCommand returns the 'auth status' subcommand.
func authStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the GitHub user and Copilot service token state",
		Action: authStatusAction,
	}
}

// authLoginAction runs the GitHub device flow.
func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd, os.Environ, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return fmt.Errorf("cannot login with env storage (read-only). Configure file or keyring storage")
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	token, err := runDeviceFlow(ctx, cfg, os.Stdout)
	if err != nil {
		return fmt.Errorf("device login failed: %w", err)
	}

	if err := store.Write(ctx, token); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Login Successful ===")
	fmt.Println("Token saved to configured storage")
	printUser(ctx, cfg, token)

	return nil
}

// authImportAction stores a GitHub token pasted by the user.
func authImportAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd, os.Environ, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return fmt.Errorf("cannot import with env storage (read-only). Configure file or keyring storage")
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	token, err := readSecureInput(ctx, "GitHub access token: ")
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	client, err := app.NewClient(cfg, token)
	if err != nil {
		return err
	}
	if _, err := client.Token(ctx); err != nil {
		return fmt.Errorf("token has no Copilot access: %w", err)
	}

	if err := store.Write(ctx, token); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	fmt.Println("Token verified and saved to configured storage")
	return nil
}

// authLogoutAction clears the stored credential.
func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd, os.Environ, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return fmt.Errorf("cannot logout with env storage (read-only). Configure file or keyring storage")
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	// Clear token via empty string write to maintain storage abstraction
	if err := store.Write(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Logout Successful ===")
	fmt.Println("Credentials cleared from configured storage")

	return nil
}

// authStatusAction shows who is logged in and whether Copilot accepts the credential.
func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd, os.Environ, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	user, err := client.User(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch GitHub user: %w", err)
	}
	fmt.Printf("GitHub user:    %s\n", user.Login)

	token, err := client.Token(ctx)
	if err != nil {
		return fmt.Errorf("copilot access check failed: %w", err)
	}
	fmt.Printf("Copilot token:  valid for %s\n", token.TTL(time.Now()).Round(time.Second))
	fmt.Printf("Account type:   %s\n", cfg.Upstream.AccountType)

	return nil
}

// runDeviceFlow requests a device code, shows it to the user and waits for
// approval.
func runDeviceFlow(ctx context.Context, cfg *app.Config, out io.Writer) (string, error) {
	endpoint := deviceflow.NewEndpoint(cfg.Upstream.GitHubURL)

	code, err := deviceflow.NewAuthorizer(endpoint, deviceflow.ClientID).RequestCode(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to request device code: %w", err)
	}

	fmt.Fprintln(out, "=== GitHub Copilot Login ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "1. Visit %s\n", code.VerificationURI)
	fmt.Fprintf(out, "2. Enter the code %s\n", code.UserCode)
	fmt.Fprintln(out)

	var opts []deviceflow.PollerOption
	if isTerminal(out) {
		opts = append(opts, deviceflow.WithObserver(progressObserver(out)))
	} else {
		fmt.Fprintln(out, "Waiting for authorization...")
	}

	poller := deviceflow.NewPoller(transport.New(), endpoint.TokenURL, deviceflow.ClientID, opts...)
	token, err := poller.Poll(ctx, code)
	if isTerminal(out) {
		fmt.Fprintln(out)
	}
	return token, err
}

// progressObserver redraws a single status line per poll attempt.
func progressObserver(out io.Writer) deviceflow.ObserverFunc {
	return func(attempt, maxAttempts int) {
		fmt.Fprintf(out, "\rWaiting for authorization... (%d/%d)", attempt+1, maxAttempts)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printUser greets the user; failures only cost the greeting.
func printUser(ctx context.Context, cfg *app.Config, token string) {
	client, err := app.NewClient(cfg, token)
	if err != nil {
		return
	}
	if user, err := client.User(ctx); err == nil {
		fmt.Printf("Logged in as %s\n", user.Login)
	}
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
