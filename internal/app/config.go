package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/copilot-proxy/internal/credstore"
	"github.com/florianilch/copilot-proxy/internal/deviceflow"
	"github.com/florianilch/copilot-proxy/internal/headers"
	"github.com/florianilch/copilot-proxy/internal/tokensource"
)

// EnvPrefix selects the environment variables read as configuration.
// Nested keys are separated by a double underscore, e.g.
// COPILOT_PROXY_SERVER__ADDR.
const EnvPrefix = "COPILOT_PROXY_"

// TokenStorageType selects the credential backend.
type TokenStorageType string

// Supported credential backends.
const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeEnv     TokenStorageType = "env"
)

// Config is the complete application configuration.
type Config struct {
	LogLevel  string          `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string          `koanf:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
}

// TelemetryConfig controls OpenTelemetry log export.
type TelemetryConfig struct {
	Exporter string `koanf:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// ServerConfig controls the local proxy listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	MaxRequestBytes int64         `koanf:"max_request_bytes" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// AuthConfig selects where the GitHub credential is kept.
type AuthConfig struct {
	Storage        TokenStorageType `koanf:"storage" validate:"oneof=file keyring env"`
	File           string           `koanf:"file" validate:"required_if=Storage file"`
	KeyringService string           `koanf:"keyring_service" validate:"required_if=Storage keyring"`
	EnvVar         string           `koanf:"env_var" validate:"required_if=Storage env"`
}

// UpstreamConfig points the client at GitHub and Copilot.
type UpstreamConfig struct {
	AccountType    string `koanf:"account_type" validate:"required,alphanum"`
	VSCodeVersion  string `koanf:"vscode_version" validate:"required"`
	GitHubURL      string `koanf:"github_url" validate:"required,url"`
	GitHubAPIURL   string `koanf:"github_api_url" validate:"required,url"`
	CopilotBaseURL string `koanf:"copilot_base_url" validate:"omitempty,url"`
}

// NewTokenStore creates the configured credential store.
func (c AuthConfig) NewTokenStore() (credstore.Store, error) {
	switch c.Storage {
	case TokenStorageTypeFile:
		return credstore.NewFileStore(c.File)
	case TokenStorageTypeKeyring:
		return credstore.NewKeyringStore(c.KeyringService), nil
	case TokenStorageTypeEnv:
		return credstore.NewEnvStore(c.EnvVar), nil
	default:
		return nil, fmt.Errorf("unsupported token storage %q", c.Storage)
	}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DefaultConfigPath returns the config file read when none is given.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "copilot-proxy", "config.toml")
}

func defaults() map[string]any {
	tokenFile := "copilot-proxy/github_token"
	if dir, err := os.UserConfigDir(); err == nil {
		tokenFile = filepath.Join(dir, tokenFile)
	}

	return map[string]any{
		"log_level":                "info",
		"log_format":               "text",
		"telemetry.exporter":       "none",
		"server.addr":              "127.0.0.1:4141",
		"server.max_request_bytes": int64(32 << 20),
		"server.shutdown_timeout":  "5s",
		"auth.storage":             string(TokenStorageTypeFile),
		"auth.file":                tokenFile,
		"auth.keyring_service":     "copilot-proxy",
		"auth.env_var":             "GITHUB_COPILOT_TOKEN",
		"upstream.account_type":    "individual",
		"upstream.vscode_version":  headers.DefaultVSCodeVersion,
		"upstream.github_url":      deviceflow.DefaultGitHubURL,
		"upstream.github_api_url":  tokensource.DefaultGitHubAPIURL,
	}
}

// LoadConfig merges defaults, the TOML file at path, environment variables
// and overrides, in increasing precedence. An empty path reads
// DefaultConfigPath if it exists. Override keys use dotted paths such as
// "server.addr".
func LoadConfig(path string, overrides map[string]any, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = DefaultConfigPath()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// envKey maps COPILOT_PROXY_SERVER__ADDR to server.addr.
func envKey(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ToLower(strings.ReplaceAll(key, "__", "."))
	return key, value
}
