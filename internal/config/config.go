// Package config reads the function's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
)

type Config struct {
	GatewayURL      string        `env:"AI_GATEWAY_URL" envDefault:"https://ai.gateway.lovable.dev/v1"`
	APIKey          string        `env:"LOVABLE_API_KEY"`
	APIKeyParameter string        `env:"API_KEY_PARAMETER"`
	Model           string        `env:"AI_MODEL" envDefault:"google/gemini-2.5-flash"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`

	SessionTable        string        `env:"SESSION_TABLE"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionHistoryLimit int           `env:"SESSION_HISTORY_LIMIT" envDefault:"40"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once. A missing API key is not an
// error here: it is reported per request so the function still answers
// preflight requests.
func (c Config) Validate() error {
	var merr *multierror.Error
	if u, err := url.Parse(c.GatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
		merr = multierror.Append(merr, fmt.Errorf("AI_GATEWAY_URL %q is not an absolute URL", c.GatewayURL))
	}
	if c.UpstreamTimeout <= 0 {
		merr = multierror.Append(merr, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}
	if c.SessionTTL <= 0 {
		merr = multierror.Append(merr, errors.New("SESSION_TTL must be positive"))
	}
	if c.SessionHistoryLimit < 0 {
		merr = multierror.Append(merr, errors.New("SESSION_HISTORY_LIMIT must not be negative"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		merr = multierror.Append(merr, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		merr = multierror.Append(merr, fmt.Errorf("LOG_FORMAT %q must be json or text", c.LogFormat))
	}
	if err := merr.ErrorOrNil(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SessionsEnabled reports whether durable chat sessions are configured.
func (c Config) SessionsEnabled() bool {
	return strings.TrimSpace(c.SessionTable) != ""
}

// NeedsAWS reports whether any AWS client has to be built.
func (c Config) NeedsAWS() bool {
	return c.SessionsEnabled() || (strings.TrimSpace(c.APIKey) == "" && strings.TrimSpace(c.APIKeyParameter) != "")
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}
