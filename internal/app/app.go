// Package app wires the assistant service from configuration. It is shared by
// the Lambda entry point and the local development server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"miprojet-assistant/internal/config"
	"miprojet-assistant/internal/integrations/openai"
	"miprojet-assistant/internal/integrations/paramstore"
	"miprojet-assistant/internal/metrics"
	"miprojet-assistant/internal/repository"
	"miprojet-assistant/internal/usecase"
)

// Deps carries what the service needs besides configuration.
type Deps struct {
	Logger   *slog.Logger
	Registry prometheus.Registerer
	// LoadAWS overrides how the AWS configuration is obtained.
	LoadAWS func(ctx context.Context) (aws.Config, error)
}

// NewService builds the usecase service described by cfg.
func NewService(ctx context.Context, cfg config.Config, deps Deps) (*usecase.Service, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		load := deps.LoadAWS
		if load == nil {
			load = func(ctx context.Context) (aws.Config, error) { return awsconfig.LoadDefaultConfig(ctx) }
		}
		var err error
		if awsCfg, err = load(ctx); err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
	}

	keys, err := keySource(cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	llm, err := openai.NewClient(keys,
		openai.WithBaseURL(cfg.GatewayURL),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create gateway client: %w", err)
	}

	opts := []usecase.Option{
		usecase.WithLogger(logger),
		usecase.WithRecorder(metrics.New(deps.Registry)),
	}
	if cfg.SessionsEnabled() {
		sessions, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable, repository.WithTTL(cfg.SessionTTL))
		if err != nil {
			return nil, fmt.Errorf("app: create session log: %w", err)
		}
		opts = append(opts, usecase.WithSessionLog(sessions, cfg.SessionHistoryLimit))
	}

	svc, err := usecase.NewService(llm, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create service: %w", err)
	}
	return svc, nil
}

func keySource(cfg config.Config, awsCfg aws.Config) (openai.KeySource, error) {
	if strings.TrimSpace(cfg.APIKey) != "" || strings.TrimSpace(cfg.APIKeyParameter) == "" {
		// An empty static key is reported as CONFIG_ERROR on each request.
		return openai.StaticKey(cfg.APIKey), nil
	}
	store, err := paramstore.NewKeyStore(awsssm.NewFromConfig(awsCfg), cfg.APIKeyParameter)
	if err != nil {
		return nil, fmt.Errorf("app: create key store: %w", err)
	}
	return store, nil
}
