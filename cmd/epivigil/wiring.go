package main

import (
	"errors"
	"io/fs"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/epivigil/epivigil"
	"github.com/epivigil/epivigil/internal/adapters/analytics"
	"github.com/epivigil/epivigil/internal/adapters/dictionary"
	"github.com/epivigil/epivigil/internal/adapters/news"
	"github.com/epivigil/epivigil/internal/config"
	"github.com/epivigil/epivigil/internal/logging"
	"github.com/epivigil/epivigil/pkg/adapters/memory"
	"github.com/epivigil/epivigil/pkg/adapters/openai"
	epiredis "github.com/epivigil/epivigil/pkg/adapters/redis"
	"github.com/epivigil/epivigil/pkg/guardrails"
	"github.com/epivigil/epivigil/pkg/observability"
	"github.com/epivigil/epivigil/pkg/persistence/middleware"
	"github.com/epivigil/epivigil/pkg/ports"
)

// loadSettings reads the configuration named by the persistent --config flag.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// buildEngine wires collaborators, persistence and guardrails from settings.
// A nil metrics instance disables instrumentation.
func buildEngine(settings config.Settings, logger *slog.Logger, metrics *observability.Metrics) (*epivigil.Engine, error) {
	modelOpts := []openai.Option{}
	if settings.Model.BaseURL != "" {
		modelOpts = append(modelOpts, openai.WithBaseURL(settings.Model.BaseURL))
	}
	model := openai.New(settings.Model.APIKey, settings.Model.Name, modelOpts...)

	analyticsClient := analytics.New(settings.Analytics.BaseURL)
	newsClient := news.New(settings.News.BaseURL, settings.News.APIKey)

	dict, err := dictionary.Load(settings.Dictionary.Path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("dictionary catalogue not found, lookups will be empty", "path", settings.Dictionary.Path)
		dict, err = dictionary.Parse(nil)
	}
	if err != nil {
		return nil, err
	}

	opts := []epivigil.Option{epivigil.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, epivigil.WithObservability(metrics))
	}
	if settings.Workflow.StepCeiling > 0 {
		opts = append(opts, epivigil.WithStepCeiling(settings.Workflow.StepCeiling))
	}
	if settings.Security.MaxInputLen > 0 {
		guardOpts := []guardrails.Option{
			guardrails.WithMaxInputLen(settings.Security.MaxInputLen),
			guardrails.WithLogger(logger),
		}
		if metrics != nil {
			guardOpts = append(guardOpts, guardrails.WithMetrics(metrics))
		}
		opts = append(opts, epivigil.WithGuard(guardrails.New(guardOpts...)))
	}

	store, storeOpts, err := buildStore(settings)
	if err != nil {
		return nil, err
	}
	opts = append(opts, epivigil.WithStore(store))
	opts = append(opts, storeOpts...)

	return epivigil.New(epivigil.Collaborators{
		Model:      model,
		Metrics:    analyticsClient,
		Query:      analyticsClient,
		Dictionary: dict,
		News:       newsClient,
	}, opts...)
}

// buildStore selects redis or memory persistence and stacks the configured
// hardening middleware on top.
func buildStore(settings config.Settings) (ports.CheckpointStore, []epivigil.Option, error) {
	var (
		store ports.CheckpointStore
		opts  []epivigil.Option
	)
	if settings.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
		store = epiredis.NewFromClient(client)
		opts = append(opts, epivigil.WithLocker(epiredis.NewLocker(client, epiredis.DefaultPrefix)))
	} else {
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if len(settings.Security.MaskFields) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(settings.Security.MaskFields))
	}
	key, err := settings.EncryptionKey()
	if err != nil {
		return nil, nil, err
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return middleware.Chain(store, mws...), opts, nil
}

// newLogger builds the structured logger from the log settings.
func newLogger(settings config.Settings) *slog.Logger {
	return logging.FromConfig(settings.Log.Format, settings.Log.Level)
}
