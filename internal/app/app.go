// Package app assembles the service from configuration. The HTTP service and
// the one-shot CLI share it so both run the same pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-context-service/internal/adapter/gemini"
	kafkaadapter "github.com/couchcryptid/flood-context-service/internal/adapter/kafka"
	"github.com/couchcryptid/flood-context-service/internal/adapter/llmstub"
	"github.com/couchcryptid/flood-context-service/internal/adapter/mapbox"
	"github.com/couchcryptid/flood-context-service/internal/adapter/objectstore"
	"github.com/couchcryptid/flood-context-service/internal/adapter/openai"
	"github.com/couchcryptid/flood-context-service/internal/adapter/postgis"
	"github.com/couchcryptid/flood-context-service/internal/adapter/vectorcache"
	"github.com/couchcryptid/flood-context-service/internal/adapter/weather"
	"github.com/couchcryptid/flood-context-service/internal/config"
	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
	"github.com/couchcryptid/flood-context-service/internal/pipeline"
)

// App holds the wired pipeline and the resources that must be released on
// shutdown.
type App struct {
	Pipeline *pipeline.Pipeline
	Sinks    []domain.ResultSink
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	closers []func() error
}

// model is what a provider adapter offers.
type model interface {
	domain.LanguageModel
	domain.Embedder
}

// New builds every adapter named by cfg and the pipeline on top of them.
// Partially built resources are released when an error is returned.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (_ *App, err error) {
	if !cfg.StoreEnabled() {
		return nil, errors.New("DATABASE_URL is required")
	}
	if !cfg.GeocoderEnabled() {
		return nil, errors.New("MAPBOX_TOKEN is required")
	}

	a := &App{Logger: logger, Metrics: metrics}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := postgis.Open(ctx, cfg.DatabaseURL, cfg.DBTimeout, cfg.RetryMaxElapsed, logger)
	if err != nil {
		return nil, fmt.Errorf("open spatial store: %w", err)
	}
	a.closers = append(a.closers, func() error { store.Close(); return nil })

	client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, cfg.RetryMaxElapsed, metrics, logger)
	geocoder, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
	if err != nil {
		return nil, fmt.Errorf("create geocode cache: %w", err)
	}
	logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)

	var forecast domain.ForecastProvider
	if cfg.ForecastEnabled() {
		forecast = weather.NewClient(cfg.WeatherAPIKey, cfg.WeatherBaseURL, cfg.WeatherTimeout, cfg.RetryMaxElapsed, logger)
		logger.Info("weather forecast enabled", "max_hours", cfg.MaxForecastHours)
	} else {
		logger.Info("weather forecast disabled")
	}

	llm, err := newModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("language model configured",
		"provider", cfg.LLMProvider,
		"chat_model", cfg.ChatModel,
		"embedding_model", cfg.EmbeddingModel,
	)

	variables, err := vectorcache.Open(ctx, llm, cfg.EmbeddingModel, cfg.EmbeddingCachePath, cfg.EmbeddingCacheSize, metrics)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	a.closers = append(a.closers, variables.Close)

	catalog, err := domain.DefaultSVICatalog()
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Model:            llm,
		QueryEmbedder:    llm,
		VariableEmbedder: variables,
		Geocoder:         geocoder,
		Store:            store,
		Forecast:         forecast,
		Catalog:          catalog,
		Clock:            clockwork.NewRealClock(),
		Logger:           logger,
		Metrics:          metrics,
	}, pipeline.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.AuditEnabled {
		writer := kafkaadapter.NewAuditWriter(cfg.KafkaBrokers, cfg.KafkaAuditTopic, logger)
		a.Sinks = append(a.Sinks, writer)
		a.closers = append(a.closers, writer.Close)
		logger.Info("kafka audit enabled", "topic", cfg.KafkaAuditTopic)
	}
	if cfg.ReportsEnabled() {
		reports, err := objectstore.NewReportStore(objectstore.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.ReportBucket,
			UseSSL:    cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create report store: %w", err)
		}
		a.Sinks = append(a.Sinks, reports)
		logger.Info("report upload enabled", "bucket", cfg.ReportBucket)
	}

	return a, nil
}

func newModel(ctx context.Context, cfg *config.Config) (model, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        cfg.LLMTimeout,
			MaxElapsed:     cfg.RetryMaxElapsed,
		}), nil
	case config.ProviderGemini:
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:         cfg.GeminiAPIKey,
			BaseURL:        cfg.GeminiBaseURL,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        cfg.LLMTimeout,
			MaxElapsed:     cfg.RetryMaxElapsed,
		})
	case config.ProviderStub:
		return llmstub.New(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
