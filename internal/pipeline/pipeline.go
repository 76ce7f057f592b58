// Package pipeline answers flood-risk questions: interpret the question,
// retrieve context for each place, filter it to what is relevant, and ground
// a generated answer in the result.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-context-service/internal/config"
	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
)

// Options are the tunables the pipeline reads. No component reads the
// environment itself.
type Options struct {
	RequestTimeout        time.Duration
	SVIReleaseYear        int
	ReverseGeocodeLimit   int
	MaxForecastHours      int
	DefaultMaxEvents      int
	DefaultSVIThreshold   float64
	RecentYears           int
	LocationConcurrency   int
	GenerationTemperature float64
	GenerationRetryDelay  time.Duration
}

// OptionsFromConfig maps service configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RequestTimeout:        cfg.RequestTimeout,
		SVIReleaseYear:        cfg.SVIReleaseYear,
		ReverseGeocodeLimit:   cfg.ReverseGeocodeLimit,
		MaxForecastHours:      cfg.MaxForecastHours,
		DefaultMaxEvents:      cfg.DefaultMaxEvents,
		DefaultSVIThreshold:   cfg.DefaultSVIThreshold,
		RecentYears:           cfg.RecentYears,
		LocationConcurrency:   cfg.LocationConcurrency,
		GenerationTemperature: cfg.GenerationTemperature,
		GenerationRetryDelay:  time.Second,
	}
}

func (o Options) intentDefaults() domain.IntentDefaults {
	return domain.IntentDefaults{MaxEvents: o.DefaultMaxEvents, SVIThreshold: o.DefaultSVIThreshold}
}

// Deps are the capabilities the pipeline is built from. Forecast, Geocoder
// reverse lookups and the embedders degrade gracefully when nil; Model,
// Geocoder and Store are required.
type Deps struct {
	Model            domain.LanguageModel
	QueryEmbedder    domain.Embedder
	VariableEmbedder domain.Embedder
	Geocoder         domain.Geocoder
	Store            domain.SpatialStore
	Forecast         domain.ForecastProvider
	Catalog          *domain.SVICatalog
	Clock            clockwork.Clock
	Logger           *slog.Logger
	Metrics          *observability.Metrics
}

// Pipeline runs the staged ask flow.
type Pipeline struct {
	interpreter *Interpreter
	retriever   *Retriever
	filter      *RelevanceFilter
	generator   *Generator
	store       domain.SpatialStore
	clock       clockwork.Clock
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New wires the stages together.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Model == nil:
		return nil, errors.New("pipeline: language model is required")
	case deps.Geocoder == nil:
		return nil, errors.New("pipeline: geocoder is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: spatial store is required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetricsForTesting()
	}
	if deps.Catalog == nil {
		catalog, err := domain.DefaultSVICatalog()
		if err != nil {
			return nil, err
		}
		deps.Catalog = catalog
	}

	return &Pipeline{
		interpreter: NewInterpreter(deps.Model, deps.Geocoder, opts, deps.Metrics, deps.Logger),
		retriever:   NewRetriever(deps.Store, deps.Forecast, deps.Geocoder, deps.Clock, opts, deps.Metrics, deps.Logger),
		filter:      NewRelevanceFilter(deps.QueryEmbedder, deps.VariableEmbedder, deps.Catalog, deps.Clock, opts, deps.Metrics, deps.Logger),
		generator:   NewGenerator(deps.Model, opts, deps.Metrics, deps.Logger),
		store:       deps.Store,
		clock:       deps.Clock,
		timeout:     opts.RequestTimeout,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
	}, nil
}

// CheckReadiness reports whether the spatial store answers.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		p.metrics.PipelineReady.Set(0)
		return err
	}
	p.metrics.PipelineReady.Set(1)
	return nil
}

// Process answers one question. Failures are *domain.QueryError values whose
// kind tells the caller whether to ask for a location or retry later.
func (p *Pipeline) Process(ctx context.Context, query string) (domain.AskResult, error) {
	start := p.clock.Now()
	result, err := p.process(ctx, strings.TrimSpace(query))

	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
		p.logger.Warn("ask failed", "outcome", outcome, "error", err, "duration", p.clock.Since(start))
	} else {
		p.logger.Info("ask answered",
			"query_id", result.QueryID,
			"locations", len(result.FullRetrievalData.Locations),
			"highlight", result.Highlight != nil,
			"duration", p.clock.Since(start),
		)
	}
	p.metrics.AskRequests.WithLabelValues(outcome).Inc()
	return result, err
}

func (p *Pipeline) process(ctx context.Context, query string) (domain.AskResult, error) {
	if query == "" {
		return domain.AskResult{}, domain.Ambiguous("process", domain.ErrEmptyQuery)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var (
		intent    domain.Intent
		locations []domain.ResolvedLocation
		window    domain.ForecastWindow
	)
	err := p.stage("interpret", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			intent, err = p.interpreter.Intent(gctx, query)
			return err
		})
		g.Go(func() error {
			names, err := p.interpreter.Locations(gctx, query)
			if err != nil {
				return err
			}
			locations, err = p.interpreter.Resolve(gctx, names)
			return err
		})
		g.Go(func() error {
			window = p.interpreter.ForecastWindow(gctx, query)
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return domain.AskResult{}, err
	}

	var bundle domain.RetrievalBundle
	if err := p.stage("retrieve", func() error {
		var err error
		bundle, err = p.retriever.Retrieve(ctx, locations, intent, window)
		return err
	}); err != nil {
		return domain.AskResult{}, err
	}

	var filtered domain.FilteredContext
	if err := p.stage("filter", func() error {
		var err error
		filtered, err = p.filter.Select(ctx, query, intent, bundle)
		return err
	}); err != nil {
		return domain.AskResult{}, err
	}

	var answer domain.Answer
	if err := p.stage("generate", func() error {
		var err error
		answer, err = p.generator.Answer(ctx, query, filtered, domain.HighlightFor(bundle))
		return err
	}); err != nil {
		return domain.AskResult{}, err
	}

	return domain.AskResult{
		QueryID:           uuid.NewString(),
		Query:             query,
		Answer:            answer.Text,
		Highlight:         answer.Highlight,
		Intent:            intent,
		ForecastWindow:    window,
		FilteredContext:   filtered,
		FullRetrievalData: bundle,
		CreatedAt:         p.clock.Now().UTC(),
	}, nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := p.clock.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(name).Observe(p.clock.Since(start).Seconds())
	p.logger.Debug("stage finished", "stage", name, "error", err)
	return err
}
