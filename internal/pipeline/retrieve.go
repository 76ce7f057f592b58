package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
)

// Field names used in data_gaps warnings and degradation metrics.
const (
	fieldCounty               = "county_data"
	fieldPrecipitationHistory = "precipitation_history"
	fieldForecast             = "precipitation_forecast"
	fieldFloodEvents          = "flood_event_history"
	fieldSVI                  = "social_vulnerability_index"
)

// Retriever gathers the unfiltered per-location context. Locations are
// processed concurrently; within a location the forecast runs alongside the
// county lookup, and the county-scoped fetches start once the FIPS code is
// known.
type Retriever struct {
	store    domain.SpatialStore
	forecast domain.ForecastProvider
	geocoder domain.Geocoder
	clock    clockwork.Clock
	opts     Options
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. forecast and geocoder may be nil; the
// corresponding fields are then reported as data gaps.
func NewRetriever(store domain.SpatialStore, forecast domain.ForecastProvider, geocoder domain.Geocoder, clock clockwork.Clock, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Retriever {
	return &Retriever{
		store:    store,
		forecast: forecast,
		geocoder: geocoder,
		clock:    clock,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

// Retrieve returns one LocationContext per location that could be looked up,
// in input order. A location whose county lookup fails is dropped; if every
// location fails the spatial store is considered unavailable.
func (r *Retriever) Retrieve(ctx context.Context, locations []domain.ResolvedLocation, intent domain.Intent, window domain.ForecastWindow) (domain.RetrievalBundle, error) {
	results := make([]domain.LocationContext, len(locations))
	errs := make([]error, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.opts.LocationConcurrency, 1))
	for i, loc := range locations {
		g.Go(func() error {
			results[i], errs[i] = r.retrieveOne(gctx, loc, intent, window)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.RetrievalBundle{}, domain.Unavailable("retrieve context", err)
	}

	bundle := domain.RetrievalBundle{Locations: make([]domain.LocationContext, 0, len(locations))}
	var lastErr error
	for i, err := range errs {
		if err != nil {
			lastErr = err
			r.logger.Warn("context retrieval failed, dropping location",
				"location", locations[i].Name,
				"error", err,
			)
			r.metrics.Degradations.WithLabelValues("location").Inc()
			continue
		}
		bundle.Locations = append(bundle.Locations, results[i])
	}
	if len(bundle.Locations) == 0 && lastErr != nil {
		return domain.RetrievalBundle{}, domain.Unavailable("retrieve context", lastErr)
	}
	return bundle, nil
}

// fetchResult is one gated sub-fetch outcome; err is logged and turned into
// a data gap.
type fetchResult struct {
	field string
	err   error
}

func (r *Retriever) retrieveOne(ctx context.Context, loc domain.ResolvedLocation, intent domain.Intent, window domain.ForecastWindow) (domain.LocationContext, error) {
	lc := domain.LocationContext{InputLocation: loc}

	var (
		county    domain.CountyRecord
		countyErr error
		forecast  fetchResult
		wg        sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		county, countyErr = r.store.CountyAt(ctx, loc.Latitude, loc.Longitude)
	}()
	if window.Requested {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forecast = r.fetchForecast(ctx, &lc, window)
		}()
	}
	wg.Wait()

	switch {
	case errors.Is(countyErr, domain.ErrNoCounty):
		lc.Status = domain.StatusNoCounty
		lc.County = domain.Include[*domain.CountyRecord](nil)
		r.logger.Info("location outside known counties", "location", loc.Name)
	case countyErr != nil:
		return domain.LocationContext{}, fmt.Errorf("county lookup for %q: %w", loc.Name, countyErr)
	default:
		lc.County = domain.Include(&county)
	}

	var scoped []fetchResult
	if lc.HasCounty() {
		scoped = r.fetchCountyScoped(ctx, &lc, county.FIPSCode, intent)
	}

	for _, res := range append([]fetchResult{forecast}, scoped...) {
		if res.err == nil {
			continue
		}
		r.logger.Warn("sub-fetch failed, omitting field",
			"location", loc.Name,
			"field", res.field,
			"error", res.err,
		)
		r.metrics.Degradations.WithLabelValues(res.field).Inc()
		lc.Warnings = append(lc.Warnings, res.field+": data could not be retrieved")
	}
	return lc, nil
}

// fetchCountyScoped runs the intent-gated county fetches concurrently. Each
// writes a distinct field of lc. Results are returned in a fixed order so
// warnings are deterministic.
func (r *Retriever) fetchCountyScoped(ctx context.Context, lc *domain.LocationContext, fips string, intent domain.Intent) []fetchResult {
	results := make([]fetchResult, 3)
	var wg sync.WaitGroup

	if intent.NeedsPrecipitationHistory {
		wg.Add(1)
		go func() {
			defer wg.Done()
			history, err := r.store.PrecipitationHistory(ctx, fips)
			results[0] = fetchResult{field: fieldPrecipitationHistory, err: err}
			if err == nil {
				lc.PrecipitationHistory = domain.Include(nonNil(history))
			}
		}()
	}
	if intent.NeedsFloodHistory {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := r.floodEvents(ctx, fips, lc.InputLocation)
			results[1] = fetchResult{field: fieldFloodEvents, err: err}
			if err == nil {
				lc.FloodEvents = domain.Include(events)
			}
		}()
	}
	if intent.NeedsSVIData {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svi, err := r.store.SVI(ctx, fips, r.opts.SVIReleaseYear)
			results[2] = fetchResult{field: fieldSVI, err: err}
			if err == nil {
				lc.SVI = domain.Include(svi)
			}
		}()
	}
	wg.Wait()
	return results
}

// floodEvents returns the county's events deduplicated, sorted nearest first,
// and with the nearest few reverse geocoded.
func (r *Retriever) floodEvents(ctx context.Context, fips string, loc domain.ResolvedLocation) ([]domain.FloodEvent, error) {
	events, err := r.store.FloodEvents(ctx, fips, loc.Latitude, loc.Longitude)
	if err != nil {
		return nil, err
	}
	events = domain.SortByDistance(domain.DedupFloodEvents(events))
	return domain.AnnotateNearestAddresses(ctx, events, r.geocoder, r.opts.ReverseGeocodeLimit, r.logger), nil
}

func (r *Retriever) fetchForecast(ctx context.Context, lc *domain.LocationContext, window domain.ForecastWindow) fetchResult {
	if r.forecast == nil {
		return fetchResult{field: fieldForecast, err: errors.New("no forecast provider configured")}
	}
	loc := lc.InputLocation
	points, err := r.forecast.HourlyForecast(ctx, loc.Latitude, loc.Longitude, window.Hours)
	if err != nil {
		return fetchResult{field: fieldForecast, err: err}
	}
	lc.PrecipitationForecast = domain.Include(domain.TrimForecast(points, window.Hours, r.clock.Now()))
	return fetchResult{field: fieldForecast}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
