package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
)

// RelevanceFilter reduces a retrieval bundle to what the intent asked for.
// It never modifies the bundle it is given.
type RelevanceFilter struct {
	queryEmbedder    domain.Embedder
	variableEmbedder domain.Embedder
	catalog          *domain.SVICatalog
	clock            clockwork.Clock
	recentYears      int
	metrics          *observability.Metrics
	logger           *slog.Logger
}

// NewRelevanceFilter creates a filter. The query embedding is computed fresh
// per request while variable descriptions go through variableEmbedder, which
// is normally cached. A nil embedder keeps every SVI variable.
func NewRelevanceFilter(queryEmbedder, variableEmbedder domain.Embedder, catalog *domain.SVICatalog, clock clockwork.Clock, opts Options, metrics *observability.Metrics, logger *slog.Logger) *RelevanceFilter {
	if variableEmbedder == nil {
		variableEmbedder = queryEmbedder
	}
	return &RelevanceFilter{
		queryEmbedder:    queryEmbedder,
		variableEmbedder: variableEmbedder,
		catalog:          catalog,
		clock:            clock,
		recentYears:      opts.RecentYears,
		metrics:          metrics,
		logger:           logger,
	}
}

// Select builds the filtered context. A field appears iff the intent needs it
// and retrieval looked it up. Flood events are cut to a prefix of their
// distance order and SVI variables are kept when their similarity to the
// question reaches the intent's threshold.
func (f *RelevanceFilter) Select(ctx context.Context, query string, intent domain.Intent, bundle domain.RetrievalBundle) (domain.FilteredContext, error) {
	keep, err := f.relevantVariables(ctx, query, intent, bundle)
	if err != nil {
		return domain.FilteredContext{}, err
	}
	recentSince := domain.RecencyCutoff(f.clock.Now(), f.recentYears)

	filtered := make([]domain.LocationContext, 0, len(bundle.Locations))
	for _, loc := range bundle.Locations {
		out := domain.LocationContext{
			InputLocation: loc.InputLocation,
			Status:        loc.Status,
			Warnings:      slices.Clone(loc.Warnings),
		}
		if intent.NeedsCountyInfo && loc.County.Present {
			out.County = domain.Include(cloneCounty(loc.County.Value))
		}
		if intent.NeedsPrecipitationHistory && loc.PrecipitationHistory.Present {
			out.PrecipitationHistory = domain.Include(nonNil(slices.Clone(loc.PrecipitationHistory.Value)))
		}
		if intent.NeedsPrecipitationForecast && loc.PrecipitationForecast.Present {
			out.PrecipitationForecast = domain.Include(nonNil(slices.Clone(loc.PrecipitationForecast.Value)))
		}
		if intent.NeedsFloodHistory && loc.FloodEvents.Present {
			out.FloodEvents = domain.Include(domain.FilterFloodEvents(loc.FloodEvents.Value, intent.FloodEventFilters, recentSince))
		}
		if intent.NeedsSVIData && loc.SVI.Present {
			out.SVI = domain.Include(f.reduceSVI(loc.SVI.Value, keep))
		}
		filtered = append(filtered, out)
	}

	return domain.FilteredContext{
		Query:          query,
		IntentAnalysis: intent,
		FilteredData:   filtered,
	}, nil
}

// relevantVariables scores every variable that appears in the bundle's SVI
// records. A nil result means "keep all".
func (f *RelevanceFilter) relevantVariables(ctx context.Context, query string, intent domain.Intent, bundle domain.RetrievalBundle) (map[string]bool, error) {
	if !intent.NeedsSVIData {
		return nil, nil
	}
	names := map[string]bool{}
	for _, loc := range bundle.Locations {
		if loc.SVI.Present && loc.SVI.Value != nil {
			for name := range loc.SVI.Value.Variables {
				names[name] = true
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	if f.queryEmbedder == nil {
		f.logger.Warn("no embedder configured, keeping all SVI variables")
		return nil, nil
	}

	sorted := slices.Sorted(maps.Keys(names))
	scores, err := f.score(ctx, query, sorted)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.Unavailable("filter context", ctxErr)
		}
		f.logger.Warn("SVI relevance scoring failed, keeping all variables", "error", err)
		f.metrics.Degradations.WithLabelValues("svi_variables").Inc()
		return nil, nil
	}
	keep := domain.SelectSVIVariables(scores, intent.SVIRelevanceThreshold)
	f.logger.Debug("SVI variables scored", "kept", len(keep), "total", len(scores))
	return keep, nil
}

func (f *RelevanceFilter) score(ctx context.Context, query string, names []string) ([]domain.VariableScore, error) {
	queryVecs, err := f.queryEmbedder.Embed(ctx, []string{f.catalog.QueryText(query)})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	texts := make([]string, len(names))
	for i, name := range names {
		texts[i] = f.catalog.DescriptionText(name)
	}
	varVecs, err := f.variableEmbedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed variable descriptions: %w", err)
	}
	if len(queryVecs) != 1 || len(varVecs) != len(names) {
		return nil, fmt.Errorf("embedder returned %d+%d vectors for 1+%d texts", len(queryVecs), len(varVecs), len(names))
	}

	scores := make([]domain.VariableScore, len(names))
	for i, name := range names {
		scores[i] = domain.VariableScore{Name: name, Similarity: domain.CosineSimilarity(queryVecs[0], varVecs[i])}
	}
	return scores, nil
}

func (f *RelevanceFilter) reduceSVI(rec *domain.SVIRecord, keep map[string]bool) *domain.SVIRecord {
	if rec == nil {
		return nil
	}
	if keep == nil {
		keep = make(map[string]bool, len(rec.Variables))
		for name := range rec.Variables {
			keep[name] = true
		}
	}
	out := rec.WithVariables(keep)
	f.metrics.SVIVariablesKept.Add(float64(len(out.Variables)))
	f.metrics.SVIVariablesDropped.Add(float64(len(rec.Variables) - len(out.Variables)))
	return &out
}

func cloneCounty(c *domain.CountyRecord) *domain.CountyRecord {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
