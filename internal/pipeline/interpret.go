package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
)

// Interpreter turns a raw question into an intent, place names, resolved
// locations, and a forecast window. The three classifications are independent
// and may run concurrently.
type Interpreter struct {
	model            domain.LanguageModel
	geocoder         domain.Geocoder
	defaults         domain.IntentDefaults
	maxForecastHours int
	concurrency      int
	metrics          *observability.Metrics
	logger           *slog.Logger
}

// NewInterpreter creates an Interpreter.
func NewInterpreter(model domain.LanguageModel, geocoder domain.Geocoder, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Interpreter {
	return &Interpreter{
		model:            model,
		geocoder:         geocoder,
		defaults:         opts.intentDefaults(),
		maxForecastHours: opts.MaxForecastHours,
		concurrency:      max(opts.LocationConcurrency, 1),
		metrics:          metrics,
		logger:           logger,
	}
}

// Intent classifies which data the question needs. A model that cannot be
// reached fails the request; output that does not parse yields the
// all-inclusive default intent.
func (in *Interpreter) Intent(ctx context.Context, query string) (domain.Intent, error) {
	raw, err := in.model.Classify(ctx, intentRequest(query, in.defaults))
	if err != nil {
		in.recordCall(domain.PurposeIntent, "error")
		return domain.Intent{}, domain.Unavailable("classify intent", err)
	}

	var ri domain.RawIntent
	if err := decodeObject(raw, &ri); err != nil {
		in.recordCall(domain.PurposeIntent, "malformed")
		in.logger.Warn("intent output malformed, using defaults", "error", err)
		return domain.DefaultIntent(in.defaults), nil
	}
	in.recordCall(domain.PurposeIntent, "success")
	return domain.NormalizeIntent(ri, in.defaults), nil
}

// Locations extracts place names in the order they appear. Malformed output
// is an empty list.
func (in *Interpreter) Locations(ctx context.Context, query string) ([]string, error) {
	raw, err := in.model.Classify(ctx, locationsRequest(query))
	if err != nil {
		in.recordCall(domain.PurposeLocations, "error")
		return nil, domain.Unavailable("extract locations", err)
	}

	names, err := parseLocations(raw)
	if err != nil {
		in.recordCall(domain.PurposeLocations, "malformed")
		in.logger.Warn("location output malformed, treating as no locations", "error", err)
		return []string{}, nil
	}
	in.recordCall(domain.PurposeLocations, "success")
	return names, nil
}

// ForecastWindow never fails: any model or parse error means "not requested".
func (in *Interpreter) ForecastWindow(ctx context.Context, query string) domain.ForecastWindow {
	raw, err := in.model.Classify(ctx, forecastRequest(query))
	if err != nil {
		in.recordCall(domain.PurposeForecastWindow, "error")
		in.logger.Warn("forecast window classification failed", "error", err)
		return domain.NoForecast()
	}

	window, err := parseForecastWindow(raw, in.maxForecastHours)
	if err != nil {
		in.recordCall(domain.PurposeForecastWindow, "malformed")
		in.logger.Warn("forecast window output malformed", "error", err)
		return domain.NoForecast()
	}
	in.recordCall(domain.PurposeForecastWindow, "success")
	return window
}

// Resolve geocodes every name, keeping extraction order. Names that fail are
// dropped with a warning. With nothing left the error is input-ambiguous,
// unless every failure was the geocoder being unreachable.
func (in *Interpreter) Resolve(ctx context.Context, names []string) ([]domain.ResolvedLocation, error) {
	if len(names) == 0 {
		return nil, domain.Ambiguous("resolve locations", domain.ErrNoLocation)
	}

	resolved := make([]domain.ResolvedLocation, len(names))
	errs := make([]error, len(names))
	g := new(errgroup.Group)
	g.SetLimit(in.concurrency)
	for i, name := range names {
		g.Go(func() error {
			resolved[i], errs[i] = domain.ResolveLocation(ctx, in.geocoder, name)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable("resolve locations", err)
	}

	out := make([]domain.ResolvedLocation, 0, len(names))
	var upstream error
	notFound := false
	for i, err := range errs {
		switch {
		case err == nil:
			out = append(out, resolved[i])
		case errors.Is(err, domain.ErrNotFound):
			notFound = true
			in.logger.Warn("location not found, dropping", "location", names[i])
			in.metrics.Degradations.WithLabelValues("location").Inc()
		default:
			upstream = err
			in.logger.Warn("geocoding failed, dropping location", "location", names[i], "error", err)
			in.metrics.Degradations.WithLabelValues("location").Inc()
		}
	}

	if len(out) == 0 {
		if upstream != nil && !notFound {
			return nil, domain.Unavailable("resolve locations", upstream)
		}
		return nil, domain.Ambiguous("resolve locations", fmt.Errorf("%w: none of %q could be geocoded", domain.ErrNoLocation, names))
	}
	return out, nil
}

func (in *Interpreter) recordCall(purpose, outcome string) {
	in.metrics.LLMCalls.WithLabelValues(purpose, outcome).Inc()
}

// decodeObject unmarshals a model's JSON object, tolerating surrounding
// whitespace and Markdown code fences.
func decodeObject(raw json.RawMessage, v any) error {
	data := bytes.TrimSpace(raw)
	if bytes.HasPrefix(data, []byte("```")) {
		data = bytes.TrimPrefix(data, []byte("```json"))
		data = bytes.TrimPrefix(data, []byte("```"))
		data = bytes.TrimSuffix(bytes.TrimSpace(data), []byte("```"))
		data = bytes.TrimSpace(data)
	}
	if len(data) == 0 || data[0] != '{' {
		return errors.New("expected a JSON object")
	}
	return json.Unmarshal(data, v)
}

// parseLocations accepts {"locations": [...]}. Blank and repeated names are
// dropped.
func parseLocations(raw json.RawMessage) ([]string, error) {
	var payload struct {
		Locations []string `json:"locations"`
	}
	if err := decodeObject(raw, &payload); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(payload.Locations))
	names := make([]string, 0, len(payload.Locations))
	for _, name := range payload.Locations {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names, nil
}

// parseForecastWindow accepts hours as a number, a numeric string, or null.
// A positive hour count implies requested even if the flag is missing.
func parseForecastWindow(raw json.RawMessage, maxHours int) (domain.ForecastWindow, error) {
	var payload struct {
		Requested *bool           `json:"requested"`
		Hours     json.RawMessage `json:"hours"`
	}
	if err := decodeObject(raw, &payload); err != nil {
		return domain.NoForecast(), err
	}

	hours, err := parseHours(payload.Hours)
	if err != nil {
		return domain.NoForecast(), err
	}
	requested := hours > 0
	if payload.Requested != nil {
		requested = *payload.Requested
	}
	if !requested {
		return domain.NoForecast(), nil
	}
	return domain.ForecastHours(hours, maxHours), nil
}

func parseHours(raw json.RawMessage) (int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
		if s == "" {
			return 0, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("hours %q is not a number", s)
	}
	if f < 0 {
		return 0, nil
	}
	return int(math.Ceil(math.Min(f, 1e6))), nil
}
