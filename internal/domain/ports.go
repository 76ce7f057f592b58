package domain

import (
	"context"
	"encoding/json"
)

// SpatialStore is the read-only PostGIS context store.
type SpatialStore interface {
	// CountyAt returns the county containing the point, or ErrNoCounty.
	CountyAt(ctx context.Context, lat, lon float64) (CountyRecord, error)
	// PrecipitationHistory returns monthly records in chronological order.
	PrecipitationHistory(ctx context.Context, fips string) ([]PrecipitationRecord, error)
	// FloodEvents returns the county's events with distances from the point,
	// sorted nearest first.
	FloodEvents(ctx context.Context, fips string, lat, lon float64) ([]FloodEvent, error)
	// SVI returns the county's record for a release year, or nil if absent.
	SVI(ctx context.Context, fips string, releaseYear int) (*SVIRecord, error)
	Ping(ctx context.Context) error
}

// ForecastProvider returns hourly precipitation for a point, in time order.
type ForecastProvider interface {
	HourlyForecast(ctx context.Context, lat, lon float64, hours int) ([]ForecastPoint, error)
}

// Classification purposes, used for prompts, metrics and the test stub.
const (
	PurposeIntent         = "intent"
	PurposeLocations      = "locations"
	PurposeForecastWindow = "forecast_window"
)

// ClassifyRequest asks a model for a JSON object.
type ClassifyRequest struct {
	Purpose string
	System  string
	Prompt  string
}

// GenerateRequest asks a model for free text.
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
}

// LanguageModel is the hosted inference capability. Classify returns the raw
// JSON object the model produced; parsing and defaulting are the caller's job.
type LanguageModel interface {
	Classify(ctx context.Context, req ClassifyRequest) (json.RawMessage, error)
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Embedder turns texts into fixed-length vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ResultSink receives completed results, for example an audit topic or a
// report bucket. Publishing is best-effort from the caller's point of view.
type ResultSink interface {
	Publish(ctx context.Context, result AskResult) error
}
