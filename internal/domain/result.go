package domain

import "time"

// StatusNoCounty marks a location that falls outside every known county.
const StatusNoCounty = "no_county_found"

// LocationContext is everything gathered (or kept) for one resolved location.
// Gated fields are omitted when they were not looked up.
type LocationContext struct {
	InputLocation         ResolvedLocation                `json:"input_location"`
	Status                string                          `json:"status,omitempty"`
	County                Included[*CountyRecord]         `json:"county_data,omitzero"`
	PrecipitationHistory  Included[[]PrecipitationRecord] `json:"precipitation_history,omitzero"`
	PrecipitationForecast Included[[]ForecastPoint]       `json:"precipitation_forecast,omitzero"`
	FloodEvents           Included[[]FloodEvent]          `json:"flood_event_history,omitzero"`
	SVI                   Included[*SVIRecord]            `json:"social_vulnerability_index,omitzero"`
	Warnings              []string                        `json:"data_gaps,omitempty"`
}

// HasCounty reports whether a county was found for the location.
func (l LocationContext) HasCounty() bool {
	return l.County.Present && l.County.Value != nil
}

// RetrievalBundle is the unfiltered retrieval result, one entry per location
// in extraction order.
type RetrievalBundle struct {
	Locations []LocationContext `json:"locations"`
}

// FilteredContext is the relevance-filtered bundle handed to the generator,
// with the intent that produced it.
type FilteredContext struct {
	Query          string            `json:"query"`
	IntentAnalysis Intent            `json:"intent_analysis"`
	FilteredData   []LocationContext `json:"filtered_data"`
}

// Answer is the generated text plus an optional county to highlight.
type Answer struct {
	Text      string     `json:"text"`
	Highlight *CountyRef `json:"highlight"`
}

// HighlightFor returns the county to highlight: only when the bundle holds
// exactly one location and that location has a county. With several
// locations nothing is highlighted.
func HighlightFor(bundle RetrievalBundle) *CountyRef {
	if len(bundle.Locations) != 1 || !bundle.Locations[0].HasCounty() {
		return nil
	}
	ref := bundle.Locations[0].County.Value.Ref()
	return &ref
}

// AskResult is the full record of one processed query.
type AskResult struct {
	QueryID           string          `json:"query_id"`
	Query             string          `json:"query"`
	Answer            string          `json:"answer"`
	Highlight         *CountyRef      `json:"highlight"`
	Intent            Intent          `json:"intent"`
	ForecastWindow    ForecastWindow  `json:"forecast_window"`
	FilteredContext   FilteredContext `json:"filtered_context"`
	FullRetrievalData RetrievalBundle `json:"full_retrieval_data"`
	CreatedAt         time.Time       `json:"created_at"`
}
