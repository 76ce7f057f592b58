package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func validResult() domain.AskResult {
	intent := domain.Intent{
		NeedsFloodHistory: true,
		NeedsSVIData:      true,
		NeedsCountyInfo:   true,
		FloodEventFilters: domain.FloodEventFilters{MaxEvents: ptr(2)},
	}
	county := &domain.CountyRecord{FIPSCode: "01125", CountyName: "Tuscaloosa", StateName: "Alabama"}
	svi := &domain.SVIRecord{
		ReleaseYear:    2022,
		OverallRanking: domain.SVIRanking{National: ptr(0.61)},
		Themes:         map[string]float64{"socioeconomic_status": 0.7},
		Variables:      map[string]float64{"EP_POV150": 0.8, "EP_UNEMP": 0.4},
	}
	events := []domain.FloodEvent{
		{EventType: domain.EventTypeFlood, DistanceFromQueryMiles: 1.2},
		{EventType: domain.EventTypeFlashFlood, DistanceFromQueryMiles: 3.4},
		{EventType: domain.EventTypeFlood, DistanceFromQueryMiles: 9.9},
	}
	loc := domain.ResolvedLocation{Name: "Tuscaloosa"}

	full := domain.LocationContext{
		InputLocation: loc,
		County:        domain.Include(county),
		FloodEvents:   domain.Include(events),
		SVI:           domain.Include(svi),
	}
	reduced := svi.WithVariables(map[string]bool{"EP_POV150": true})
	filtered := domain.LocationContext{
		InputLocation: loc,
		County:        domain.Include(county),
		FloodEvents:   domain.Include(events[:2]),
		SVI:           domain.Include(&reduced),
	}

	ref := county.Ref()
	return domain.AskResult{
		QueryID:   "q-1",
		Query:     "Flood history for Tuscaloosa?",
		Answer:    "Two nearby events.",
		Highlight: &ref,
		Intent:    intent,
		FilteredContext: domain.FilteredContext{
			Query:          "Flood history for Tuscaloosa?",
			IntentAnalysis: intent,
			FilteredData:   []domain.LocationContext{filtered},
		},
		FullRetrievalData: domain.RetrievalBundle{Locations: []domain.LocationContext{full}},
		CreatedAt:         time.Date(2026, 10, 18, 14, 30, 0, 0, time.UTC),
	}
}

func errorsByPhase(r domain.AskResult) map[string][]string {
	out := map[string][]string{}
	for _, p := range validate([]string{"r.json"}, map[string]domain.AskResult{"r.json": r}) {
		if !p.passed() {
			out[p.name] = p.errors
		}
	}
	return out
}

func TestValidResultPasses(t *testing.T) {
	assert.Empty(t, errorsByPhase(validResult()))
}

func TestDetectsViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.AskResult)
		phase  string
	}{
		{
			name: "threshold out of range",
			mutate: func(r *domain.AskResult) {
				r.Intent.SVIRelevanceThreshold = 1.5
				r.FilteredContext.IntentAnalysis = r.Intent
			},
			phase: "Intent ranges",
		},
		{
			name: "unsorted filtered events",
			mutate: func(r *domain.AskResult) {
				ev := r.FilteredContext.FilteredData[0].FloodEvents.Value
				ev[0], ev[1] = ev[1], ev[0]
			},
			phase: "Flood events sorted and limited",
		},
		{
			name: "too many events",
			mutate: func(r *domain.AskResult) {
				r.FilteredContext.FilteredData[0].FloodEvents = r.FullRetrievalData.Locations[0].FloodEvents
			},
			phase: "Flood events sorted and limited",
		},
		{
			name: "forecast longer than window",
			mutate: func(r *domain.AskResult) {
				r.ForecastWindow = domain.ForecastWindow{Requested: true, Hours: 1}
				now := time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC)
				r.FullRetrievalData.Locations[0].PrecipitationForecast = domain.Include([]domain.ForecastPoint{
					{Time: now}, {Time: now.Add(time.Hour)},
				})
			},
			phase: "Forecast window",
		},
		{
			name: "invented SVI variable",
			mutate: func(r *domain.AskResult) {
				r.FilteredContext.FilteredData[0].SVI.Value.Variables["EP_NOVEH"] = 0.3
			},
			phase: "SVI variable subset",
		},
		{
			name: "field included without need",
			mutate: func(r *domain.AskResult) {
				r.FilteredContext.FilteredData[0].PrecipitationHistory = domain.Include([]domain.PrecipitationRecord{})
			},
			phase: "Filtered fields follow intent",
		},
		{
			name: "highlight with two locations",
			mutate: func(r *domain.AskResult) {
				r.FullRetrievalData.Locations = append(r.FullRetrievalData.Locations, r.FullRetrievalData.Locations[0])
			},
			phase: "Highlight rules",
		},
		{
			name:   "missing highlight",
			mutate: func(r *domain.AskResult) { r.Highlight = nil },
			phase:  "Highlight rules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validResult()
			tt.mutate(&r)

			errs := errorsByPhase(r)

			require.Contains(t, errs, tt.phase)
			assert.NotEmpty(t, errs[tt.phase])
		})
	}
}
