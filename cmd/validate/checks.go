package main

import (
	"fmt"
	"maps"
	"math"
	"reflect"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// validate runs every phase over the results, visiting files in order.
func validate(files []string, results map[string]domain.AskResult) []*phase {
	checks := []struct {
		name string
		fn   func(p *phase, file string, r domain.AskResult)
	}{
		{"Intent ranges", checkIntent},
		{"Flood events sorted and limited", checkFloodEvents},
		{"Forecast window", checkForecast},
		{"SVI variable subset", checkSVI},
		{"Filtered fields follow intent", checkGating},
		{"Highlight rules", checkHighlight},
	}

	phases := make([]*phase, 0, len(checks))
	for _, c := range checks {
		p := &phase{name: c.name}
		for _, f := range files {
			c.fn(p, f, results[f])
		}
		phases = append(phases, p)
	}
	return phases
}

func checkIntent(p *phase, file string, r domain.AskResult) {
	if err := r.Intent.Validate(); err != nil {
		p.errorf("%s: %v", file, err)
	}
	if r.Intent.FloodEventFilters.MaxEvents == nil {
		p.errorf("%s: max_events missing after normalisation", file)
	}
	if !reflect.DeepEqual(r.Intent, r.FilteredContext.IntentAnalysis) {
		p.errorf("%s: intent differs from filtered_context.intent_analysis", file)
	}
	if r.FilteredContext.Query != r.Query {
		p.errorf("%s: filtered_context.query %q differs from query %q", file, r.FilteredContext.Query, r.Query)
	}
}

func checkFloodEvents(p *phase, file string, r domain.AskResult) {
	for _, loc := range r.FullRetrievalData.Locations {
		if !domain.IsSortedByDistance(loc.FloodEvents.Value) {
			p.errorf("%s: %s: retrieved flood events not sorted by distance", file, loc.InputLocation.Name)
		}
	}

	filters := r.Intent.FloodEventFilters
	for _, loc := range r.FilteredContext.FilteredData {
		events := loc.FloodEvents.Value
		name := loc.InputLocation.Name
		if !domain.IsSortedByDistance(events) {
			p.errorf("%s: %s: filtered flood events not sorted by distance", file, name)
		}
		if filters.MaxEvents != nil && len(events) > *filters.MaxEvents {
			p.errorf("%s: %s: %d flood events exceeds max_events %d", file, name, len(events), *filters.MaxEvents)
		}
		if filters.MaxDistanceMiles != nil {
			for _, e := range events {
				if e.DistanceFromQueryMiles > *filters.MaxDistanceMiles {
					p.errorf("%s: %s: event at %.2f mi beyond max_distance_miles %.2f",
						file, name, e.DistanceFromQueryMiles, *filters.MaxDistanceMiles)
				}
			}
		}
	}
}

func checkForecast(p *phase, file string, r domain.AskResult) {
	w := r.ForecastWindow
	if w.Requested && w.Hours < 1 {
		p.errorf("%s: requested forecast window has %d hours", file, w.Hours)
	}
	if !w.Requested && w.Hours != 0 {
		p.errorf("%s: forecast window not requested but hours=%d", file, w.Hours)
	}

	for _, loc := range r.FullRetrievalData.Locations {
		if !loc.PrecipitationForecast.Present {
			continue
		}
		points := loc.PrecipitationForecast.Value
		name := loc.InputLocation.Name
		if !w.Requested {
			p.errorf("%s: %s: forecast present without a requested window", file, name)
			continue
		}
		if len(points) > w.Hours {
			p.errorf("%s: %s: %d forecast points exceeds window of %d hours", file, name, len(points), w.Hours)
		}
		for i, pt := range points {
			if i > 0 && !pt.Time.After(points[i-1].Time) {
				p.errorf("%s: %s: forecast point %d not after previous", file, name, i)
			}
			if pt.PrecipitationProbabilityPct < 0 || pt.PrecipitationProbabilityPct > 100 {
				p.errorf("%s: %s: probability %.1f outside [0,100]", file, name, pt.PrecipitationProbabilityPct)
			}
			if want := domain.MillimetresToInches(pt.PrecipitationAmountMM); math.Abs(want-pt.PrecipitationAmountIn) > 0.005 {
				p.errorf("%s: %s: %.2f in does not match %.2f mm", file, name, pt.PrecipitationAmountIn, pt.PrecipitationAmountMM)
			}
		}
	}
}

func checkSVI(p *phase, file string, r domain.AskResult) {
	full := make(map[string]*domain.SVIRecord, len(r.FullRetrievalData.Locations))
	for _, loc := range r.FullRetrievalData.Locations {
		full[loc.InputLocation.Name] = loc.SVI.Value
	}

	for _, loc := range r.FilteredContext.FilteredData {
		filtered := loc.SVI.Value
		if !loc.SVI.Present || filtered == nil {
			continue
		}
		name := loc.InputLocation.Name
		orig := full[name]
		if orig == nil {
			p.errorf("%s: %s: filtered SVI has no retrieved record", file, name)
			continue
		}
		for v, score := range filtered.Variables {
			if got, ok := orig.Variables[v]; !ok || got != score {
				p.errorf("%s: %s: SVI variable %s not in retrieved record", file, name, v)
			}
		}
		if !maps.Equal(filtered.Themes, orig.Themes) {
			p.errorf("%s: %s: SVI themes changed by filtering", file, name)
		}
		if !reflect.DeepEqual(filtered.OverallRanking, orig.OverallRanking) {
			p.errorf("%s: %s: SVI overall ranking changed by filtering", file, name)
		}
		for _, rank := range []*float64{filtered.OverallRanking.National, filtered.OverallRanking.State} {
			if rank != nil && (*rank < 0 || *rank > 1) {
				p.errorf("%s: %s: SVI ranking %v outside [0,1]", file, name, *rank)
			}
		}
	}
}

func checkGating(p *phase, file string, r domain.AskResult) {
	in := r.Intent
	for _, loc := range r.FilteredContext.FilteredData {
		name := loc.InputLocation.Name
		gates := []struct {
			field   string
			present bool
			needed  bool
		}{
			{"county_data", loc.County.Present, in.NeedsCountyInfo},
			{"precipitation_history", loc.PrecipitationHistory.Present, in.NeedsPrecipitationHistory},
			{"precipitation_forecast", loc.PrecipitationForecast.Present, in.NeedsPrecipitationForecast},
			{"flood_event_history", loc.FloodEvents.Present, in.NeedsFloodHistory},
			{"social_vulnerability_index", loc.SVI.Present, in.NeedsSVIData},
		}
		for _, g := range gates {
			if g.present && !g.needed {
				p.errorf("%s: %s: %s included but not needed by intent", file, name, g.field)
			}
		}
	}
	if len(r.FilteredContext.FilteredData) != len(r.FullRetrievalData.Locations) {
		p.errorf("%s: %d filtered locations for %d retrieved", file,
			len(r.FilteredContext.FilteredData), len(r.FullRetrievalData.Locations))
	}
}

func checkHighlight(p *phase, file string, r domain.AskResult) {
	want := domain.HighlightFor(r.FullRetrievalData)
	switch {
	case want == nil && r.Highlight != nil:
		p.errorf("%s: highlight %s set but %d locations retrieved", file, r.Highlight.FIPSCode, len(r.FullRetrievalData.Locations))
	case want != nil && r.Highlight == nil:
		p.errorf("%s: single county %s retrieved but no highlight", file, want.FIPSCode)
	case want != nil && *want != *r.Highlight:
		p.errorf("%s: highlight %s does not match county %s", file, r.Highlight.FIPSCode, want.FIPSCode)
	}
}
