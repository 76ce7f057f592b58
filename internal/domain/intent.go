package domain

import (
	"errors"
	"fmt"
	"math"
)

// FloodEventFilters are the deterministic limits applied to a location's
// distance-sorted flood events. After normalisation MaxEvents is never nil.
type FloodEventFilters struct {
	MaxEvents        *int     `json:"max_events"`
	MaxDistanceMiles *float64 `json:"max_distance_miles"`
	RecentOnly       bool     `json:"recent_only"`
}

// Intent says which data categories a query needs and how hard to filter them.
type Intent struct {
	NeedsPrecipitationForecast bool              `json:"needs_precipitation_forecast"`
	NeedsPrecipitationHistory  bool              `json:"needs_precipitation_history"`
	NeedsFloodHistory          bool              `json:"needs_flood_history"`
	NeedsSVIData               bool              `json:"needs_svi_data"`
	NeedsCountyInfo            bool              `json:"needs_county_info"`
	FloodEventFilters          FloodEventFilters `json:"flood_event_filters"`
	SVIRelevanceThreshold      float64           `json:"svi_relevance_threshold"`
}

// RawIntent is the classifier's output before defaults are applied. Every
// field is optional; numbers are float64 so "10" and "10.0" both decode.
type RawIntent struct {
	NeedsPrecipitationForecast *bool                 `json:"needs_precipitation_forecast"`
	NeedsPrecipitationHistory  *bool                 `json:"needs_precipitation_history"`
	NeedsFloodHistory          *bool                 `json:"needs_flood_history"`
	NeedsSVIData               *bool                 `json:"needs_svi_data"`
	NeedsCountyInfo            *bool                 `json:"needs_county_info"`
	FloodEventFilters          *RawFloodEventFilters `json:"flood_event_filters"`
	SVIRelevanceThreshold      *float64              `json:"svi_relevance_threshold"`
}

// RawFloodEventFilters mirrors FloodEventFilters with optional fields.
type RawFloodEventFilters struct {
	MaxEvents        *float64 `json:"max_events"`
	MaxDistanceMiles *float64 `json:"max_distance_miles"`
	RecentOnly       *bool    `json:"recent_only"`
}

// IntentDefaults are substituted for anything the classifier leaves out.
type IntentDefaults struct {
	MaxEvents    int
	SVIThreshold float64
}

// DefaultIntent is the all-inclusive intent used when classification output
// cannot be parsed: every category is fetched, no distance limit.
func DefaultIntent(d IntentDefaults) Intent {
	maxEvents := max(d.MaxEvents, 0)
	return Intent{
		NeedsPrecipitationForecast: true,
		NeedsPrecipitationHistory:  true,
		NeedsFloodHistory:          true,
		NeedsSVIData:               true,
		NeedsCountyInfo:            true,
		FloodEventFilters:          FloodEventFilters{MaxEvents: &maxEvents},
		SVIRelevanceThreshold:      clampUnit(d.SVIThreshold),
	}
}

// maxEventsCap keeps max_events within int range on every platform.
const maxEventsCap = math.MaxInt32

// NormalizeIntent applies defaults to a raw classification. Missing needs_*
// flags become true. A missing or negative max_events becomes the default and
// a huge one is capped at maxEventsCap. A missing or non-finite threshold
// becomes the default and any threshold is clamped to [0, 1]. Negative or
// non-finite distance limits are dropped.
func NormalizeIntent(raw RawIntent, d IntentDefaults) Intent {
	intent := DefaultIntent(d)
	intent.NeedsPrecipitationForecast = boolOr(raw.NeedsPrecipitationForecast, true)
	intent.NeedsPrecipitationHistory = boolOr(raw.NeedsPrecipitationHistory, true)
	intent.NeedsFloodHistory = boolOr(raw.NeedsFloodHistory, true)
	intent.NeedsSVIData = boolOr(raw.NeedsSVIData, true)
	intent.NeedsCountyInfo = boolOr(raw.NeedsCountyInfo, true)

	if f := raw.FloodEventFilters; f != nil {
		if f.MaxEvents != nil && *f.MaxEvents >= 0 && !math.IsInf(*f.MaxEvents, 0) {
			n := int(math.Floor(math.Min(*f.MaxEvents, maxEventsCap)))
			intent.FloodEventFilters.MaxEvents = &n
		}
		if f.MaxDistanceMiles != nil && *f.MaxDistanceMiles >= 0 && !math.IsInf(*f.MaxDistanceMiles, 0) {
			dist := *f.MaxDistanceMiles
			intent.FloodEventFilters.MaxDistanceMiles = &dist
		}
		intent.FloodEventFilters.RecentOnly = boolOr(f.RecentOnly, false)
	}

	if t := raw.SVIRelevanceThreshold; t != nil && !math.IsNaN(*t) && !math.IsInf(*t, 0) {
		intent.SVIRelevanceThreshold = clampUnit(*t)
	}
	return intent
}

// Validate checks the range invariants of a normalised intent.
func (i Intent) Validate() error {
	var errs []error
	if math.IsNaN(i.SVIRelevanceThreshold) || i.SVIRelevanceThreshold < 0 || i.SVIRelevanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("svi_relevance_threshold %v outside [0,1]", i.SVIRelevanceThreshold))
	}
	if m := i.FloodEventFilters.MaxEvents; m != nil && *m < 0 {
		errs = append(errs, fmt.Errorf("max_events %d is negative", *m))
	}
	if d := i.FloodEventFilters.MaxDistanceMiles; d != nil && *d < 0 {
		errs = append(errs, fmt.Errorf("max_distance_miles %v is negative", *d))
	}
	return errors.Join(errs...)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
