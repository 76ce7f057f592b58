package domain

import (
	"math"
	"time"
)

// DefaultForecastHours is used when a forecast is requested without an hour count.
const DefaultForecastHours = 24

// ForecastPoint is one hour of forecast precipitation at a location.
type ForecastPoint struct {
	Time                        time.Time `json:"time"`
	PrecipitationProbabilityPct float64   `json:"precipitation_probability_pct"`
	PrecipitationAmountMM       float64   `json:"precipitation_amount_mm"`
	PrecipitationAmountIn       float64   `json:"precipitation_amount_in"`
	Condition                   string    `json:"condition"`
}

// ForecastWindow records whether the query asked for a short-term forecast and,
// if so, for how many hours. A requested window always has Hours >= 1, so "not
// requested" is never confused with a zero-hour request.
type ForecastWindow struct {
	Requested bool `json:"requested"`
	Hours     int  `json:"hours,omitempty"`
}

// NoForecast is the "not requested" window.
func NoForecast() ForecastWindow { return ForecastWindow{} }

// ForecastHours returns a requested window. Non-positive counts fall back to
// DefaultForecastHours; counts above maxHours are clamped.
func ForecastHours(hours, maxHours int) ForecastWindow {
	if hours <= 0 {
		hours = DefaultForecastHours
	}
	if maxHours > 0 && hours > maxHours {
		hours = maxHours
	}
	return ForecastWindow{Requested: true, Hours: hours}
}

// forecastInterval is the span one hourly point covers: [Time, Time+1h).
const forecastInterval = time.Hour

// TrimForecast keeps the points whose interval has not ended by now and that
// start before now + hours, in order, capped at hours entries. The point
// covering the current hour is kept even though its start precedes now.
// Missing hours are not padded.
func TrimForecast(points []ForecastPoint, hours int, now time.Time) []ForecastPoint {
	out := make([]ForecastPoint, 0, min(len(points), max(hours, 0)))
	if hours <= 0 {
		return out
	}
	until := now.Add(time.Duration(hours) * time.Hour)
	for _, p := range points {
		if len(out) == hours {
			break
		}
		if !p.Time.Add(forecastInterval).After(now) || !p.Time.Before(until) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// MillimetresToInches converts a precipitation amount, rounded to two decimals.
func MillimetresToInches(mm float64) float64 {
	return Round(mm/25.4, 2)
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
