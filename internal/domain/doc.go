// Package domain models the flood-risk context assembled for a natural-language
// question: resolved places, county identity, precipitation history and forecast,
// historical flood events, and Social Vulnerability Index (SVI) scores.
//
// # Data Sources
//
// County geometry, monthly precipitation, flood events, and SVI records live in a
// PostGIS database populated by offline merge scripts (schema "flai"). Place names
// are resolved through a forward geocoder; flood-event coordinates are optionally
// reverse geocoded to the nearest street address. Short-term precipitation comes
// from an hourly forecast service.
//
// # Units and Conventions
//
// FIPS codes:
//
//	Five-digit county identifiers ("01125" = Tuscaloosa County, AL). Always
//	carried as strings so leading zeros survive.
//
// Distances:
//
//	Great-circle distance from the query point, computed by the spatial store in
//	metres and converted to statute miles (× 0.000621371), rounded to two
//	decimals. Flood events are always ordered nearest first; filters take a
//	prefix of that order and never re-sort.
//
// Precipitation:
//
//	Monthly history is in inches. Forecast amounts arrive in millimetres and are
//	reported in both millimetres and inches (mm / 25.4, two decimals).
//	Probability is a percentage in [0, 100]. An hourly point covers
//	[time, time + 1h), so the point for the current hour starts before the
//	request and is still part of the forecast.
//
// SVI scores:
//
//	Percentile rankings in [0, 1] for one release year (configured, 2022 by
//	default). A record has an overall national and state ranking, four theme
//	scores, and roughly sixteen variable scores. Only the variable map is ever
//	reduced by relevance filtering.
//
// # Inclusion Semantics
//
// Every gated field of a location context is an [Included] value. An absent
// field means "not looked up"; a present but empty field means "looked up and
// found nothing". The distinction is preserved through JSON (omitted versus
// null or []) so the answer generator can tell data gaps from negative results.
package domain
