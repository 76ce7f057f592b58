package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
// A zero result with a nil error means the provider found no match.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Found reports whether the provider returned a usable match.
func (r GeocodingResult) Found() bool {
	return r.FormattedAddress != "" || r.Lat != 0 || r.Lon != 0
}

// Geocoder resolves place names to coordinates and coordinates to addresses.
type Geocoder interface {
	// ForwardGeocode converts a free-text place name to coordinates.
	ForwardGeocode(ctx context.Context, name string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
