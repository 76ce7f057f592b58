package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ResolveLocation geocodes a single extracted place name. It returns
// ErrNotFound (wrapped) when the provider has no match so callers can tell an
// unknown place from an unreachable provider.
func ResolveLocation(ctx context.Context, geocoder Geocoder, name string) (ResolvedLocation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ResolvedLocation{}, fmt.Errorf("geocode %q: %w", name, ErrNotFound)
	}

	result, err := geocoder.ForwardGeocode(ctx, name)
	if err != nil {
		return ResolvedLocation{}, fmt.Errorf("geocode %q: %w", name, err)
	}
	if !result.Found() {
		return ResolvedLocation{}, fmt.Errorf("geocode %q: %w", name, ErrNotFound)
	}

	address := result.FormattedAddress
	if address == "" {
		address = result.PlaceName
	}
	return ResolvedLocation{
		Name:             name,
		FormattedAddress: address,
		Latitude:         result.Lat,
		Longitude:        result.Lon,
	}, nil
}

// AnnotateNearestAddresses returns a copy of events in which the first limit
// entries carry the reverse-geocoded address of their coordinates. Lookups are
// best-effort: a failure leaves NearestAddress nil and is logged. The input
// slice is not modified and ordering is preserved.
func AnnotateNearestAddresses(ctx context.Context, events []FloodEvent, geocoder Geocoder, limit int, logger *slog.Logger) []FloodEvent {
	out := make([]FloodEvent, len(events))
	copy(out, events)
	if geocoder == nil || limit <= 0 {
		return out
	}

	for i := range out {
		if i >= limit || ctx.Err() != nil {
			break
		}
		if out[i].Latitude == 0 && out[i].Longitude == 0 {
			continue
		}
		result, err := geocoder.ReverseGeocode(ctx, out[i].Latitude, out[i].Longitude)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"lat", out[i].Latitude,
				"lon", out[i].Longitude,
				"error", err,
			)
			continue
		}
		if result.FormattedAddress != "" {
			addr := result.FormattedAddress
			out[i].NearestAddress = &addr
		}
	}
	return out
}
