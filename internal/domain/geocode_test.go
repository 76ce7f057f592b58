package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock geocoder ---

type mockGeocoder struct {
	forwardResult GeocodingResult
	forwardErr    error
	reverseResult GeocodingResult
	reverseErr    error
	forwardCalls  int
	reverseCalls  int
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, _ string) (GeocodingResult, error) {
	m.forwardCalls++
	return m.forwardResult, m.forwardErr
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (GeocodingResult, error) {
	m.reverseCalls++
	return m.reverseResult, m.reverseErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestResolveLocation(t *testing.T) {
	geo := &mockGeocoder{
		forwardResult: GeocodingResult{
			Lat:              33.2098,
			Lon:              -87.5692,
			FormattedAddress: "Tuscaloosa, Alabama, United States",
			PlaceName:        "Tuscaloosa",
			Confidence:       0.9,
		},
	}

	loc, err := ResolveLocation(context.Background(), geo, "  Tuscaloosa, Alabama ")

	require.NoError(t, err)
	assert.Equal(t, ResolvedLocation{
		Name:             "Tuscaloosa, Alabama",
		FormattedAddress: "Tuscaloosa, Alabama, United States",
		Latitude:         33.2098,
		Longitude:        -87.5692,
	}, loc)
	assert.Equal(t, 1, geo.forwardCalls)
}

func TestResolveLocation_FallsBackToPlaceName(t *testing.T) {
	geo := &mockGeocoder{forwardResult: GeocodingResult{Lat: 30.69, Lon: -88.04, PlaceName: "Mobile"}}

	loc, err := ResolveLocation(context.Background(), geo, "Mobile")

	require.NoError(t, err)
	assert.Equal(t, "Mobile", loc.FormattedAddress)
}

func TestResolveLocation_NotFound(t *testing.T) {
	geo := &mockGeocoder{}

	_, err := ResolveLocation(context.Background(), geo, "Atlantis")

	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveLocation_BlankName(t *testing.T) {
	geo := &mockGeocoder{}

	_, err := ResolveLocation(context.Background(), geo, "   ")

	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, geo.forwardCalls)
}

func TestResolveLocation_ProviderError(t *testing.T) {
	boom := errors.New("connection refused")
	geo := &mockGeocoder{forwardErr: boom}

	_, err := ResolveLocation(context.Background(), geo, "Tuscaloosa")

	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestAnnotateNearestAddresses(t *testing.T) {
	events := []FloodEvent{
		{Latitude: 33.1, Longitude: -87.5, DistanceFromQueryMiles: 1},
		{Latitude: 33.2, Longitude: -87.6, DistanceFromQueryMiles: 2},
		{Latitude: 33.3, Longitude: -87.7, DistanceFromQueryMiles: 3},
	}
	geo := &mockGeocoder{reverseResult: GeocodingResult{FormattedAddress: "123 River Rd, Tuscaloosa, AL"}}

	out := AnnotateNearestAddresses(context.Background(), events, geo, 2, discardLogger())

	require.Len(t, out, 3)
	require.NotNil(t, out[0].NearestAddress)
	assert.Equal(t, "123 River Rd, Tuscaloosa, AL", *out[0].NearestAddress)
	require.NotNil(t, out[1].NearestAddress)
	assert.Nil(t, out[2].NearestAddress, "beyond limit")
	assert.Equal(t, 2, geo.reverseCalls)

	for _, e := range events {
		assert.Nil(t, e.NearestAddress, "input must not be mutated")
	}
}

func TestAnnotateNearestAddresses_ErrorLeavesNil(t *testing.T) {
	events := []FloodEvent{{Latitude: 33.1, Longitude: -87.5}}
	geo := &mockGeocoder{reverseErr: errors.New("timeout")}

	out := AnnotateNearestAddresses(context.Background(), events, geo, 5, discardLogger())

	require.Len(t, out, 1)
	assert.Nil(t, out[0].NearestAddress)
	assert.Equal(t, 1, geo.reverseCalls)
}

func TestAnnotateNearestAddresses_NilGeocoder(t *testing.T) {
	events := []FloodEvent{{Latitude: 33.1, Longitude: -87.5}}

	out := AnnotateNearestAddresses(context.Background(), events, nil, 5, discardLogger())

	assert.Equal(t, events, out)
}

func TestAnnotateNearestAddresses_SkipsZeroCoordinates(t *testing.T) {
	events := []FloodEvent{{}}
	geo := &mockGeocoder{reverseResult: GeocodingResult{FormattedAddress: "x"}}

	out := AnnotateNearestAddresses(context.Background(), events, geo, 5, discardLogger())

	assert.Nil(t, out[0].NearestAddress)
	assert.Equal(t, 0, geo.reverseCalls)
}
