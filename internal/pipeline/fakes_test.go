package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-context-service/internal/adapter/llmstub"
	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
	"github.com/couchcryptid/flood-context-service/internal/pipeline"
)

var (
	tuscaloosa = domain.GeocodingResult{Lat: 33.2098, Lon: -87.5692, FormattedAddress: "Tuscaloosa, Alabama, United States"}
	mobile     = domain.GeocodingResult{Lat: 30.6954, Lon: -88.0399, FormattedAddress: "Mobile, Alabama, United States"}
	gulf       = domain.GeocodingResult{Lat: 27.0, Lon: -90.0, FormattedAddress: "Gulf of Mexico"}

	tuscaloosaCounty = domain.CountyRecord{FIPSCode: "01125", CountyName: "Tuscaloosa", StateName: "Alabama", AreaSqMi: 1351.2}
	mobileCounty     = domain.CountyRecord{FIPSCode: "01097", CountyName: "Mobile", StateName: "Alabama", AreaSqMi: 1644.0}

	requestTime = time.Date(2026, 10, 18, 14, 30, 0, 0, time.UTC)
)

// --- geocoder ---

type fakeGeocoder struct {
	places     map[string]domain.GeocodingResult
	forwardErr error
	reverseErr error
}

func (g *fakeGeocoder) ForwardGeocode(_ context.Context, name string) (domain.GeocodingResult, error) {
	if g.forwardErr != nil {
		return domain.GeocodingResult{}, g.forwardErr
	}
	return g.places[name], nil
}

func (g *fakeGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	if g.reverseErr != nil {
		return domain.GeocodingResult{}, g.reverseErr
	}
	return domain.GeocodingResult{Lat: lat, Lon: lon, FormattedAddress: "100 River Rd"}, nil
}

// --- spatial store ---

type fakeStore struct {
	mu        sync.Mutex
	calls     map[string]int
	countyErr map[string]error // keyed by county FIPS or "*" for every lookup
	fetchErr  map[string]error // keyed by method name
	pingErr   error
}

func (s *fakeStore) record(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[method]++
	return s.fetchErr[method]
}

func (s *fakeStore) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *fakeStore) CountyAt(_ context.Context, lat, _ float64) (domain.CountyRecord, error) {
	_ = s.record("CountyAt")
	var c domain.CountyRecord
	switch lat {
	case tuscaloosa.Lat:
		c = tuscaloosaCounty
	case mobile.Lat:
		c = mobileCounty
	default:
		return domain.CountyRecord{}, domain.ErrNoCounty
	}
	if err := s.countyErr["*"]; err != nil {
		return domain.CountyRecord{}, err
	}
	if err := s.countyErr[c.FIPSCode]; err != nil {
		return domain.CountyRecord{}, err
	}
	return c, nil
}

func (s *fakeStore) PrecipitationHistory(_ context.Context, _ string) ([]domain.PrecipitationRecord, error) {
	if err := s.record("PrecipitationHistory"); err != nil {
		return nil, err
	}
	var out []domain.PrecipitationRecord
	for y := 2023; y <= 2024; y++ {
		for m := 1; m <= 12; m++ {
			out = append(out, domain.PrecipitationRecord{Year: y, Month: m, Inches: float64(m) / 2})
		}
	}
	return out, nil
}

// FloodEvents returns 25 events in scrambled distance order plus one
// duplicate report.
func (s *fakeStore) FloodEvents(_ context.Context, fips string, _, _ float64) ([]domain.FloodEvent, error) {
	if err := s.record("FloodEvents"); err != nil {
		return nil, err
	}
	var out []domain.FloodEvent
	for i := range 25 {
		d := (i * 7) % 25
		out = append(out, domain.FloodEvent{
			EventType:              domain.EventTypeFlashFlood,
			Date:                   time.Date(2000+d, 6, 1, 0, 0, 0, 0, time.UTC),
			WarningZone:            "Zone " + fips,
			County:                 fips,
			Latitude:               33 + float64(d)/100,
			Longitude:              -87,
			DistanceFromQueryMiles: float64(d) * 1.5,
		})
	}
	return append(out, out[3]), nil
}

func (s *fakeStore) SVI(_ context.Context, _ string, year int) (*domain.SVIRecord, error) {
	if err := s.record("SVI"); err != nil {
		return nil, err
	}
	return fullSVIRecord(year), nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func fullSVIRecord(year int) *domain.SVIRecord {
	catalog, err := domain.DefaultSVICatalog()
	if err != nil {
		panic(err)
	}
	national, state := 0.71, 0.64
	rec := &domain.SVIRecord{
		ReleaseYear:    year,
		OverallRanking: domain.SVIRanking{National: &national, State: &state},
		Themes:         map[string]float64{"socioeconomic": 0.6, "household": 0.5, "minority": 0.7, "housing_transportation": 0.4},
		Variables:      map[string]float64{},
	}
	for i, v := range catalog.Variables {
		rec.Variables[v.Name] = float64(i+1) / 20
	}
	return rec
}

// --- forecast ---

type fakeForecast struct {
	mu        sync.Mutex
	err       error
	lastHours int
}

func (f *fakeForecast) HourlyForecast(_ context.Context, _, _ float64, hours int) ([]domain.ForecastPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.lastHours = hours
	f.mu.Unlock()
	start := requestTime.Truncate(time.Hour)
	out := make([]domain.ForecastPoint, 0, 24)
	for i := range 24 {
		out = append(out, domain.ForecastPoint{
			Time:                        start.Add(time.Duration(i) * time.Hour),
			PrecipitationProbabilityPct: 60,
			PrecipitationAmountMM:       2.54,
			PrecipitationAmountIn:       0.1,
			Condition:                   "Light rain",
		})
	}
	return out, nil
}

// --- harness ---

type harness struct {
	model    *llmstub.Model
	store    *fakeStore
	forecast *fakeForecast
	geocoder *fakeGeocoder
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
	opts     pipeline.Options
	noEmbed  bool
}

func newHarness() *harness {
	return &harness{
		model: llmstub.New("Tuscaloosa, Alabama", "Tuscaloosa", "Mobile", "Gulf of Mexico"),
		store: &fakeStore{},
		forecast: &fakeForecast{},
		geocoder: &fakeGeocoder{places: map[string]domain.GeocodingResult{
			"Tuscaloosa, Alabama": tuscaloosa,
			"Tuscaloosa":          tuscaloosa,
			"Mobile":              mobile,
			"Gulf of Mexico":      gulf,
		}},
		clock:   clockwork.NewFakeClockAt(requestTime),
		metrics: observability.NewMetricsForTesting(),
		opts: pipeline.Options{
			RequestTimeout:        5 * time.Second,
			SVIReleaseYear:        2022,
			ReverseGeocodeLimit:   3,
			MaxForecastHours:      240,
			DefaultMaxEvents:      10,
			DefaultSVIThreshold:   0.3,
			RecentYears:           10,
			LocationConcurrency:   4,
			GenerationTemperature: 0.2,
		},
	}
}

func (h *harness) deps() pipeline.Deps {
	d := pipeline.Deps{
		Model:    h.model,
		Geocoder: h.geocoder,
		Store:    h.store,
		Forecast: h.forecast,
		Clock:    h.clock,
		Logger:   discardLogger(),
		Metrics:  h.metrics,
	}
	if !h.noEmbed {
		d.QueryEmbedder = h.model
	}
	return d
}

func (h *harness) pipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(h.deps(), h.opts)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errBoom = errors.New("boom")

func newPipeline(d pipeline.Deps, h *harness) (*pipeline.Pipeline, error) {
	return pipeline.New(d, h.opts)
}
