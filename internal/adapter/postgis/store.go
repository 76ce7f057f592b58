// Package postgis reads county, precipitation, flood-event, and SVI context
// from the "flai" PostGIS schema.
package postgis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

const metresToMiles = 0.000621371

// unassignedCounty labels events with no county (offshore zones).
const unassignedCounty = "Not Assigned (e.g., Offshore)"

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Store implements domain.SpatialStore.
type Store struct {
	db         querier
	pool       *pgxpool.Pool
	timeout    time.Duration
	maxElapsed time.Duration
	logger     *slog.Logger
}

// Open connects a pgx pool and verifies it with a ping.
func Open(ctx context.Context, databaseURL string, timeout, maxElapsed time.Duration, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	s := &Store{db: pool, pool: pool, timeout: timeout, maxElapsed: maxElapsed, logger: logger}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping spatial store: %w", err)
	}
	return nil
}

const countyAtSQL = `
SELECT c.fips_county_code::text, c.County::text, s.State::text, c.areaSQMI::float8
FROM flai.TCLCounties c
JOIN flai.TCLStates s ON c.idState = s.idState
WHERE ST_Intersects(c.geometry, ST_Transform(ST_SetSRID(ST_MakePoint($1, $2), 4326), 5070))
LIMIT 1`

// CountyAt returns the county whose boundary contains the point.
func (s *Store) CountyAt(ctx context.Context, lat, lon float64) (domain.CountyRecord, error) {
	var counties []domain.CountyRecord
	reset := func() { counties = nil }
	err := s.query(ctx, "county lookup", countyAtSQL, []any{lon, lat}, reset, func(rows pgx.Rows) error {
		var c domain.CountyRecord
		if err := rows.Scan(&c.FIPSCode, &c.CountyName, &c.StateName, &c.AreaSqMi); err != nil {
			return err
		}
		counties = append(counties, c)
		return nil
	})
	if err != nil {
		return domain.CountyRecord{}, err
	}
	if len(counties) == 0 {
		return domain.CountyRecord{}, domain.ErrNoCounty
	}
	return counties[0], nil
}

const precipitationSQL = `
SELECT year::int, month::int, totalPrecipitation_in::float8
FROM flai.TBLMonthlyPrecipitation
WHERE fips_county_code = $1
ORDER BY year, month`

// PrecipitationHistory returns the county's monthly totals, oldest first.
func (s *Store) PrecipitationHistory(ctx context.Context, fips string) ([]domain.PrecipitationRecord, error) {
	var records []domain.PrecipitationRecord
	reset := func() { records = []domain.PrecipitationRecord{} }
	err := s.query(ctx, "precipitation history", precipitationSQL, []any{fips}, reset, func(rows pgx.Rows) error {
		var r domain.PrecipitationRecord
		if err := rows.Scan(&r.Year, &r.Month, &r.Inches); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	return records, err
}

// Duplicate reports (same type, day, and point) collapse to one row; the
// outer query orders the survivors nearest first.
const floodEventsSQL = `
SELECT event_type, begin_date, warning_zone, county, latitude, longitude, distance_meters
FROM (
	SELECT DISTINCT ON (et.EventType, e.beginDate, ST_Y(e.geometry), ST_X(e.geometry))
		et.EventType::text AS event_type,
		e.beginDate::date AS begin_date,
		COALESCE(e.warning_zone::text, '') AS warning_zone,
		c.County::text AS county,
		ST_Y(e.geometry)::float8 AS latitude,
		ST_X(e.geometry)::float8 AS longitude,
		ST_Distance(
			e.geometry::geography,
			ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		)::float8 AS distance_meters
	FROM flai.TBLFloodEvents e
	JOIN flai.TCLEventTypes et ON e.idEventType = et.idEventType
	LEFT JOIN flai.TCLCounties c ON e.fips_county_code = c.fips_county_code
	WHERE e.fips_county_code = $3
	ORDER BY et.EventType, e.beginDate, ST_Y(e.geometry), ST_X(e.geometry), distance_meters
) d
ORDER BY distance_meters, begin_date`

// FloodEvents returns the county's flood events nearest the point first, with
// distances in miles rounded to two decimals.
func (s *Store) FloodEvents(ctx context.Context, fips string, lat, lon float64) ([]domain.FloodEvent, error) {
	var events []domain.FloodEvent
	reset := func() { events = []domain.FloodEvent{} }
	err := s.query(ctx, "flood events", floodEventsSQL, []any{lon, lat, fips}, reset, func(rows pgx.Rows) error {
		var (
			e              domain.FloodEvent
			eventType      string
			county         *string
			distanceMetres float64
		)
		if err := rows.Scan(&eventType, &e.Date, &e.WarningZone, &county, &e.Latitude, &e.Longitude, &distanceMetres); err != nil {
			return err
		}
		e.EventType = domain.NormalizeEventType(eventType)
		e.County = unassignedCounty
		if county != nil && *county != "" {
			e.County = *county
		}
		e.DistanceFromQueryMiles = domain.Round(distanceMetres*metresToMiles, 2)
		events = append(events, e)
		return nil
	})
	return events, err
}

const sviSQL = `
SELECT s.overallNational::float8, s.overallState::float8, t.Theme::text, v.SVIVariable::text, s.SVIValue::float8
FROM flai.TBLSVI s
JOIN flai.TCLSVIThemes t ON s.idSVITheme = t.idSVITheme
LEFT JOIN flai.TCLSVIVariables v ON s.idSVIVariable = v.idSVIVariable
WHERE s.fips_county_code = $1 AND s.release_year = $2`

// SVI returns the county's record for the release year, or nil when the
// county has no SVI rows. Rows with a null score are skipped.
func (s *Store) SVI(ctx context.Context, fips string, releaseYear int) (*domain.SVIRecord, error) {
	var (
		rec   *domain.SVIRecord
		found bool
	)
	reset := func() {
		rec = &domain.SVIRecord{
			ReleaseYear: releaseYear,
			Themes:      map[string]float64{},
			Variables:   map[string]float64{},
		}
		found = false
	}
	err := s.query(ctx, "svi", sviSQL, []any{fips, releaseYear}, reset, func(rows pgx.Rows) error {
		var (
			national, state, value *float64
			theme                  string
			variable               *string
		)
		if err := rows.Scan(&national, &state, &theme, &variable, &value); err != nil {
			return err
		}
		if !found {
			rec.OverallRanking = domain.SVIRanking{National: national, State: state}
			found = true
		}
		if value == nil {
			return nil
		}
		if variable == nil {
			rec.Themes[theme] = *value
		} else {
			rec.Variables[*variable] = *value
		}
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return rec, nil
}

// query runs a read with a per-call timeout, retrying connection-level
// failures. SQL errors are returned immediately. reset runs before every
// attempt so rows streamed by a failed attempt never reach the result.
func (s *Store) query(ctx context.Context, op, sql string, args []any, reset func(), scan func(pgx.Rows) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		reset()
		qctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		rows, err := s.db.Query(qctx, sql, args...)
		if err != nil {
			return classify(ctx, err)
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return backoff.Permanent(fmt.Errorf("scan: %w", err))
			}
		}
		if err := rows.Err(); err != nil {
			return classify(ctx, err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = s.maxElapsed
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("spatial store query failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	return err
}
