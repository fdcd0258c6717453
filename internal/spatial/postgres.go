package spatial

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/db"
	"github.com/planmatter/heritage-cli/internal/model"
	"github.com/planmatter/heritage-cli/internal/resilience"
)

// Config tunes the PostGIS gateway.
type Config struct {
	// QueryTimeout bounds each query path separately: the primary
	// attempt (with retries) gets one deadline and the fallback query
	// gets a fresh one, so a primary that hangs to its deadline cannot
	// starve the fallback. Default: 5s.
	QueryTimeout time.Duration

	// Retry is applied to the primary stored-function path only; the
	// fallback query is a single attempt.
	Retry resilience.RetryConfig

	// Breaker configures the per-capability circuit breakers guarding the
	// stored-function path.
	Breaker resilience.CircuitBreakerConfig
}

// PostgresGateway implements Gateway against a PostGIS database holding
// the listed_buildings and conservation_areas tables.
//
// Each capability has two query paths: a stored function (primary, kept
// fast by the planner and guarded by retry + circuit breaker) and a
// direct inline query (fallback). Only when both fail does the lookup
// come back unverified.
type PostgresGateway struct {
	pool    db.Pool
	timeout time.Duration
	retry   resilience.RetryConfig

	buildingBreaker *resilience.CircuitBreaker
	areaBreaker     *resilience.CircuitBreaker

	log *zap.Logger
}

// NewPostgresGateway creates a gateway over the given pool.
func NewPostgresGateway(pool db.Pool, cfg Config) *PostgresGateway {
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breakerCfg := cfg.Breaker
	breakerCfg.ShouldTrip = resilience.IsTransient

	return &PostgresGateway{
		pool:            pool,
		timeout:         timeout,
		retry:           cfg.Retry,
		buildingBreaker: resilience.NewCircuitBreaker(breakerCfg),
		areaBreaker:     resilience.NewCircuitBreaker(breakerCfg),
		log:             zap.L().With(zap.String("component", "spatial.gateway")),
	}
}

const nearestBuildingFnSQL = `
	SELECT id, list_entry_number, name, grade, borough, documentation_url, distance_meters
	FROM find_nearest_listed_building($1, $2, $3)
`

// Tie-break on list_entry_number keeps the result stable when two
// buildings sit at the same distance.
const nearestBuildingDirectSQL = `
	SELECT id::text, list_entry_number, name, grade, borough, documentation_url,
	       ST_Distance(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance_meters
	FROM listed_buildings
	WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
	ORDER BY location <-> ST_SetSRID(ST_MakePoint($1, $2), 4326), list_entry_number
	LIMIT 1
`

// NearestListedBuilding implements Gateway.
func (g *PostgresGateway) NearestListedBuilding(ctx context.Context, coord model.Coordinates, radiusMeters float64) Lookup[model.ListedBuildingMatch] {
	primaryCtx, cancel := context.WithTimeout(ctx, g.timeout)
	match, err := resilience.ExecuteVal(primaryCtx, g.buildingBreaker, func(ctx context.Context) (*model.ListedBuildingMatch, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*model.ListedBuildingMatch, error) {
			return g.scanBuilding(ctx, nearestBuildingFnSQL, coord.Lng, coord.Lat, radiusMeters)
		})
	})
	cancel()
	if err == nil {
		return asLookup(match)
	}

	g.log.Warn("listed building primary lookup failed, trying direct query",
		zap.Float64("lat", coord.Lat),
		zap.Float64("lng", coord.Lng),
		zap.String("cause", failureCause(err)),
		zap.Error(err),
	)

	// The primary may have consumed its whole deadline; the fallback
	// gets its own, derived from the caller's context.
	fallbackCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	match, err = g.scanBuilding(fallbackCtx, nearestBuildingDirectSQL, coord.Lng, coord.Lat, radiusMeters)
	if err != nil {
		g.log.Warn("listed building lookup unverified, both query paths failed",
			zap.Float64("lat", coord.Lat),
			zap.Float64("lng", coord.Lng),
			zap.String("cause", failureCause(err)),
			zap.Error(err),
		)
		return Unverified[model.ListedBuildingMatch]()
	}
	return asLookup(match)
}

// scanBuilding runs a nearest-building query and scans the single result
// row. Returns (nil, nil) when no building is within the radius.
func (g *PostgresGateway) scanBuilding(ctx context.Context, sql string, lng, lat, radiusMeters float64) (*model.ListedBuildingMatch, error) {
	var m model.ListedBuildingMatch
	var grade string

	err := g.pool.QueryRow(ctx, sql, lng, lat, radiusMeters).Scan(
		&m.ID, &m.ListEntryNumber, &m.Name, &grade, &m.Borough, &m.DocumentationURL, &m.DistanceMeters,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	m.Grade = model.ParseGrade(grade)
	return &m, nil
}

const conservationAreaFnSQL = `
	SELECT id, name, borough, has_article_4, article_4_restrictions
	FROM find_conservation_area($1, $2)
`

const conservationAreaDirectSQL = `
	SELECT id::text, name, borough, has_article_4, article_4_restrictions
	FROM conservation_areas
	WHERE ST_Contains(boundary, ST_SetSRID(ST_MakePoint($1, $2), 4326))
	ORDER BY id
	LIMIT 1
`

// ConservationArea implements Gateway.
func (g *PostgresGateway) ConservationArea(ctx context.Context, coord model.Coordinates) Lookup[model.ConservationAreaMatch] {
	primaryCtx, cancel := context.WithTimeout(ctx, g.timeout)
	match, err := resilience.ExecuteVal(primaryCtx, g.areaBreaker, func(ctx context.Context) (*model.ConservationAreaMatch, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*model.ConservationAreaMatch, error) {
			return g.scanArea(ctx, conservationAreaFnSQL, coord.Lng, coord.Lat)
		})
	})
	cancel()
	if err == nil {
		return asLookup(match)
	}

	g.log.Warn("conservation area primary lookup failed, trying direct query",
		zap.Float64("lat", coord.Lat),
		zap.Float64("lng", coord.Lng),
		zap.String("cause", failureCause(err)),
		zap.Error(err),
	)

	fallbackCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	match, err = g.scanArea(fallbackCtx, conservationAreaDirectSQL, coord.Lng, coord.Lat)
	if err != nil {
		g.log.Warn("conservation area lookup unverified, both query paths failed",
			zap.Float64("lat", coord.Lat),
			zap.Float64("lng", coord.Lng),
			zap.String("cause", failureCause(err)),
			zap.Error(err),
		)
		return Unverified[model.ConservationAreaMatch]()
	}
	return asLookup(match)
}

// scanArea runs a containment query and scans the single result row.
// Returns (nil, nil) when the point is outside every conservation area.
func (g *PostgresGateway) scanArea(ctx context.Context, sql string, lng, lat float64) (*model.ConservationAreaMatch, error) {
	var m model.ConservationAreaMatch

	err := g.pool.QueryRow(ctx, sql, lng, lat).Scan(
		&m.ID, &m.Name, &m.Borough, &m.HasArticle4, &m.Article4Restrictions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func asLookup[T any](m *T) Lookup[T] {
	if m == nil {
		return Absent[T]()
	}
	return Found(m)
}

// failureCause buckets an error for log filtering.
func failureCause(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case resilience.IsTransient(err):
		return "unavailable"
	default:
		return "invalid_response"
	}
}
