package spatial

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planmatter/heritage-cli/internal/model"
	"github.com/planmatter/heritage-cli/internal/resilience"
)

var camden = model.Coordinates{Lat: 51.5390, Lng: -0.1426}

func newTestGateway(t *testing.T) (*PostgresGateway, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	g := NewPostgresGateway(mock, Config{
		QueryTimeout: time.Second,
		Retry:        resilience.RetryConfig{MaxAttempts: 1},
	})
	return g, mock
}

func buildingRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "list_entry_number", "name", "grade", "borough", "documentation_url", "distance_meters",
	})
}

func areaRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "borough", "has_article_4", "article_4_restrictions",
	})
}

func TestNearestListedBuilding_PrimaryFound(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`find_nearest_listed_building`).
		WithArgs(camden.Lng, camden.Lat, 100.0).
		WillReturnRows(buildingRows().AddRow(
			"b1", "1379249", "St Pancras Station", "I", "Camden",
			"https://historicengland.org.uk/listing/the-list/list-entry/1379249", 12.5,
		))

	lookup := g.NearestListedBuilding(context.Background(), camden, 100)

	assert.Equal(t, OutcomeFound, lookup.Outcome)
	require.NotNil(t, lookup.Match)
	assert.Equal(t, "1379249", lookup.Match.ListEntryNumber)
	assert.Equal(t, model.GradeI, lookup.Match.Grade)
	assert.InDelta(t, 12.5, lookup.Match.DistanceMeters, 0.001)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestListedBuilding_PrimaryNoRows(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`find_nearest_listed_building`).
		WithArgs(camden.Lng, camden.Lat, 100.0).
		WillReturnError(pgx.ErrNoRows)

	lookup := g.NearestListedBuilding(context.Background(), camden, 100)

	assert.Equal(t, OutcomeAbsent, lookup.Outcome)
	assert.Nil(t, lookup.Match)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestListedBuilding_FallbackAfterPrimaryFailure(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`find_nearest_listed_building`).
		WithArgs(camden.Lng, camden.Lat, 100.0).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectQuery(`FROM listed_buildings`).
		WithArgs(camden.Lng, camden.Lat, 100.0).
		WillReturnRows(buildingRows().AddRow(
			"b2", "1066530", "Keats House", "I", "Camden", "", 40.0,
		))

	lookup := g.NearestListedBuilding(context.Background(), camden, 100)

	assert.Equal(t, OutcomeFound, lookup.Outcome)
	require.NotNil(t, lookup.Match)
	assert.Equal(t, "Keats House", lookup.Match.Name)

	require.NoError(t, mock.ExpectationsWereMet())
}

// scanFunc adapts a closure to pgx.Row.
type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// hangingPool simulates a database where the stored-function calls hang
// until their context deadline while the direct queries answer promptly.
type hangingPool struct {
	directCalls atomic.Int32
}

func (p *hangingPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if strings.Contains(sql, "find_nearest_listed_building") || strings.Contains(sql, "find_conservation_area") {
		return scanFunc(func(dest ...any) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}
	p.directCalls.Add(1)
	return scanFunc(func(dest ...any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.Contains(sql, "FROM listed_buildings") {
			*dest[0].(*string) = "b1"
			*dest[1].(*string) = "1379249"
			*dest[2].(*string) = "St Pancras Station"
			*dest[3].(*string) = "I"
			*dest[4].(*string) = "Camden"
			*dest[5].(*string) = ""
			*dest[6].(*float64) = 12.5
			return nil
		}
		*dest[0].(*string) = "ca1"
		*dest[1].(*string) = "Hampstead Conservation Area"
		*dest[2].(*string) = "Camden"
		*dest[3].(*bool) = true
		*dest[4].(*[]string) = []string{"Roof materials"}
		return nil
	})
}

func (p *hangingPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, assert.AnError
}

func (p *hangingPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, assert.AnError
}

func (p *hangingPool) Begin(ctx context.Context) (pgx.Tx, error) { return nil, assert.AnError }
func (p *hangingPool) Ping(ctx context.Context) error            { return nil }

func TestNearestListedBuilding_FallbackAfterPrimaryConsumesDeadline(t *testing.T) {
	pool := &hangingPool{}
	g := NewPostgresGateway(pool, Config{
		QueryTimeout: 50 * time.Millisecond,
		Retry:        resilience.RetryConfig{MaxAttempts: 1},
	})

	lookup := g.NearestListedBuilding(context.Background(), camden, 100)

	assert.Equal(t, OutcomeFound, lookup.Outcome)
	require.NotNil(t, lookup.Match)
	assert.Equal(t, "St Pancras Station", lookup.Match.Name)
	assert.Equal(t, int32(1), pool.directCalls.Load())
}

func TestConservationArea_FallbackAfterPrimaryConsumesDeadline(t *testing.T) {
	pool := &hangingPool{}
	g := NewPostgresGateway(pool, Config{
		QueryTimeout: 50 * time.Millisecond,
		Retry:        resilience.RetryConfig{MaxAttempts: 1},
	})

	lookup := g.ConservationArea(context.Background(), camden)

	assert.Equal(t, OutcomeFound, lookup.Outcome)
	require.NotNil(t, lookup.Match)
	assert.True(t, lookup.Match.HasArticle4)
	assert.Equal(t, int32(1), pool.directCalls.Load())
}

func TestNearestListedBuilding_BothPathsFail(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`find_nearest_listed_building`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectQuery(`FROM listed_buildings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	lookup := g.NearestListedBuilding(context.Background(), camden, 100)

	assert.Equal(t, OutcomeUnverified, lookup.Outcome)
	assert.Nil(t, lookup.Match)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestListedBuilding_RetriesTransientThenSucceeds(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	g := NewPostgresGateway(mock, Config{
		QueryTimeout: time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
		},
	})

	mock.ExpectQuery(`find_nearest_listed_building`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(resilience.NewTransientError(assert.AnError, 0))
	mock.ExpectQuery(`find_nearest_listed_building`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(buildingRows().AddRow(
			"b1", "1379249", "St Pancras Station", "I", "Camden", "", 12.5,
		))

	lookup := g.NearestListedBuilding(context.Background(), camden, 100)

	assert.Equal(t, OutcomeFound, lookup.Outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConservationArea_PrimaryFound(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`find_conservation_area`).
		WithArgs(camden.Lng, camden.Lat).
		WillReturnRows(areaRows().AddRow(
			"ca1", "Hampstead Conservation Area", "Camden", true,
			[]string{"Front boundary walls", "Roof materials"},
		))

	lookup := g.ConservationArea(context.Background(), camden)

	assert.Equal(t, OutcomeFound, lookup.Outcome)
	require.NotNil(t, lookup.Match)
	assert.True(t, lookup.Match.HasArticle4)
	assert.Equal(t, []string{"Front boundary walls", "Roof materials"}, lookup.Match.Article4Restrictions)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConservationArea_OutsideAllPolygons(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`find_conservation_area`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	lookup := g.ConservationArea(context.Background(), camden)

	assert.Equal(t, OutcomeAbsent, lookup.Outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConservationArea_FallbackContainmentQuery(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`find_conservation_area`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectQuery(`FROM conservation_areas`).
		WithArgs(camden.Lng, camden.Lat).
		WillReturnRows(areaRows().AddRow(
			"ca2", "Camden Town Conservation Area", "Camden", false, []string(nil),
		))

	lookup := g.ConservationArea(context.Background(), camden)

	assert.Equal(t, OutcomeFound, lookup.Outcome)
	require.NotNil(t, lookup.Match)
	assert.False(t, lookup.Match.HasArticle4)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConservationArea_BothPathsFail(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`find_conservation_area`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectQuery(`FROM conservation_areas`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	lookup := g.ConservationArea(context.Background(), camden)

	assert.Equal(t, OutcomeUnverified, lookup.Outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	g := NewPostgresGateway(mock, Config{
		QueryTimeout: time.Second,
		Retry:        resilience.RetryConfig{MaxAttempts: 1},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 2,
			ResetTimeout:     time.Minute,
		},
	})

	// Two transient failures trip the breaker; each falls back to the
	// direct query.
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`find_nearest_listed_building`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(resilience.NewTransientError(assert.AnError, 0))
		mock.ExpectQuery(`FROM listed_buildings`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)
		g.NearestListedBuilding(context.Background(), camden, 100)
	}

	// Third call skips the stored function entirely: only the direct
	// query should hit the database.
	mock.ExpectQuery(`FROM listed_buildings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	lookup := g.NearestListedBuilding(context.Background(), camden, 100)

	assert.Equal(t, OutcomeAbsent, lookup.Outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailureCause(t *testing.T) {
	assert.Equal(t, "timeout", failureCause(context.DeadlineExceeded))
	assert.Equal(t, "circuit_open", failureCause(resilience.ErrCircuitOpen))
	assert.Equal(t, "unavailable", failureCause(resilience.NewTransientError(assert.AnError, 503)))
	assert.Equal(t, "invalid_response", failureCause(assert.AnError))
}
