package audit

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/planmatter/heritage-cli/internal/db"
)

// PostgresStore persists audit events to the classification_events table.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgresStore wraps an existing pool. closeFn may be nil when the
// pool is owned elsewhere.
func NewPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn}
}

const insertEventSQL = `
	INSERT INTO classification_events (
		id, request_id, status, lat, lng, address, postcode, borough,
		list_entry_number, conservation_area, unverified, cache_hit,
		duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

// InsertEvent implements Store.
func (s *PostgresStore) InsertEvent(ctx context.Context, ev *Event) error {
	_, err := s.pool.Exec(ctx, insertEventSQL,
		ev.ID, ev.RequestID, string(ev.Status), ev.Lat, ev.Lng,
		nilIfEmpty(ev.Address), nilIfEmpty(ev.Postcode), nilIfEmpty(ev.Borough),
		nilIfEmpty(ev.ListEntryNumber), nilIfEmpty(ev.ConservationArea),
		ev.Unverified, ev.CacheHit, ev.DurationMS, ev.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "audit: insert event")
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
