package audit

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists audit events to a local SQLite file, for
// development and single-machine deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) a SQLite database at the given path.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "audit: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := database.Exec(pragma); err != nil {
			database.Close()
			return nil, eris.Wrapf(err, "audit: exec %s", pragma)
		}
	}
	if _, err := database.Exec(sqliteSchema); err != nil {
		database.Close()
		return nil, eris.Wrap(err, "audit: migrate sqlite")
	}
	return &SQLiteStore{db: database}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS classification_events (
	id                TEXT PRIMARY KEY,
	request_id        TEXT NOT NULL,
	status            TEXT NOT NULL,
	lat               REAL NOT NULL,
	lng               REAL NOT NULL,
	address           TEXT,
	postcode          TEXT,
	borough           TEXT,
	list_entry_number TEXT,
	conservation_area TEXT,
	unverified        INTEGER NOT NULL DEFAULT 0,
	cache_hit         INTEGER NOT NULL DEFAULT 0,
	duration_ms       INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classification_events_status ON classification_events(status);
CREATE INDEX IF NOT EXISTS idx_classification_events_created_at ON classification_events(created_at);
`

// InsertEvent implements Store.
func (s *SQLiteStore) InsertEvent(ctx context.Context, ev *Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_events (
			id, request_id, status, lat, lng, address, postcode, borough,
			list_entry_number, conservation_area, unverified, cache_hit,
			duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RequestID, string(ev.Status), ev.Lat, ev.Lng,
		ev.Address, ev.Postcode, ev.Borough,
		ev.ListEntryNumber, ev.ConservationArea,
		ev.Unverified, ev.CacheHit, ev.DurationMS, ev.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "audit: insert event (sqlite)")
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
