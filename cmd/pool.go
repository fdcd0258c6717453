package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/planmatter/heritage-cli/internal/db"
)

// heritagePool opens the configured Postgres pool.
func heritagePool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("no database_url configured (set store.database_url)")
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
		MaxConns: int32(cfg.Store.MaxConns),
		MinConns: int32(cfg.Store.MinConns),
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
