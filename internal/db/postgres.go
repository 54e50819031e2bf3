// Package db persists generation results and usage events in Postgres.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

// PoolSettings override the pgx pool defaults. Zero fields keep whatever the URL or pgx chose.
type PoolSettings struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func NewDB(ctx context.Context, databaseURL string, settings PoolSettings) (*DB, error) {
	config, err := poolConfig(databaseURL, settings)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &DB{Pool: pool}, nil
}

func poolConfig(databaseURL string, s PoolSettings) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	if s.MaxConns > 0 {
		config.MaxConns = s.MaxConns
	}
	if s.MinConns > 0 {
		config.MinConns = min(s.MinConns, config.MaxConns)
	}
	if s.MaxConnLifetime > 0 {
		config.MaxConnLifetime = s.MaxConnLifetime
	}
	if s.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = s.MaxConnIdleTime
	}
	if s.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = s.HealthCheckPeriod
	}
	return config, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.Pool.Close()
}
