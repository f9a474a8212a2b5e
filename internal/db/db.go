package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

type Options struct {
	Driver   string
	DSN      string
	MaxConns int
	MinConns int
}

// DB exposes a database/sql handle regardless of the driver underneath.
type DB struct {
	SQL  *sql.DB
	pool *pgxpool.Pool
}

func Open(ctx context.Context, opt Options) (*DB, error) {
	if opt.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if opt.MaxConns <= 0 {
		opt.MaxConns = 10
	}
	if opt.MinConns < 0 {
		opt.MinConns = 0
	}

	var (
		d   *DB
		err error
	)
	switch opt.Driver {
	case "", DriverPgx:
		d, err = openPgx(ctx, opt)
	case DriverPQ:
		d, err = openPQ(opt)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opt.Driver)
	}
	if err != nil {
		return nil, err
	}

	// Fail fast
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := d.SQL.PingContext(pingCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return d, nil
}

func openPgx(ctx context.Context, opt Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opt.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = int32(opt.MaxConns)
	cfg.MinConns = int32(opt.MinConns)
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	return &DB{SQL: stdlib.OpenDBFromPool(pool), pool: pool}, nil
}

func openPQ(opt Options) (*DB, error) {
	sqlDB, err := sql.Open(DriverPQ, opt.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB.SetMaxOpenConns(opt.MaxConns)
	sqlDB.SetMaxIdleConns(opt.MinConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return &DB{SQL: sqlDB}, nil
}

func (d *DB) Close() {
	if d == nil {
		return
	}
	if d.SQL != nil {
		_ = d.SQL.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
