package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Postgres/CockroachDB driver.
	_ "github.com/lib/pq"
	// Pure-Go SQLite driver, no cgo.
	_ "modernc.org/sqlite"
)

// PoolConfig configures connection pooling shared by both backends.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolConfig returns production-sized pool defaults.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// dialect distinguishes the two SQL placeholder/feature conventions the
// shared SQLStore supports.
type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// Open connects to either a Postgres/CockroachDB DSN (postgres://...) or a
// SQLite DSN (file path or "file::memory:?cache=shared"), returning a fully
// wired Store. The dialect is inferred from the DSN scheme per spec §6's
// single DB-URL configuration knob.
func Open(ctx context.Context, dsn string, cfg *PoolConfig) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return Store{}, fmt.Errorf("database url is required")
	}
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}

	driver, dia := driverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return Store{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return Store{}, fmt.Errorf("ping database: %w", err)
	}

	if dia == dialectSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return Store{}, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}

	if err := applySchema(ctx, db, dia); err != nil {
		_ = db.Close()
		return Store{}, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLStore{db: db, dialect: dia}
	return Store{
		Users:       s,
		Facts:       s,
		Messages:    s,
		Tasks:       s,
		Alerts:      s,
		OAuthTokens: s,
		Webhooks:    s,
		ToolUsage:   s,
		pinger:      db,
		closer:      db.Close,
	}, nil
}

// PoolStats reports the connection pool's current utilization, the same
// fields sql.DB.Stats exposes, for the health tool and metrics endpoint.
type PoolStats struct {
	OpenConnections int
	InUse           int
	Idle            int
}

// Ping checks connectivity to the underlying database within the given
// context's deadline. Returns nil immediately for a store with no backing
// connection (e.g. storage.NewMemoryStore in tests).
func (s Store) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	return s.pinger.PingContext(ctx)
}

// Stats returns the current pool utilization, or a zero value when there
// is no backing connection pool.
func (s Store) Stats() PoolStats {
	if s.pinger == nil {
		return PoolStats{}
	}
	stats := s.pinger.Stats()
	return PoolStats{OpenConnections: stats.OpenConnections, InUse: stats.InUse, Idle: stats.Idle}
}

func driverFor(dsn string) (string, dialect) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", dialectPostgres
	}
	return "sqlite", dialectSQLite
}
