// Package postgres persists accounts and characters in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/fibula/internal/config"
)

// Pool owns the game's connection pool. Repositories borrow it through DB;
// the server polls it through Check and Stats.
type Pool struct {
	pool *pgxpool.Pool
}

// PoolStats is a snapshot of connection usage.
type PoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
	Max      int32
	// Acquires counts successful acquisitions since the pool opened.
	Acquires int64
	// EmptyAcquires counts acquisitions that had to wait for a connection.
	EmptyAcquires int64
	// AcquireWait is the total time spent acquiring connections.
	AcquireWait time.Duration
}

// Saturated reports whether every allowed connection is checked out.
func (s PoolStats) Saturated() bool {
	return s.Max > 0 && s.Acquired >= s.Max
}

// HealthReport is the outcome of one Check.
type HealthReport struct {
	Latency time.Duration
	Stats   PoolStats
}

// NewPool opens a pool for cfg and verifies the server answers.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error; on error no
// connections are left open.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening pool for %s/%s: %w", cfg.Host, cfg.Name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reaching %s/%s: %w", cfg.Host, cfg.Name, err)
	}
	return &Pool{pool: pool}, nil
}

// Check pings the server within timeout and reports how long it took along
// with the pool's usage.
//
// Postcondition: The report's Stats are filled in even when the ping fails.
func (p *Pool) Check(ctx context.Context, timeout time.Duration) (HealthReport, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	err := p.pool.Ping(ctx)
	report := HealthReport{Latency: time.Since(start), Stats: p.Stats()}
	if err != nil {
		return report, fmt.Errorf("pinging database: %w", err)
	}
	return report, nil
}

// Stats returns current connection usage.
func (p *Pool) Stats() PoolStats {
	st := p.pool.Stat()
	return PoolStats{
		Total:         st.TotalConns(),
		Idle:          st.IdleConns(),
		Acquired:      st.AcquiredConns(),
		Max:           st.MaxConns(),
		Acquires:      st.AcquireCount(),
		EmptyAcquires: st.EmptyAcquireCount(),
		AcquireWait:   st.AcquireDuration(),
	}
}

// Close releases all connections. The Pool is unusable afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for the repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
