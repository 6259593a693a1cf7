package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/sewagewatch/cso-live-service/internal/observability"
)

// beginner starts a transaction. Satisfied by *pgxpool.Pool; tests swap in
// a fake.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB executes named units of work, one transaction per call, and emits a
// QueryEvent with the call's duration whether it committed or rolled back.
type DB struct {
	pool   *pgxpool.Pool
	begin  beginner
	clock  clockwork.Clock
	events observability.Sink
}

// New connects a pgx pool to the given URL and verifies it with a ping.
func New(ctx context.Context, url string, clock clockwork.Clock, events observability.Sink) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool, begin: pool, clock: clock, events: events}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping reports connectivity, used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return nil
	}
	return db.pool.Ping(ctx)
}

// Execute runs fn inside a single transaction. Commit on success; on any
// error the transaction is rolled back and fn's error propagates
// unchanged. The query name exists only for observability.
func (db *DB) Execute(ctx context.Context, name string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	start := db.clock.Now()
	defer func() {
		db.events.Emit(observability.QueryEvent{Name: name, Duration: db.clock.Since(start)})
	}()

	tx, err := db.begin.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}

	if err := fn(ctx, tx); err != nil {
		// Best-effort rollback; the unit of work's error is the one that matters.
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
