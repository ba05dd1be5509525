// Package postgres implements the PostgreSQL persistence layer of the Lumen
// Adaptive Hub: learner profiles, section aggregates, the population outcome
// log, curriculum structure and snapshots, and the decision history.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrPoolClosed is returned for any operation on a closed pool.
	ErrPoolClosed = errors.New("postgres: pool closed")

	// ErrMigration wraps schema migration failures.
	ErrMigration = errors.New("postgres: migration failed")
)

// PoolOptions tunes the pgx pool beyond what the database URL carries.
// Zero fields keep whatever the URL (or pgx defaults) already set.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolOptions are sized for a single hub instance sharing one
// database with the background worker.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          10,
		MinConns:          2,
		ConnMaxLifetime:   time.Hour,
		ConnMaxIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

func (o PoolOptions) apply(cfg *pgxpool.Config) {
	if o.MaxConns > 0 {
		cfg.MaxConns = o.MaxConns
	}
	if o.MinConns > 0 {
		cfg.MinConns = o.MinConns
	}
	if o.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = o.ConnMaxLifetime
	}
	if o.ConnMaxIdleTime > 0 {
		cfg.MaxConnIdleTime = o.ConnMaxIdleTime
	}
	if o.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = o.HealthCheckPeriod
	}
}

// Connection wraps a pgxpool.Pool with a closed guard and small query
// helpers shared by the repositories.
type Connection struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// NewConnectionFromURL parses a postgres:// URL, applies the pool options
// and verifies the database is reachable before returning.
func NewConnectionFromURL(ctx context.Context, databaseURL string, opts PoolOptions) (*Connection, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}
	opts.apply(cfg)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Connection{pool: pool}, nil
}

// Close releases all pool connections. Safe to call more than once.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.pool.Close()
	}
}

// Ping reports whether the database is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrPoolClosed
	}
	return c.pool.Ping(ctx)
}

// Stat exposes pool counters for the health endpoint.
func (c *Connection) Stat() *pgxpool.Stat {
	return c.pool.Stat()
}

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx, so
// repository write paths can run the same statements inside or outside a
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Exec runs a statement that returns no rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if c.closed.Load() {
		return pgconn.CommandTag{}, ErrPoolClosed
	}
	return c.pool.Exec(ctx, sql, args...)
}

// Query runs a statement that returns rows.
func (c *Connection) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if c.closed.Load() {
		return nil, ErrPoolClosed
	}
	return c.pool.Query(ctx, sql, args...)
}

// QueryRow runs a statement that returns at most one row.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// TxOptions narrows pgx transaction options to what the repositories use.
type TxOptions struct {
	IsoLevel   pgx.TxIsoLevel
	AccessMode pgx.TxAccessMode
}

// DefaultTxOptions is read-committed read-write, matching every repository
// write path.
func DefaultTxOptions() TxOptions {
	return TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
}

// WithTx runs fn inside a transaction: commit on nil, rollback on error or
// panic (the panic is re-raised after rollback).
func (c *Connection) WithTx(ctx context.Context, opts TxOptions, fn func(pgx.Tx) error) error {
	if c.closed.Load() {
		return ErrPoolClosed
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsoLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("postgres: %v (rollback: %w)", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Error classification
// ─────────────────────────────────────────────────────────────────────────────

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsNoRows reports whether a query matched nothing.
func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// IsUniqueViolation reports a unique-constraint conflict, which the
// idempotent upsert paths treat as an already-applied write.
func IsUniqueViolation(err error) bool { return pgCode(err) == "23505" }

// IsForeignKeyViolation reports a missing referenced row, typically an
// outcome or decision written against an unknown curriculum node.
func IsForeignKeyViolation(err error) bool { return pgCode(err) == "23503" }

// ─────────────────────────────────────────────────────────────────────────────
// Schema migrations
// ─────────────────────────────────────────────────────────────────────────────

// Migration is one versioned schema step. Down is optional; Rollback
// refuses to undo a step without it.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

const migrationTable = "schema_migrations"

// Migrator applies the embedded schema migrations in version order,
// recording each applied version so reruns are no-ops.
type Migrator struct {
	conn  *Connection
	steps []Migration
}

// NewMigrator returns a migrator over the embedded schema.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, steps: schemaMigrations()}
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationTable+` (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("%w: create version table: %v", ErrMigration, err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]struct{}, error) {
	rows, err := m.conn.Query(ctx, "SELECT version FROM "+migrationTable)
	if err != nil {
		return nil, fmt.Errorf("%w: read versions: %v", ErrMigration, err)
	}
	defer rows.Close()

	applied := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: scan version: %v", ErrMigration, err)
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration, each inside its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, step := range m.steps {
		if _, done := applied[step.Version]; done {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, step.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO "+migrationTable+" (version, name) VALUES ($1, $2)",
				step.Version, step.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigration, step.Version, step.Name, err)
		}
	}
	return nil
}

// Rollback undoes the highest applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var step *Migration
	for i := range m.steps {
		if m.steps[i].Version == last {
			step = &m.steps[i]
			break
		}
	}
	if step == nil || step.Down == "" {
		return fmt.Errorf("%w: version %d has no down step", ErrMigration, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, step.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM "+migrationTable+" WHERE version = $1", last)
		return err
	})
}

func schemaMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_curriculum", Up: migration001Up, Down: migration001Down},
		{Version: 2, Name: "create_learner_state", Up: migration002Up, Down: migration002Down},
		{Version: 3, Name: "create_collective", Up: migration003Up, Down: migration003Down},
		{Version: 4, Name: "create_decisions", Up: migration004Up, Down: migration004Down},
	}
}
