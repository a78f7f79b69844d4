// Package database owns the PostgreSQL connection pool. The pool is an
// explicitly passed, reference-counted handle: components Retain it while they
// use it and Release it on shutdown; the last Release closes the connections.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrPoolClosed is returned once every reference to the pool was released.
var ErrPoolClosed = errors.New("database pool closed")

// Config describes how to open a pool.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
}

// Pool hands out connections with scoped acquisition.
type Pool struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
	refs           atomic.Int64
}

// Open connects to the database and verifies it is reachable.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPool(db, cfg.AcquireTimeout), nil
}

// NewPool wraps an already opened handle. The caller owns the first reference.
func NewPool(db *sqlx.DB, acquireTimeout time.Duration) *Pool {
	p := &Pool{db: db, acquireTimeout: acquireTimeout}
	p.refs.Store(1)
	return p
}

// Retain adds a reference and returns the pool for convenient chaining.
func (p *Pool) Retain() *Pool {
	if p.refs.Add(1) <= 1 {
		panic("database: Retain on released pool")
	}
	return p
}

// Release drops a reference. The last one closes the underlying handle.
func (p *Pool) Release() error {
	switch n := p.refs.Add(-1); {
	case n == 0:
		return p.db.Close()
	case n < 0:
		return ErrPoolClosed
	default:
		return nil
	}
}

// Refs reports the current reference count.
func (p *Pool) Refs() int64 {
	return p.refs.Load()
}

// DB exposes the raw handle for collectors and migrations.
func (p *Pool) DB() *sql.DB {
	return p.db.DB
}

// Stats returns pool statistics.
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// Ping checks connectivity through a leased connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return Classify(ctx, "ping", conn.PingContext(ctx))
	})
}

// WithConn leases one connection for the duration of fn. The connection goes
// back to the pool on every exit path.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sqlx.Conn) error) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(ctx, conn)
}

// WithTx runs fn inside a transaction on a leased connection. The transaction
// commits only when fn returns nil; errors, panics and context expiry roll it
// back. Errors returned by fn are passed through unchanged. A commit that
// loses its connection reports KindIndeterminate and is not retried.
func (p *Pool) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return Classify(ctx, "begin", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return ClassifyCommit(ctx, err)
	}
	committed = true
	return nil
}

func (p *Pool) acquire(ctx context.Context) (*sqlx.Conn, error) {
	if p.refs.Load() <= 0 {
		return nil, &Error{Op: "acquire", Kind: KindFatal, Err: ErrPoolClosed}
	}

	acquireCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.acquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
	}
	defer cancel()

	conn, err := p.db.Connx(acquireCtx)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, &Error{Op: "acquire", Kind: KindPoolExhausted, Err: err}
	}
	return nil, Classify(ctx, "acquire", err)
}
