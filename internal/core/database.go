// AngelaMos | 2026
// database.go

package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/promptstudio/api/internal/config"
)

const (
	dbDriver      = "pgx"
	dbPingTimeout = 5 * time.Second

	// lifetimes are spread by up to a seventh so pooled connections do not
	// all recycle in the same instant
	lifetimeJitterDivisor = 7
)

// DBTX is the query surface shared by *sqlx.DB and *sqlx.Tx. Repositories
// accept it so the same code runs inside or outside a transaction.
type DBTX interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Transactor runs fn inside a single database transaction. Repositories built
// on q see the same snapshot and their writes commit or roll back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(q DBTX) error) error
}

type Database struct {
	DB *sqlx.DB
}

func NewDatabase(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	db, err := sqlx.ConnectContext(ctx, dbDriver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	applyPool(db.DB, cfg)

	d := &Database{DB: db}
	if err := d.Ping(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // connection never became usable
		return nil, err
	}

	return d, nil
}

func applyPool(db *sql.DB, cfg config.DatabaseConfig) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(jitter(cfg.ConnMaxLifetime))
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (d *Database) Stats() sql.DBStats {
	return d.DB.Stats()
}

func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// WithinTx commits when fn returns nil and rolls back otherwise. A panic in
// fn rolls back before it is re-raised.
func (d *Database) WithinTx(ctx context.Context, fn func(q DBTX) error) (err error) {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback() //nolint:errcheck // re-panicking below
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		return rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func rollback(tx *sqlx.Tx, cause error) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}

func jitter(base time.Duration) time.Duration {
	if base < lifetimeJitterDivisor {
		return base
	}
	//nolint:gosec // G404: pool timing, not security sensitive
	return base + time.Duration(rand.Int64N(int64(base/lifetimeJitterDivisor)))
}

var _ Transactor = (*Database)(nil)
