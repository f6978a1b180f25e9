// Package sqlite implements the workledger store on SQLite through database/sql and
// the pure Go modernc.org/sqlite engine.
//
// The driver opens one connection: SQLite allows a single writer, and an in-memory
// database is private to the connection that created it. Connect applies the schema
// and is idempotent.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	_ "modernc.org/sqlite"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is recorded in PRAGMA user_version.
const schemaVersion = 1

var _ driver.Driver = (*Driver)(nil)

type Option func(*Driver)

func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// Driver stores entities in a SQLite database file, or in memory for ":memory:".
type Driver struct {
	path  string
	clock clock.Clock

	mu sync.RWMutex
	db *sql.DB
}

// New returns a driver for the database at path. Nothing is opened until Connect.
func New(path string, opts ...Option) *Driver {
	d := &Driver{path: path, clock: clock.New()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string { return constants.DriverSQLite }

func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", d.path)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return err
	}
	d.db = db
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

func (d *Driver) conn() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, constants.ErrNotConnected
	}
	return d.db, nil
}

func (d *Driver) Ping(ctx context.Context) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	var one int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Driver) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	return d.ops(db).Get(ctx, kind, id)
}

func (d *Driver) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	return d.ops(db).List(ctx, kind, page)
}

func (d *Driver) Insert(ctx context.Context, e models.Entity) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return d.ops(db).Insert(ctx, e)
}

func (d *Driver) Update(ctx context.Context, e models.Entity) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return d.ops(db).Update(ctx, e)
}

func (d *Driver) Delete(ctx context.Context, kind models.Kind, id int64) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return d.ops(db).Delete(ctx, kind, id)
}

// Begin opens a native SQLite transaction. The single connection stays with the
// transaction until Commit or Rollback.
func (d *Driver) Begin(ctx context.Context) (store.Tx, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &sqlTx{ops: d.ops(tx), tx: tx}, nil
}

func (d *Driver) ops(q querier) *ops {
	return &ops{q: q, clock: d.clock}
}

type sqlTx struct {
	*ops
	tx   *sql.Tx
	done atomic.Bool
}

func (t *sqlTx) Commit(context.Context) error {
	if !t.done.CompareAndSwap(false, true) {
		return constants.ErrTxDone
	}
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(context.Context) error {
	if !t.done.CompareAndSwap(false, true) {
		return constants.ErrTxDone
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
