// Package postgres implements the workledger store on PostgreSQL with GORM.
//
// Connect opens the pool and runs AutoMigrate for every entity model, so a fresh
// database is usable without a separate migration step. AutoMigrate only adds tables,
// columns and indexes; it never drops anything.
//
// Transactions are native: [Driver.Begin] returns a GORM transaction wrapped as a
// [store.Tx].
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/logger"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

var _ driver.Driver = (*Driver)(nil)

// Pool sizes the underlying database/sql pool.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Option func(*Driver)

func WithLogger(l logger.Logger) Option {
	return func(d *Driver) { d.log = l }
}

func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

func WithPool(p Pool) Option {
	return func(d *Driver) { d.pool = p }
}

// WithSlowQuery sets the duration above which a statement is logged as slow.
func WithSlowQuery(threshold time.Duration) Option {
	return func(d *Driver) { d.slow = threshold }
}

type Driver struct {
	dsn   string
	log   logger.Logger
	clock clock.Clock
	pool  Pool
	slow  time.Duration

	mu sync.RWMutex
	db *gorm.DB
}

func New(dsn string, opts ...Option) *Driver {
	d := &Driver{
		dsn:   dsn,
		log:   logger.Nop,
		clock: clock.New(),
		pool: Pool{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		slow: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string { return constants.DriverPostgres }

func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return nil
	}

	db, err := gorm.Open(postgres.Open(d.dsn), &gorm.Config{
		Logger:  newGormLogger(d.log, d.slow),
		NowFunc: func() time.Time { return d.clock.Now().UTC() },
	})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(d.pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(d.pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(d.pool.ConnMaxLifetime)

	if err := db.WithContext(ctx).AutoMigrate(&models.Company{}, &models.Employee{}, &models.Document{}); err != nil {
		sqlDB.Close()
		return fmt.Errorf("migrate postgres: %w", err)
	}
	d.db = db
	return nil
}

func (d *Driver) conn() (*gorm.DB, error) {
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
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	d.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
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

func (d *Driver) Begin(ctx context.Context) (store.Tx, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin: %w", tx.Error)
	}
	return &gormTx{ops: d.ops(tx), tx: tx}, nil
}

func (d *Driver) ops(db *gorm.DB) *ops {
	return &ops{db: db, clock: d.clock}
}

type gormTx struct {
	*ops
	tx *gorm.DB

	mu   sync.Mutex
	done bool
}

func (t *gormTx) finish() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return constants.ErrTxDone
	}
	t.done = true
	return nil
}

func (t *gormTx) Commit(context.Context) error {
	if err := t.finish(); err != nil {
		return err
	}
	return t.tx.Commit().Error
}

func (t *gormTx) Rollback(context.Context) error {
	if err := t.finish(); err != nil {
		return err
	}
	if err := t.tx.Rollback().Error; err != nil && !errors.Is(err, gorm.ErrInvalidTransaction) {
		return err
	}
	return nil
}
