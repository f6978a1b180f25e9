// Package surrealdb implements the workledger store on SurrealDB.
//
// Each entity is one record keyed by its numeric ID, e.g. employees:42. The record
// holds the ID as seq, for ordering, and the entity itself as CBOR bytes in body.
// Auto-assigned IDs come from a per-kind counter record in the workledger_seq table.
//
// SurrealDB is schemaless, so Connect only selects the namespace and database.
// Transactions are buffered client-side and replayed on commit; the replay is not
// atomic.
package surrealdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

// seqTable holds one counter record per entity kind.
const seqTable = "workledger_seq"

var _ driver.Driver = (*Driver)(nil)

// Config locates the SurrealDB endpoint. Username and Password are optional.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

type Option func(*Driver)

func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

type Driver struct {
	cfg   Config
	clock clock.Clock

	mu sync.RWMutex
	db *surrealdb.DB
}

func New(cfg Config, opts ...Option) *Driver {
	if cfg.Namespace == "" {
		cfg.Namespace = "workledger"
	}
	if cfg.Database == "" {
		cfg.Database = "workledger"
	}
	d := &Driver{cfg: cfg, clock: clock.New()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string { return constants.DriverSurrealDB }

func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return nil
	}

	db, err := surrealdb.FromEndpointURLString(ctx, d.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to surrealdb: %w", err)
	}
	if d.cfg.Username != "" {
		if _, err := db.SignIn(ctx, surrealdb.Auth{
			Username: d.cfg.Username,
			Password: d.cfg.Password,
		}); err != nil {
			db.Close(ctx)
			return fmt.Errorf("sign in to surrealdb: %w", err)
		}
	}
	if err := db.Use(ctx, d.cfg.Namespace, d.cfg.Database); err != nil {
		db.Close(ctx)
		return fmt.Errorf("use %s/%s: %w", d.cfg.Namespace, d.cfg.Database, err)
	}
	d.db = db
	return nil
}

func (d *Driver) conn() (*surrealdb.DB, error) {
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
	_, err = surrealdb.Query[bool](ctx, db, "RETURN true", nil)
	return err
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close(context.Background())
	d.db = nil
	return err
}

// Begin returns a buffered transaction replayed through the driver on commit.
func (d *Driver) Begin(ctx context.Context) (store.Tx, error) {
	if _, err := d.conn(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return store.NewBufferedTx(d, store.ApplySequential(d)), nil
}

type record struct {
	Seq  int64  `json:"seq"`
	Body []byte `json:"body"`
}

func (r record) decode(kind models.Kind) (models.Entity, error) {
	e, err := models.UnmarshalCBOR(kind, r.Body)
	if err != nil {
		return nil, err
	}
	e.SetEntityID(r.Seq)
	return e, nil
}

// firstResult returns the result of the first statement of a query.
func firstResult[T any](res *[]surrealdb.QueryResult[T]) (T, bool) {
	var zero T
	if res == nil || len(*res) == 0 {
		return zero, false
	}
	return (*res)[0].Result, true
}

func (d *Driver) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	res, err := surrealdb.Query[[]record](ctx, db,
		"SELECT seq, body FROM type::thing($tb, $id)",
		map[string]any{"tb": string(kind), "id": id})
	if err != nil {
		return nil, fmt.Errorf("get %s/%d: %w", kind, id, err)
	}
	rows, _ := firstResult(res)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].decode(kind)
}

func (d *Driver) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	page = page.Normalize()
	res, err := surrealdb.Query[[]record](ctx, db,
		"SELECT seq, body FROM type::table($tb) ORDER BY seq ASC LIMIT $limit START $start",
		map[string]any{"tb": string(kind), "limit": page.Limit, "start": page.Offset})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	rows, _ := firstResult(res)
	out := make([]models.Entity, 0, len(rows))
	for _, r := range rows {
		e, err := r.decode(kind)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *Driver) Insert(ctx context.Context, e models.Entity) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	if err := models.Validate(e); err != nil {
		return err
	}
	kind := e.EntityKind()

	if e.EntityID() == 0 {
		id, err := d.nextID(ctx, db, kind)
		if err != nil {
			return fmt.Errorf("insert %s: %w", kind, err)
		}
		e.SetEntityID(id)
	} else if err := d.bumpSeq(ctx, db, kind, e.EntityID()); err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}

	e.Touch(d.clock.Now().UTC())
	body, err := models.MarshalCBOR(e)
	if err != nil {
		return err
	}
	_, err = surrealdb.Query[any](ctx, db,
		"CREATE type::thing($tb, $id) CONTENT { seq: $id, body: $body } RETURN NONE",
		map[string]any{"tb": string(kind), "id": e.EntityID(), "body": body})
	if err != nil {
		return fmt.Errorf("insert %s/%d: %w", kind, e.EntityID(), err)
	}
	return nil
}

func (d *Driver) nextID(ctx context.Context, db *surrealdb.DB, kind models.Kind) (int64, error) {
	res, err := surrealdb.Query[[]int64](ctx, db,
		"UPSERT type::thing($seq, $tb) SET n += 1 RETURN VALUE n",
		map[string]any{"seq": seqTable, "tb": string(kind)})
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	ids, _ := firstResult(res)
	if len(ids) == 0 {
		return 0, fmt.Errorf("next id: empty counter result")
	}
	return ids[0], nil
}

func (d *Driver) bumpSeq(ctx context.Context, db *surrealdb.DB, kind models.Kind, id int64) error {
	_, err := surrealdb.Query[any](ctx, db,
		"UPSERT type::thing($seq, $tb) SET n = math::max([n ?? 0, $id]) RETURN NONE",
		map[string]any{"seq": seqTable, "tb": string(kind), "id": id})
	if err != nil {
		return fmt.Errorf("advance counter: %w", err)
	}
	return nil
}

func (d *Driver) Update(ctx context.Context, e models.Entity) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	if err := models.Validate(e); err != nil {
		return err
	}
	kind := e.EntityKind()
	cur, err := d.Get(ctx, kind, e.EntityID())
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, e.EntityID())
	}
	if a, b := models.TimestampsOf(cur), models.TimestampsOf(e); a != nil && b != nil {
		b.CreatedAt = a.CreatedAt
	}
	e.Touch(d.clock.Now().UTC())

	body, err := models.MarshalCBOR(e)
	if err != nil {
		return err
	}
	res, err := surrealdb.Query[[]int64](ctx, db,
		"UPDATE type::thing($tb, $id) SET body = $body RETURN VALUE seq",
		map[string]any{"tb": string(kind), "id": e.EntityID(), "body": body})
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", kind, e.EntityID(), err)
	}
	if ids, _ := firstResult(res); len(ids) == 0 {
		// deleted between the read and the write
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, e.EntityID())
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, kind models.Kind, id int64) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	if _, err := models.ParseKind(string(kind)); err != nil {
		return err
	}
	res, err := surrealdb.Query[[]record](ctx, db,
		"DELETE type::thing($tb, $id) RETURN BEFORE",
		map[string]any{"tb": string(kind), "id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", kind, id, err)
	}
	if rows, _ := firstResult(res); len(rows) == 0 {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, id)
	}
	return nil
}
