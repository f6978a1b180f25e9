package stub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

var _ driver.Driver = (*Driver)(nil)

type Option func(*Driver)

// WithClock sets the clock used to stamp written entities.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// Driver is the in-memory stub store.
type Driver struct {
	clock clock.Clock

	mu     sync.RWMutex
	tables map[models.Kind]map[int64]models.Entity
	nextID map[models.Kind]int64
}

// New returns a stub seeded with the fixed dataset.
func New(opts ...Option) *Driver {
	d := &Driver{clock: clock.New()}
	for _, opt := range opts {
		opt(d)
	}
	d.reset()
	return d
}

func (d *Driver) reset() {
	d.tables = make(map[models.Kind]map[int64]models.Entity, len(models.Kinds))
	d.nextID = make(map[models.Kind]int64, len(models.Kinds))
	for _, k := range models.Kinds {
		d.tables[k] = make(map[int64]models.Entity)
	}
	for _, e := range Seed() {
		k := e.EntityKind()
		d.tables[k][e.EntityID()] = e
		if e.EntityID() >= d.nextID[k] {
			d.nextID[k] = e.EntityID() + 1
		}
	}
}

// Reset discards all writes and restores the seeded dataset.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Driver) Name() string { return constants.DriverStub }

func (d *Driver) Connect(context.Context) error { return nil }

// Ping always succeeds.
func (d *Driver) Ping(context.Context) error { return nil }

func (d *Driver) Close() error { return nil }

func (d *Driver) Classify(err error) driver.Class {
	switch {
	case errors.Is(err, constants.ErrNotFound),
		errors.Is(err, constants.ErrInvalidEntity),
		errors.Is(err, constants.ErrUnknownKind),
		errors.Is(err, constants.ErrTxDone):
		return driver.ClassPermanent
	}
	return driver.ClassUnknown
}

func (d *Driver) table(kind models.Kind) (map[int64]models.Entity, error) {
	t, ok := d.tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", constants.ErrUnknownKind, kind)
	}
	return t, nil
}

func (d *Driver) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, err := d.table(kind)
	if err != nil {
		return nil, err
	}
	e, ok := t[id]
	if !ok {
		return nil, nil
	}
	return models.Clone(e), nil
}

func (d *Driver) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page = page.Normalize()

	d.mu.RLock()
	defer d.mu.RUnlock()
	t, err := d.table(kind)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.Entity, 0, page.Limit)
	for i := page.Offset; i < len(ids) && len(out) < page.Limit; i++ {
		out = append(out, models.Clone(t[ids[i]]))
	}
	return out, nil
}

func (d *Driver) Insert(ctx context.Context, e models.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := models.Validate(e); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.insertLocked(e)
}

func (d *Driver) insertLocked(e models.Entity) error {
	kind := e.EntityKind()
	t, err := d.table(kind)
	if err != nil {
		return err
	}
	if e.EntityID() == 0 {
		e.SetEntityID(d.nextID[kind])
	}
	if _, exists := t[e.EntityID()]; exists {
		return fmt.Errorf("%w: %s/%d already exists", constants.ErrInvalidEntity, kind, e.EntityID())
	}
	if e.EntityID() >= d.nextID[kind] {
		d.nextID[kind] = e.EntityID() + 1
	}
	e.Touch(d.clock.Now().UTC())
	t[e.EntityID()] = models.Clone(e)
	return nil
}

func (d *Driver) Update(ctx context.Context, e models.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := models.Validate(e); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateLocked(e)
}

func (d *Driver) updateLocked(e models.Entity) error {
	t, err := d.table(e.EntityKind())
	if err != nil {
		return err
	}
	cur, ok := t[e.EntityID()]
	if !ok {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, e.EntityKind(), e.EntityID())
	}
	keepCreated(cur, e)
	e.Touch(d.clock.Now().UTC())
	t[e.EntityID()] = models.Clone(e)
	return nil
}

func (d *Driver) Delete(ctx context.Context, kind models.Kind, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleteLocked(kind, id)
}

func (d *Driver) deleteLocked(kind models.Kind, id int64) error {
	t, err := d.table(kind)
	if err != nil {
		return err
	}
	if _, ok := t[id]; !ok {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, id)
	}
	delete(t, id)
	return nil
}

// Begin returns a buffered transaction whose commit is applied under a single lock.
func (d *Driver) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return store.NewBufferedTx(d, d.apply), nil
}

// apply commits all mutations or none.
func (d *Driver) apply(_ context.Context, muts []store.Mutation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// dry run against the current key sets
	present := make(map[models.Kind]map[int64]bool)
	has := func(k models.Kind, id int64) bool {
		if p, ok := present[k][id]; ok {
			return p
		}
		_, ok := d.tables[k][id]
		return ok
	}
	set := func(k models.Kind, id int64, v bool) {
		if present[k] == nil {
			present[k] = make(map[int64]bool)
		}
		present[k][id] = v
	}
	next := make(map[models.Kind]int64, len(d.nextID))
	for k, id := range d.nextID {
		next[k] = id
	}
	for i, m := range muts {
		if _, err := d.table(m.Kind); err != nil {
			return err
		}
		switch m.Op {
		case store.OpInsert:
			id := m.ID
			if id == 0 {
				id = next[m.Kind]
			}
			if has(m.Kind, id) {
				return fmt.Errorf("mutation %d: %w: %s/%d already exists", i, constants.ErrInvalidEntity, m.Kind, id)
			}
			if id >= next[m.Kind] {
				next[m.Kind] = id + 1
			}
			set(m.Kind, id, true)
		case store.OpUpdate:
			if !has(m.Kind, m.ID) {
				return fmt.Errorf("mutation %d: %w: %s/%d", i, constants.ErrNotFound, m.Kind, m.ID)
			}
		case store.OpDelete:
			if !has(m.Kind, m.ID) {
				return fmt.Errorf("mutation %d: %w: %s/%d", i, constants.ErrNotFound, m.Kind, m.ID)
			}
			set(m.Kind, m.ID, false)
		}
	}

	for _, m := range muts {
		var err error
		switch m.Op {
		case store.OpInsert:
			err = d.insertLocked(m.Entity)
		case store.OpUpdate:
			err = d.updateLocked(m.Entity)
		case store.OpDelete:
			err = d.deleteLocked(m.Kind, m.ID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func keepCreated(cur, next models.Entity) {
	if a, b := models.TimestampsOf(cur), models.TimestampsOf(next); a != nil && b != nil {
		b.CreatedAt = a.CreatedAt
	}
}
