package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
)

// Op is the kind of a staged write.
type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Mutation is one staged write. Entity is nil for deletes.
type Mutation struct {
	Op     Op
	Kind   models.Kind
	ID     int64
	Entity models.Entity
}

// ApplyFunc applies staged mutations in order. Implementations should apply them
// atomically when the backing store supports it.
type ApplyFunc func(ctx context.Context, muts []Mutation) error

// ApplySequential returns an ApplyFunc that replays mutations one by one against s.
// It is not atomic: a failure leaves earlier mutations applied.
func ApplySequential(s Store) ApplyFunc {
	return func(ctx context.Context, muts []Mutation) error {
		for i, m := range muts {
			var err error
			switch m.Op {
			case OpInsert:
				err = s.Insert(ctx, m.Entity)
			case OpUpdate:
				err = s.Update(ctx, m.Entity)
			case OpDelete:
				err = s.Delete(ctx, m.Kind, m.ID)
			}
			if err != nil {
				return fmt.Errorf("apply mutation %d (%s %s/%d): %w", i, m.Op, m.Kind, m.ID, err)
			}
		}
		return nil
	}
}

type entityKey struct {
	kind models.Kind
	id   int64
}

// BufferedTx stages writes in memory and hands them to an ApplyFunc on Commit.
//
// Reads go to the base store and see the transaction's own updates and deletes.
// Staged inserts are not visible to reads; their IDs are assigned on Commit.
type BufferedTx struct {
	base  Store
	apply ApplyFunc

	mu      sync.Mutex
	muts    []Mutation
	overlay map[entityKey]models.Entity // nil value marks a delete
	done    bool
}

// NewBufferedTx starts a buffered transaction over base.
func NewBufferedTx(base Store, apply ApplyFunc) *BufferedTx {
	if apply == nil {
		apply = ApplySequential(base)
	}
	return &BufferedTx{
		base:    base,
		apply:   apply,
		overlay: make(map[entityKey]models.Entity),
	}
}

func (t *BufferedTx) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, constants.ErrTxDone
	}
	e, staged := t.overlay[entityKey{kind, id}]
	t.mu.Unlock()
	if staged {
		return models.Clone(e), nil
	}
	return t.base.Get(ctx, kind, id)
}

func (t *BufferedTx) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, constants.ErrTxDone
	}
	t.mu.Unlock()

	items, err := t.base.List(ctx, kind, page)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Entity, 0, len(items))
	for _, e := range items {
		staged, ok := t.overlay[entityKey{kind, e.EntityID()}]
		switch {
		case !ok:
			out = append(out, e)
		case staged != nil:
			out = append(out, staged)
		}
	}
	return out, nil
}

func (t *BufferedTx) Insert(_ context.Context, e models.Entity) error {
	if err := models.Validate(e); err != nil {
		return err
	}
	return t.stage(Mutation{Op: OpInsert, Kind: e.EntityKind(), ID: e.EntityID(), Entity: e}, false)
}

func (t *BufferedTx) Update(ctx context.Context, e models.Entity) error {
	if err := models.Validate(e); err != nil {
		return err
	}
	cur, err := t.Get(ctx, e.EntityKind(), e.EntityID())
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, e.EntityKind(), e.EntityID())
	}
	return t.stage(Mutation{Op: OpUpdate, Kind: e.EntityKind(), ID: e.EntityID(), Entity: e}, true)
}

func (t *BufferedTx) Delete(ctx context.Context, kind models.Kind, id int64) error {
	cur, err := t.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, id)
	}
	return t.stage(Mutation{Op: OpDelete, Kind: kind, ID: id}, true)
}

func (t *BufferedTx) stage(m Mutation, track bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return constants.ErrTxDone
	}
	t.muts = append(t.muts, m)
	if track {
		t.overlay[entityKey{m.Kind, m.ID}] = m.Entity
	}
	return nil
}

// Mutations returns a copy of the staged writes.
func (t *BufferedTx) Mutations() []Mutation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Mutation(nil), t.muts...)
}

func (t *BufferedTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return constants.ErrTxDone
	}
	t.done = true
	muts := t.muts
	t.muts = nil
	t.mu.Unlock()

	if len(muts) == 0 {
		return nil
	}
	return t.apply(ctx, muts)
}

func (t *BufferedTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return constants.ErrTxDone
	}
	t.done = true
	t.muts = nil
	return nil
}
