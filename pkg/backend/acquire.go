package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/store"
)

// Handle is a scoped unit of work on one store. It serves the typed store surface
// inside a driver transaction until Commit or Release.
//
// The caller must Release every handle on every path. Release after Commit is a
// no-op; Release before Commit rolls back.
type Handle struct {
	store.Store

	ID       string
	StoreID  string
	Degraded bool
	OpenedAt time.Time

	reg *Registry
	st  *storeState
	tx  store.Tx

	mu        sync.Mutex
	committed bool
	released  bool
}

// Acquire elects a store with the same retry and failover rules as Execute and opens
// a transaction on it.
func (r *Registry) Acquire(ctx context.Context) (*Handle, error) {
	const op = "acquire"
	v, st, _, err := r.run(ctx, op, false,
		func(ctx context.Context, st *storeState) (any, error) {
			return st.drv.Begin(ctx)
		},
		func(v any) {
			if tx, ok := v.(store.Tx); ok {
				_ = tx.Rollback(context.Background())
			}
		})
	if err != nil {
		return nil, err
	}

	tx := v.(store.Tx)
	if r.readOnly != nil {
		tx = store.NewReadOnlyTx(tx, r.readOnly)
	}
	h := &Handle{
		Store:    tx,
		ID:       uuid.NewString(),
		StoreID:  st.desc.ID,
		Degraded: st.isStub(),
		OpenedAt: r.clock.Now(),
		reg:      r,
		st:       st,
		tx:       tx,
	}
	n := r.openHandles.Add(1)
	r.obs.HandlesOpen(n)
	r.log.Debug("handle acquired", "handle", h.ID, "store", h.StoreID, "open", n)
	return h, nil
}

// Commit commits the transaction. A transient commit failure counts against the
// store's health.
func (h *Handle) Commit(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return constants.ErrHandleReleased
	}
	if h.committed {
		return constants.ErrTxDone
	}

	r := h.reg
	err := h.tx.Commit(ctx)
	if err == nil {
		h.committed = true
		r.recordOutcome(h.st, true)
		h.st.markUsed(r.clock.Now())
		return nil
	}

	class := r.classify(h.st, err)
	if class == driver.ClassTransient && ctx.Err() == nil {
		r.recordOutcome(h.st, false)
		r.requestProbe(h.st)
	}
	// the driver transaction is finished either way
	h.committed = true
	return &Error{Op: "commit", StoreID: h.StoreID, Leg: LegPrimary, Attempt: 1, Class: class, Err: err}
}

// Release ends the handle, rolling back unless it was committed. It is safe to call
// more than once.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	r := h.reg
	n := r.openHandles.Add(-1)
	r.obs.HandlesOpen(n)
	r.log.Debug("handle released", "handle", h.ID, "store", h.StoreID, "committed", h.committed, "open", n)

	if h.committed {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.st.desc.OperationTimeout)
	defer cancel()
	if err := h.tx.Rollback(ctx); err != nil && !errors.Is(err, constants.ErrTxDone) {
		return &Error{Op: "rollback", StoreID: h.StoreID, Attempt: 1, Class: r.classify(h.st, err), Err: err}
	}
	return nil
}
