package store

import (
	"context"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
)

// ReadOnlyStore wraps a Store and rejects writes while maintenance mode is on.
//
// The read-only state is evaluated on every call through isReadOnly, so an operator
// can toggle maintenance without rebuilding the registry. Rejected writes return
// [constants.ErrReadOnly], which the registry classifies as permanent: it is surfaced
// to the caller without retry and does not affect store health.
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore creates a new read-only wrapper for a store
func NewReadOnlyStore(s Store, isReadOnly func() bool) *ReadOnlyStore {
	return &ReadOnlyStore{
		Store:      s,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

func (r *ReadOnlyStore) checkReadOnly() error {
	if r.isReadOnly != nil && r.isReadOnly() {
		return constants.ErrReadOnly
	}
	return nil
}

// Write operations - check read-only mode first

func (r *ReadOnlyStore) Insert(ctx context.Context, e models.Entity) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.Insert(ctx, e)
}

func (r *ReadOnlyStore) Update(ctx context.Context, e models.Entity) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.Update(ctx, e)
}

func (r *ReadOnlyStore) Delete(ctx context.Context, kind models.Kind, id int64) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.Delete(ctx, kind, id)
}

// ReadOnlyTx applies the same guard to a transaction.
type ReadOnlyTx struct {
	ReadOnlyStore
	tx Tx
}

// NewReadOnlyTx wraps tx with the read-only guard.
func NewReadOnlyTx(tx Tx, isReadOnly func() bool) *ReadOnlyTx {
	return &ReadOnlyTx{
		ReadOnlyStore: ReadOnlyStore{Store: tx, isReadOnly: isReadOnly},
		tx:            tx,
	}
}

func (r *ReadOnlyTx) Commit(ctx context.Context) error   { return r.tx.Commit(ctx) }
func (r *ReadOnlyTx) Rollback(ctx context.Context) error { return r.tx.Rollback(ctx) }
