// Package store defines the typed entity surface every workledger data store serves.
//
// The [Store] interface is deliberately narrow: five operations keyed by
// [models.Kind]. Every driver in [github.com/workledger/workledger/pkg/driver]
// implements it directly against its native client, and the degraded stub implements
// it over in-memory maps, so callers of the backend registry never build query text.
//
// # Semantics
//
// Get returns nil without error for a missing entity. Update and Delete return an
// error wrapping [constants.ErrNotFound] when the entity does not exist. Insert assigns
// the next ID when the entity's ID is zero. List returns entities ordered by ID and
// never returns a nil slice on success.
//
// # Transactions
//
// [Tx] extends Store with Commit and Rollback. Stores without native multi-statement
// transactions use [NewBufferedTx], which stages writes and applies them on Commit.
package store

import (
	"context"

	"github.com/workledger/workledger/pkg/models"
)

// Store is the typed CRUD surface shared by every backend.
type Store interface {
	// Get retrieves an entity by kind and ID, or nil if none exists.
	Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error)

	// List returns one page of entities of the given kind ordered by ID.
	List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error)

	// Insert persists a new entity, assigning its ID when zero.
	Insert(ctx context.Context, e models.Entity) error

	// Update replaces an existing entity.
	Update(ctx context.Context, e models.Entity) error

	// Delete removes an entity.
	Delete(ctx context.Context, kind models.Kind, id int64) error
}

// Tx is a scoped unit of work. Exactly one of Commit or Rollback takes effect;
// calls after that return [constants.ErrTxDone].
type Tx interface {
	Store
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
