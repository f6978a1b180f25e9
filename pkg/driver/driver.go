// Package driver defines the contract between the backend registry and a concrete
// data store client.
//
// A [Driver] serves the typed [store.Store] surface, answers a cheap [Driver.Ping]
// used by health probes, opens scoped transactions with [Driver.Begin], and
// classifies its own errors so the registry knows whether retrying can help.
//
// Implementations live in subpackages: postgres (GORM), sqlite (modernc.org/sqlite),
// surrealdb, redis, and stub, the deterministic in-memory fallback.
package driver

import (
	"context"
	"fmt"

	"github.com/workledger/workledger/pkg/store"
)

// Class is the retry class of an operation error.
type Class int

const (
	// ClassUnknown means the driver cannot tell; the registry's default classifier decides.
	ClassUnknown Class = iota
	// ClassTransient errors may succeed on retry: connection loss, timeouts,
	// overload, serialization conflicts.
	ClassTransient
	// ClassPermanent errors will fail the same way again: malformed operations,
	// constraint violations, authentication failures, missing entities.
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassUnknown:
		return "unknown"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Driver is one store client. Connect is called lazily and must be safe to call again
// after a failure; every method must be safe for concurrent use.
type Driver interface {
	store.Store

	// Name identifies the driver implementation, e.g. "postgres".
	Name() string

	// Connect establishes the client and applies schema migrations if any.
	Connect(ctx context.Context) error

	// Ping issues a minimal round trip.
	Ping(ctx context.Context) error

	// Begin opens a scoped unit of work.
	Begin(ctx context.Context) (store.Tx, error)

	// Classify maps a driver error to a retry class.
	Classify(err error) Class

	Close() error
}
