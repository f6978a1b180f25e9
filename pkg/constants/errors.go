package constants

import "errors"

// Errors
var (
	ErrNoStoreAvailable = errors.New("no store available")
	ErrStoreNotFound    = errors.New("store not registered")
	ErrStoreDisabled    = errors.New("store is disabled")
	ErrProbeFailed      = errors.New("health probe failed")
	ErrUnknownStrategy  = errors.New("unknown selection strategy")
	ErrRegistryClosed   = errors.New("registry is closed")
	ErrOperationTimeout = errors.New("store operation timed out")
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrUnknownKind    = errors.New("unknown entity kind")
	ErrInvalidEntity  = errors.New("invalid entity")
	ErrReadOnly       = errors.New("operation denied: store is in read-only mode")
	ErrNotConnected   = errors.New("driver is not connected")
	ErrTxDone         = errors.New("transaction already committed or rolled back")
	ErrHandleReleased = errors.New("handle already released")
)
