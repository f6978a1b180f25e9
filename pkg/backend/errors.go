package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
)

// Leg is one stage of an execution: the initially selected store, one failover
// store, then the stub.
type Leg int

const (
	LegPrimary Leg = iota
	LegFailover
	LegStub
)

// maxLegs bounds the number of stores tried in one call.
const maxLegs = 3

func (l Leg) String() string {
	switch l {
	case LegPrimary:
		return "primary"
	case LegFailover:
		return "failover"
	case LegStub:
		return "stub"
	default:
		return fmt.Sprintf("leg(%d)", int(l))
	}
}

// Error is returned by every failing registry operation. It records which store and
// attempt produced the underlying error; errors.Is and errors.As see through it.
type Error struct {
	Op      string
	StoreID string
	Leg     Leg
	// Attempt is the 1-based attempt number within the leg.
	Attempt int
	Class   driver.Class
	Err     error
}

func (e *Error) Error() string {
	if e.StoreID == "" {
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s on store %q (%s leg, attempt %d, %s): %v",
		e.Op, e.StoreID, e.Leg, e.Attempt, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err means no store could serve the request right
// now: no store was available, or the last store failed transiently after every
// retry and failover was spent. HTTP handlers map it to 503.
func IsUnavailable(err error) bool {
	if errors.Is(err, constants.ErrNoStoreAvailable) || errors.Is(err, constants.ErrRegistryClosed) {
		return true
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Class == driver.ClassTransient && !errors.Is(be.Err, context.Canceled)
	}
	return false
}
