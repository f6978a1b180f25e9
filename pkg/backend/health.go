package backend

import (
	"fmt"
	"math"
	"time"
)

// Status is the health state of a store.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusDegraded
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusOnline:
		return "online"
	case StatusDegraded:
		return "degraded"
	case StatusOffline:
		return "offline"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for _, v := range []Status{StatusUnknown, StatusOnline, StatusDegraded, StatusOffline} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// usable reports whether a store in this status may be elected.
func (s Status) usable() bool {
	return s != StatusOffline
}

const maxCounter = math.MaxInt32

// Health is the live part of a store descriptor.
//
// ConsecutiveFailures and ConsecutiveSuccesses are mutually exclusive: recording one
// outcome resets the other counter. Both saturate at math.MaxInt32.
type Health struct {
	Status               Status
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastProbedAt         time.Time
	LastUsedAt           time.Time
}

// Record applies one outcome and returns the status before it.
//
// A success moves a non-ONLINE store to ONLINE once successesRequired consecutive
// successes were seen. A failure moves the store to OFFLINE once maxFailures
// consecutive failures were seen, and an ONLINE store below that threshold to
// DEGRADED. Thresholds below one are treated as one.
func (h *Health) Record(success bool, maxFailures, successesRequired int) (from Status) {
	from = h.Status
	if maxFailures < 1 {
		maxFailures = 1
	}
	if successesRequired < 1 {
		successesRequired = 1
	}

	if success {
		h.ConsecutiveFailures = 0
		if h.ConsecutiveSuccesses < maxCounter {
			h.ConsecutiveSuccesses++
		}
		if h.Status != StatusOnline && h.ConsecutiveSuccesses >= successesRequired {
			h.Status = StatusOnline
		}
		return from
	}

	h.ConsecutiveSuccesses = 0
	if h.ConsecutiveFailures < maxCounter {
		h.ConsecutiveFailures++
	}
	switch {
	case h.ConsecutiveFailures >= maxFailures:
		h.Status = StatusOffline
	case h.Status == StatusOnline:
		h.Status = StatusDegraded
	}
	return from
}
