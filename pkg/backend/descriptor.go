package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
)

// Kind distinguishes real stores from the degraded stub.
type Kind int

const (
	KindReal Kind = iota
	KindDegradedStub
)

func (k Kind) String() string {
	switch k {
	case KindReal:
		return "real"
	case KindDegradedStub:
		return "degraded_stub"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "real":
		*k = KindReal
	case "degraded_stub", "stub":
		*k = KindDegradedStub
	default:
		return fmt.Errorf("unknown store kind %q", b)
	}
	return nil
}

// Descriptor is the static configuration of one candidate store.
type Descriptor struct {
	ID          string
	DisplayName string
	Kind        Kind
	// Target is the driver connection string. Empty for the stub.
	Target string
	// Priority orders stores; lower is preferred.
	Priority int

	MaxFailuresBeforeOffline   int
	SuccessesRequiredToRecover int

	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	OperationTimeout time.Duration

	Enabled bool
}

// WithDefaults fills zero thresholds and durations.
func (d Descriptor) WithDefaults() Descriptor {
	if d.DisplayName == "" {
		d.DisplayName = d.ID
	}
	if d.MaxFailuresBeforeOffline <= 0 {
		d.MaxFailuresBeforeOffline = constants.DefaultMaxFailuresBeforeOffline
	}
	if d.SuccessesRequiredToRecover <= 0 {
		d.SuccessesRequiredToRecover = constants.DefaultSuccessesRequiredToRecover
	}
	if d.ProbeInterval <= 0 {
		d.ProbeInterval = constants.DefaultProbeInterval
	}
	if d.ProbeTimeout <= 0 {
		d.ProbeTimeout = constants.DefaultProbeTimeout
	}
	if d.OperationTimeout <= 0 {
		d.OperationTimeout = constants.DefaultOperationTimeout
	}
	return d
}

func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("store descriptor: empty id")
	}
	if d.Kind != KindReal && d.Kind != KindDegradedStub {
		return fmt.Errorf("store %q: unknown kind %v", d.ID, d.Kind)
	}
	if d.MaxFailuresBeforeOffline < 1 || d.SuccessesRequiredToRecover < 1 {
		return fmt.Errorf("store %q: thresholds must be positive", d.ID)
	}
	return nil
}

// storeState pairs a descriptor with its driver and live health.
type storeState struct {
	desc  Descriptor
	drv   driver.Driver
	order int

	// mu guards health and enabled.
	mu      sync.Mutex
	health  Health
	enabled bool

	// connMu serializes lazy connects.
	connMu    sync.Mutex
	connected bool

	// probeMu keeps at most one probe in flight.
	probeMu sync.Mutex
	kick    chan struct{}
}

func newStoreState(d Descriptor, drv driver.Driver, order int) *storeState {
	return &storeState{
		desc:    d,
		drv:     drv,
		order:   order,
		enabled: d.Enabled,
		kick:    make(chan struct{}, 1),
	}
}

func (s *storeState) isStub() bool {
	return s.desc.Kind == KindDegradedStub
}

// RecordOutcome applies an outcome to the store's health and returns the status
// transition it caused.
func (s *storeState) RecordOutcome(success bool) (from, to Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from = s.health.Record(success, s.desc.MaxFailuresBeforeOffline, s.desc.SuccessesRequiredToRecover)
	return from, s.health.Status
}

func (s *storeState) markUsed(now time.Time) {
	s.mu.Lock()
	s.health.LastUsedAt = now
	s.mu.Unlock()
}

func (s *storeState) markProbed(now time.Time) {
	s.mu.Lock()
	s.health.LastProbedAt = now
	s.mu.Unlock()
}

func (s *storeState) snapshot() (Health, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health, s.enabled
}
