package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/logger"
)

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.obs = o }
}

// WithClock replaces the wall clock used for probe scheduling, backoff and timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func WithBackoff(b Backoff) Option {
	return func(r *Registry) { r.backoff = b }
}

func WithStrategy(s Strategy) Option {
	return func(r *Registry) { r.strategy = s }
}

// WithReadOnly wraps every store handed to operations in a read-only guard that is
// active while isReadOnly returns true.
func WithReadOnly(isReadOnly func() bool) Option {
	return func(r *Registry) { r.readOnly = isReadOnly }
}

// WithClassifier replaces DefaultClassifier as the fallback for errors a driver
// classifies as unknown.
func WithClassifier(fn func(error) driver.Class) Option {
	return func(r *Registry) { r.classifier = fn }
}

// Registry owns the candidate stores and routes operations to them.
type Registry struct {
	log        logger.Logger
	obs        Observer
	clock      clock.Clock
	backoff    Backoff
	readOnly   func() bool
	classifier func(error) driver.Class

	stores []*storeState
	byID   map[string]*storeState

	// mu guards the selection state below. Lock order: mu, then storeState.mu.
	mu       sync.Mutex
	active   string
	strategy Strategy
	cursor   int
	pinned   string

	openHandles atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// New builds a registry over descs. drivers maps each descriptor id to its driver.
func New(descs []Descriptor, drivers map[string]driver.Driver, opts ...Option) (*Registry, error) {
	r := &Registry{
		log:        logger.Nop,
		obs:        NopObserver{},
		clock:      clock.New(),
		backoff:    DefaultBackoff(),
		classifier: DefaultClassifier,
		strategy:   StrategyPriority,
		byID:       make(map[string]*storeState, len(descs)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, err := ParseStrategy(string(r.strategy)); err != nil {
		return nil, err
	}

	stubs := 0
	for i, d := range descs {
		d = d.WithDefaults()
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("store %q registered twice", d.ID)
		}
		drv, ok := drivers[d.ID]
		if !ok || drv == nil {
			return nil, fmt.Errorf("store %q: no driver", d.ID)
		}
		if d.Kind == KindDegradedStub {
			stubs++
		}
		st := newStoreState(d, drv, i)
		r.stores = append(r.stores, st)
		r.byID[d.ID] = st
	}
	if stubs > 1 {
		return nil, fmt.Errorf("at most one degraded stub store may be registered, got %d", stubs)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r, nil
}

// Start connects every enabled driver and launches one probe actor per store.
// Connection failures are logged and retried lazily; Start itself only fails when the
// registry is closed or already started.
func (r *Registry) Start(ctx context.Context) error {
	if r.closed.Load() {
		return constants.ErrRegistryClosed
	}
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("backend registry already started")
	}

	for _, st := range r.stores {
		if _, enabled := st.snapshot(); !enabled {
			continue
		}
		if err := r.ensureConnected(ctx, st); err != nil {
			r.log.Warn("store connect failed, will retry on probe", "store", st.desc.ID, "error", err)
		}
	}

	for _, st := range r.stores {
		r.wg.Add(1)
		go r.probeLoop(st)
	}

	r.log.Info("backend registry started", "stores", len(r.stores), "strategy", r.Strategy())
	return nil
}

// Close stops the probe actors, waits for them and closes every driver.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.cancel()
	r.wg.Wait()

	var errs []error
	for _, st := range r.stores {
		if err := st.drv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store %q: %w", st.desc.ID, err))
		}
	}
	r.log.Info("backend registry closed")
	return errors.Join(errs...)
}

func (r *Registry) ensureConnected(ctx context.Context, st *storeState) error {
	st.connMu.Lock()
	defer st.connMu.Unlock()
	if st.connected {
		return nil
	}
	if err := st.drv.Connect(ctx); err != nil {
		return err
	}
	st.connected = true
	return nil
}

func (r *Registry) store(id string) (*storeState, error) {
	st, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", constants.ErrStoreNotFound, id)
	}
	return st, nil
}

func (r *Registry) stub() *storeState {
	for _, st := range r.stores {
		if st.isStub() {
			return st
		}
	}
	return nil
}

// Strategy returns the current selection strategy.
func (r *Registry) Strategy() Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.strategy
}

// resolve elects the store for the next attempt and commits the election.
// Stores in exclude are skipped; with realOnly the stub is never elected.
func (r *Registry) resolve(exclude map[string]bool, realOnly bool) (*storeState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(exclude, realOnly)
}

func (r *Registry) resolveLocked(exclude map[string]bool, realOnly bool) (*storeState, bool) {
	if r.pinned != "" {
		if st, ok := r.byID[r.pinned]; ok && !exclude[r.pinned] && !(realOnly && st.isStub()) {
			h, enabled := st.snapshot()
			if enabled && (h.Status.usable() || h.ConsecutiveFailures == 0) {
				r.commitLocked(st.desc.ID)
				return st, true
			}
			r.log.Warn("pinned store unusable, unpinning", "store", r.pinned, "status", h.Status, "enabled", enabled)
			r.pinned = ""
		}
	}

	candidates := make([]Candidate, 0, len(r.stores))
	for _, st := range r.stores {
		h, enabled := st.snapshot()
		if exclude[st.desc.ID] || (realOnly && st.isStub()) {
			enabled = false
		}
		candidates = append(candidates, Candidate{
			ID:       st.desc.ID,
			Kind:     st.desc.Kind,
			Status:   h.Status,
			Priority: st.desc.Priority,
			Enabled:  enabled,
			Order:    st.order,
		})
	}

	id, cursor, ok := SelectActive(candidates, r.strategy, r.active, r.cursor)
	r.cursor = cursor
	if !ok {
		return nil, false
	}
	r.commitLocked(id)
	return r.byID[id], true
}

func (r *Registry) commitLocked(id string) {
	if r.active == id {
		return
	}
	from := r.active
	r.active = id
	r.log.Info("active store changed", "from", from, "to", id, "strategy", r.strategy)
	r.obs.ActiveChanged(from, id)
}

// recordOutcome applies an outcome to st and reports any status transition.
func (r *Registry) recordOutcome(st *storeState, success bool) {
	from, to := st.RecordOutcome(success)
	if from == to {
		return
	}
	r.log.Info("store status changed", "store", st.desc.ID, "from", from, "to", to)
	r.obs.StatusChanged(st.desc.ID, from, to)
}

func (r *Registry) classify(st *storeState, err error) driver.Class {
	// the store could not be reached or did not answer in time
	if errors.Is(err, constants.ErrNotConnected) || errors.Is(err, constants.ErrOperationTimeout) {
		return driver.ClassTransient
	}
	if c := st.drv.Classify(err); c != driver.ClassUnknown {
		return c
	}
	if c := r.classifier(err); c != driver.ClassUnknown {
		return c
	}
	return driver.ClassTransient
}
