package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/store"
)

// Op is one operation run against the elected store. An attempt that times out is
// abandoned while its goroutine may still be running, and the next attempt calls op
// again, so op must not share mutable state between calls.
type Op func(ctx context.Context, s store.Store) (any, error)

// Result describes a successful Execute.
type Result struct {
	Value   any
	StoreID string
	// Degraded is set when the stub served the operation.
	Degraded bool
	// Attempts counts every attempt across all legs.
	Attempts int
}

// Attempt is the retry state of one call.
type Attempt struct {
	StoreID     string
	Leg         Leg
	Number      int
	RetriesLeft int
	// Backoff is the delay slept before this attempt.
	Backoff time.Duration
}

func newAttempt(st *storeState, leg Leg, retries int) Attempt {
	return Attempt{StoreID: st.desc.ID, Leg: leg, Number: 1, RetriesLeft: retries}
}

type callFunc func(ctx context.Context, st *storeState) (any, error)

// Execute runs op against the elected store with retry, failover and stub fallback.
// name labels the operation in logs, metrics and errors.
func (r *Registry) Execute(ctx context.Context, name string, op Op) (Result, error) {
	v, st, attempts, err := r.run(ctx, name, true, func(ctx context.Context, st *storeState) (any, error) {
		return op(ctx, r.guard(st.drv))
	}, nil)
	if err != nil {
		return Result{Attempts: attempts}, err
	}
	return Result{
		Value:    v,
		StoreID:  st.desc.ID,
		Degraded: st.isStub(),
		Attempts: attempts,
	}, nil
}

// Query is Execute with a typed result.
func Query[T any](ctx context.Context, r *Registry, name string, fn func(ctx context.Context, s store.Store) (T, error)) (T, Result, error) {
	res, err := r.Execute(ctx, name, func(ctx context.Context, s store.Store) (any, error) {
		return fn(ctx, s)
	})
	var v T
	if err != nil {
		return v, res, err
	}
	if res.Value != nil {
		v = res.Value.(T)
	}
	return v, res, nil
}

func (r *Registry) guard(s store.Store) store.Store {
	if r.readOnly == nil {
		return s
	}
	return store.NewReadOnlyStore(s, r.readOnly)
}

// run is the bounded retry loop shared by Execute and Acquire. When bind is false fn
// receives the caller's context instead of the timeout-bound one, and orphan disposes
// of a value fn produced after the attempt had already timed out.
func (r *Registry) run(ctx context.Context, name string, bind bool, fn callFunc, orphan func(any)) (any, *storeState, int, error) {
	if r.closed.Load() {
		return nil, nil, 0, &Error{Op: name, Err: constants.ErrRegistryClosed}
	}

	tried := make(map[string]bool, maxLegs)
	st, ok := r.resolve(tried, false)
	if !ok {
		r.log.Warn("no store available", "op", name)
		return nil, nil, 0, &Error{Op: name, Err: constants.ErrNoStoreAvailable}
	}

	att := newAttempt(st, LegPrimary, r.backoff.MaxRetries)
	total := 0
	for {
		total++
		start := r.clock.Now()
		v, err := r.invoke(ctx, st, bind, fn, orphan)
		elapsed := r.clock.Since(start)

		if err == nil {
			r.recordOutcome(st, true)
			st.markUsed(r.clock.Now())
			r.obs.OperationDone(st.desc.ID, name, OutcomeSuccess, elapsed)
			return v, st, total, nil
		}

		if cerr := ctx.Err(); cerr != nil {
			r.obs.OperationDone(st.desc.ID, name, OutcomeCanceled, elapsed)
			if err != cerr {
				err = fmt.Errorf("%w: %w", cerr, err)
			}
			return nil, st, total, r.wrap(name, att, driver.ClassUnknown, err)
		}

		class := r.classify(st, err)
		if class == driver.ClassPermanent {
			r.obs.OperationDone(st.desc.ID, name, OutcomePermanent, elapsed)
			return nil, st, total, r.wrap(name, att, class, err)
		}

		r.recordOutcome(st, false)
		r.requestProbe(st)
		r.obs.OperationDone(st.desc.ID, name, OutcomeTransient, elapsed)
		lastErr := r.wrap(name, att, class, err)

		if att.RetriesLeft > 0 {
			delay, _ := r.backoff.NextDelay(att.Number - 1)
			r.log.Warn("retrying store operation", "op", name, "store", st.desc.ID, "leg", att.Leg,
				"attempt", att.Number, "delay", delay, "error", err)
			r.obs.Retried(st.desc.ID, name)
			if serr := r.sleep(ctx, delay); serr != nil {
				return nil, st, total, r.wrap(name, att, driver.ClassUnknown, fmt.Errorf("%w: %w", serr, err))
			}
			att.Number++
			att.RetriesLeft--
			att.Backoff = delay
			continue
		}

		tried[st.desc.ID] = true
		next, leg, ok := r.failover(tried, att.Leg)
		if !ok {
			r.log.Error("store operation failed", "op", name, "store", st.desc.ID, "leg", att.Leg,
				"attempts", total, "error", err)
			return nil, st, total, lastErr
		}
		r.log.Warn("failing over", "op", name, "from", st.desc.ID, "to", next.desc.ID, "leg", leg, "error", err)
		r.obs.FailedOver(st.desc.ID, next.desc.ID, leg)
		st = next
		att = newAttempt(st, leg, r.backoff.MaxRetries)
	}
}

// failover picks the store for the leg after from: a real store not tried yet, then
// the stub. It commits the choice as the active store.
func (r *Registry) failover(tried map[string]bool, from Leg) (*storeState, Leg, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if from == LegPrimary {
		if st, ok := r.resolveLocked(tried, true); ok {
			return st, LegFailover, true
		}
	}
	if from < LegStub {
		if stub := r.stub(); stub != nil && !tried[stub.desc.ID] {
			if _, enabled := stub.snapshot(); enabled {
				r.commitLocked(stub.desc.ID)
				return stub, LegStub, true
			}
		}
	}
	return nil, from, false
}

// invoke runs one attempt under the store's operation timeout. A driver that ignores
// its context is abandoned at the deadline.
func (r *Registry) invoke(ctx context.Context, st *storeState, bind bool, fn callFunc, orphan func(any)) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, st.desc.OperationTimeout)
	defer cancel()
	callCtx := tctx
	if !bind {
		callCtx = ctx
	}

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		if err := r.ensureConnected(tctx, st); err != nil {
			done <- result{err: fmt.Errorf("%w: %w", constants.ErrNotConnected, err)}
			return
		}
		v, err := fn(callCtx, st)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-tctx.Done():
		if orphan != nil {
			go func() {
				if res := <-done; res.err == nil && res.v != nil {
					orphan(res.v)
				}
			}()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", constants.ErrOperationTimeout, st.desc.OperationTimeout)
	}
}

func (r *Registry) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := r.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return constants.ErrRegistryClosed
	case <-t.C:
		return nil
	}
}

func (r *Registry) wrap(op string, att Attempt, class driver.Class, err error) *Error {
	return &Error{
		Op:      op,
		StoreID: att.StoreID,
		Leg:     att.Leg,
		Attempt: att.Number,
		Class:   class,
		Err:     err,
	}
}
