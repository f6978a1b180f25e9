package backend

import (
	"context"
	"fmt"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
)

// SwitchTo makes id the active store and pins it. The store must be enabled, and a
// real store must pass an immediate probe. On failure the active store is unchanged.
//
// The pin holds until SetStrategy is called or the store becomes unusable, that is
// disabled, or OFFLINE with a failure recorded since the switch.
func (r *Registry) SwitchTo(ctx context.Context, id string) error {
	const op = "switch"
	st, err := r.store(id)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if _, enabled := st.snapshot(); !enabled {
		return &Error{Op: op, StoreID: id, Class: driver.ClassPermanent, Err: constants.ErrStoreDisabled}
	}

	if !st.isStub() {
		res := r.probe(ctx, st)
		if !res.Healthy {
			r.log.Warn("switch refused, probe failed", "store", id, "error", res.Err)
			return &Error{Op: op, StoreID: id, Attempt: 1, Class: driver.ClassTransient,
				Err: fmt.Errorf("%w: %w", constants.ErrProbeFailed, res.Err)}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// re-check under the lock; SetEnabled may have raced the probe
	if _, enabled := st.snapshot(); !enabled {
		return &Error{Op: op, StoreID: id, Class: driver.ClassPermanent, Err: constants.ErrStoreDisabled}
	}
	r.pinned = id
	r.commitLocked(id)
	r.log.Info("store pinned", "store", id)
	return nil
}

// SetStrategy swaps the selection strategy, clears any pin and re-runs selection.
func (r *Registry) SetStrategy(s Strategy) error {
	if _, err := ParseStrategy(string(s)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.strategy
	r.strategy = s
	r.pinned = ""
	r.log.Info("selection strategy changed", "from", from, "to", s)
	if _, ok := r.resolveLocked(nil, false); !ok {
		r.log.Warn("no store available after strategy change", "strategy", s)
	}
	return nil
}

// SetEnabled enables or disables a store. Disabling the active store forces an
// immediate re-selection.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	st, err := r.store(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st.mu.Lock()
	changed := st.enabled != enabled
	st.enabled = enabled
	st.mu.Unlock()
	if !changed {
		return nil
	}
	r.log.Info("store enablement changed", "store", id, "enabled", enabled)

	if enabled {
		r.requestProbe(st)
		return nil
	}
	if r.pinned == id {
		r.pinned = ""
	}
	if r.active == id {
		if _, ok := r.resolveLocked(nil, false); !ok {
			r.log.Warn("no store available after disabling the active store", "store", id)
			r.commitLocked("")
		}
	}
	return nil
}
