package backend

import "time"

// StoreStatus is the reported state of one store.
type StoreStatus struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Kind                 Kind       `json:"kind"`
	Driver               string     `json:"driver"`
	Status               Status     `json:"status"`
	Priority             int        `json:"priority"`
	Enabled              bool       `json:"enabled"`
	ConsecutiveFailures  int        `json:"consecutiveFailures"`
	ConsecutiveSuccesses int        `json:"consecutiveSuccesses"`
	LastProbedAt         *time.Time `json:"lastProbedAt"`
	LastUsedAt           *time.Time `json:"lastUsedAt"`
}

// StatusReport is a point-in-time view of the registry.
type StatusReport struct {
	ActiveStoreID string        `json:"activeStoreId"`
	Strategy      Strategy      `json:"strategy"`
	PinnedStoreID string        `json:"pinnedStoreId"`
	OpenHandles   int64         `json:"openHandles"`
	Stores        []StoreStatus `json:"stores"`
}

// Store returns the status of one store, if present.
func (s StatusReport) Store(id string) (StoreStatus, bool) {
	for _, st := range s.Stores {
		if st.ID == id {
			return st, true
		}
	}
	return StoreStatus{}, false
}

// Snapshot reads the registry state. It has no side effects.
func (r *Registry) Snapshot() StatusReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := StatusReport{
		ActiveStoreID: r.active,
		Strategy:      r.strategy,
		PinnedStoreID: r.pinned,
		OpenHandles:   r.openHandles.Load(),
		Stores:        make([]StoreStatus, 0, len(r.stores)),
	}
	for _, st := range r.stores {
		h, enabled := st.snapshot()
		rep.Stores = append(rep.Stores, StoreStatus{
			ID:                   st.desc.ID,
			Name:                 st.desc.DisplayName,
			Kind:                 st.desc.Kind,
			Driver:               st.drv.Name(),
			Status:               h.Status,
			Priority:             st.desc.Priority,
			Enabled:              enabled,
			ConsecutiveFailures:  h.ConsecutiveFailures,
			ConsecutiveSuccesses: h.ConsecutiveSuccesses,
			LastProbedAt:         timePtr(h.LastProbedAt),
			LastUsedAt:           timePtr(h.LastUsedAt),
		})
	}
	return rep
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
