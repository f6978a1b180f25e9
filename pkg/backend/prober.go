package backend

import (
	"context"
	"fmt"
	"time"
)

// ProbeResult is the outcome of one health probe.
type ProbeResult struct {
	StoreID string
	Healthy bool
	Latency time.Duration
	Err     error
}

// Probe runs an immediate health probe against the store and records its outcome.
// It waits for a probe already in flight for the same store.
func (r *Registry) Probe(ctx context.Context, id string) (ProbeResult, error) {
	st, err := r.store(id)
	if err != nil {
		return ProbeResult{}, err
	}
	return r.probe(ctx, st), nil
}

func (r *Registry) probe(ctx context.Context, st *storeState) ProbeResult {
	st.probeMu.Lock()
	defer st.probeMu.Unlock()

	res := ProbeResult{StoreID: st.desc.ID}
	start := r.clock.Now()

	if st.isStub() {
		res.Healthy = true
	} else {
		res.Err = r.ping(ctx, st)
		res.Healthy = res.Err == nil
	}
	res.Latency = r.clock.Since(start)

	if !res.Healthy && ctx.Err() != nil {
		// the caller or the registry went away; the store was not at fault
		r.log.Debug("probe abandoned", "store", st.desc.ID, "error", ctx.Err())
		return res
	}

	st.markProbed(r.clock.Now())
	r.recordOutcome(st, res.Healthy)
	r.obs.Probed(st.desc.ID, res.Healthy, res.Latency)

	if res.Healthy {
		r.log.Debug("probe succeeded", "store", st.desc.ID, "latency", res.Latency)
	} else {
		r.log.Warn("probe failed", "store", st.desc.ID, "latency", res.Latency, "error", res.Err)
	}
	return res
}

// ping connects lazily and issues the driver's minimal round trip, both bounded by
// the store's probe timeout. A driver that ignores its context still cannot hold
// the probe past the deadline.
func (r *Registry) ping(ctx context.Context, st *storeState) error {
	ctx, cancel := context.WithTimeout(ctx, st.desc.ProbeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if err := r.ensureConnected(ctx, st); err != nil {
			done <- fmt.Errorf("connect: %w", err)
			return
		}
		done <- st.drv.Ping(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("probe: %w", ctx.Err())
	}
}

// probeLoop is the probe actor of one store. The next periodic probe is armed only
// after the previous one finished; a kick runs the next probe early.
func (r *Registry) probeLoop(st *storeState) {
	defer r.wg.Done()

	for {
		if _, enabled := st.snapshot(); enabled {
			r.probe(r.ctx, st)
		}

		t := r.clock.Timer(st.desc.ProbeInterval)
		select {
		case <-r.ctx.Done():
			t.Stop()
			return
		case <-st.kick:
			t.Stop()
			r.log.Debug("out-of-band probe requested", "store", st.desc.ID)
		case <-t.C:
		}
	}
}

// requestProbe asks the store's probe actor for an out-of-band probe without
// blocking. A request already pending absorbs this one.
func (r *Registry) requestProbe(st *storeState) {
	select {
	case st.kick <- struct{}{}:
	default:
	}
}
