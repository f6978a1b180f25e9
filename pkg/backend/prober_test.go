package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/constants"
)

func TestProbeStubAlwaysHealthy(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.reg.Probe(context.Background(), "stub")
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	assert.NoError(t, res.Err)

	_, err = f.reg.Probe(context.Background(), "nope")
	require.ErrorIs(t, err, constants.ErrStoreNotFound)
}

func TestProbeRecordsOutcome(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.reg.Probe(ctx, "primary")
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	assert.Equal(t, backend.StatusUnknown, f.status(t, "primary").Status)

	_, err = f.reg.Probe(ctx, "primary")
	require.NoError(t, err)
	assert.Equal(t, backend.StatusOnline, f.status(t, "primary").Status)

	f.primary.failPing(errConnRefused)
	res, err = f.reg.Probe(ctx, "primary")
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.ErrorIs(t, res.Err, errConnRefused)
	assert.Equal(t, backend.StatusDegraded, f.status(t, "primary").Status)
}

func TestProbeDeadlineCountsAsFailure(t *testing.T) {
	f := newFixture(t, func(d []backend.Descriptor) {
		d[0].ProbeTimeout = 20 * time.Millisecond
	})
	f.primary.failPing(context.DeadlineExceeded)

	res, err := f.reg.Probe(context.Background(), "primary")
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.Equal(t, 1, f.status(t, "primary").ConsecutiveFailures)
}

func TestProbeActorsRunUntilClose(t *testing.T) {
	f := newFixture(t, func(d []backend.Descriptor) {
		for i := range d {
			d[i].ProbeInterval = 5 * time.Millisecond
		}
	})
	f.backup.failPing(errConnRefused)

	require.NoError(t, f.reg.Start(context.Background()))
	require.Error(t, f.reg.Start(context.Background()), "second start is refused")

	require.Eventually(t, func() bool {
		return f.status(t, "primary").Status == backend.StatusOnline &&
			f.status(t, "backup").Status == backend.StatusOffline &&
			f.status(t, "stub").Status == backend.StatusOnline
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.reg.Close())
	pings := f.primary.Pings()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, pings, f.primary.Pings(), "no probes after Close")
}

func TestDisabledStoreIsNotProbed(t *testing.T) {
	f := newFixture(t, func(d []backend.Descriptor) {
		d[1].Enabled = false
		for i := range d {
			d[i].ProbeInterval = 5 * time.Millisecond
		}
	})
	require.NoError(t, f.reg.Start(context.Background()))
	require.Eventually(t, func() bool { return f.primary.Pings() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, f.backup.Pings())
}

// A failing operation kicks an out-of-band probe without waiting for the interval.
func TestFailureTriggersOutOfBandProbe(t *testing.T) {
	f := newFixture(t, nil, backend.WithBackoff(fastBackoff(0)))
	require.NoError(t, f.reg.Start(context.Background()))
	require.Eventually(t, func() bool { return f.primary.Pings() == 1 }, time.Second, time.Millisecond)

	f.primary.failOps(errConnRefused)
	_, err := f.reg.Execute(context.Background(), "get", getEmployee(42))
	require.NoError(t, err)

	// the probe interval is an hour; only the kick can cause a second ping
	require.Eventually(t, func() bool { return f.primary.Pings() >= 2 }, time.Second, time.Millisecond)
}

// Probes are not cancelled by the caller whose failure triggered them.
func TestOutOfBandProbeSurvivesCallerCancel(t *testing.T) {
	f := newFixture(t, nil, backend.WithBackoff(fastBackoff(0)))
	require.NoError(t, f.reg.Start(context.Background()))
	require.Eventually(t, func() bool { return f.primary.Pings() == 1 }, time.Second, time.Millisecond)

	f.primary.failOps(errConnRefused)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.reg.Execute(ctx, "get", getEmployee(42))
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		p := f.status(t, "primary")
		return f.primary.Pings() >= 2 && p.LastProbedAt != nil
	}, time.Second, time.Millisecond)
}
