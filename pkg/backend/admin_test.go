package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/constants"
)

func TestSwitchToPinsStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.reg.SwitchTo(ctx, "backup"))
	snap := f.reg.Snapshot()
	assert.Equal(t, "backup", snap.ActiveStoreID)
	assert.Equal(t, "backup", snap.PinnedStoreID)
	assert.Equal(t, 1, f.backup.Pings())

	// PRIORITY would pick primary, the pin wins
	res, err := f.reg.Execute(ctx, "get", getEmployee(42))
	require.NoError(t, err)
	assert.Equal(t, "backup", res.StoreID)
}

func TestSwitchToRecoveringOfflineStore(t *testing.T) {
	f := newFixture(t, nil, backend.WithBackoff(fastBackoff(0)))
	ctx := context.Background()
	f.backup.failPing(errConnRefused)
	f.probeN(t, "backup", 3)
	f.backup.failPing(nil)

	// one good probe is enough to switch; the store stays OFFLINE until it recovers
	require.NoError(t, f.reg.SwitchTo(ctx, "backup"))
	assert.Equal(t, backend.StatusOffline, f.status(t, "backup").Status)

	res, err := f.reg.Execute(ctx, "get", getEmployee(42))
	require.NoError(t, err)
	assert.Equal(t, "backup", res.StoreID)
}

func TestPinDroppedWhenStoreBecomesUnusable(t *testing.T) {
	f := newFixture(t, nil, backend.WithBackoff(fastBackoff(0)))
	ctx := context.Background()
	require.NoError(t, f.reg.SwitchTo(ctx, "backup"))

	f.backup.failPing(errConnRefused)
	f.probeN(t, "backup", 3)

	res, err := f.reg.Execute(ctx, "get", getEmployee(42))
	require.NoError(t, err)
	assert.Equal(t, "primary", res.StoreID)
	assert.Empty(t, f.reg.Snapshot().PinnedStoreID)
}

func TestSwitchToErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, f.reg.SwitchTo(ctx, "nope"), constants.ErrStoreNotFound)

	require.NoError(t, f.reg.SetEnabled("backup", false))
	require.ErrorIs(t, f.reg.SwitchTo(ctx, "backup"), constants.ErrStoreDisabled)
	assert.Zero(t, f.backup.Pings(), "disabled store is not probed")
}

func TestSwitchToStubSkipsProbe(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.reg.SwitchTo(ctx, "stub"))
	res, err := f.reg.Execute(ctx, "get", getEmployee(42))
	require.NoError(t, err)
	assert.Equal(t, "stub", res.StoreID)
	assert.True(t, res.Degraded)
}

func TestSetStrategyClearsPinAndReselects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.reg.SwitchTo(ctx, "backup"))

	require.NoError(t, f.reg.SetStrategy(backend.StrategyPriority))
	snap := f.reg.Snapshot()
	assert.Empty(t, snap.PinnedStoreID)
	assert.Equal(t, "primary", snap.ActiveStoreID)

	require.NoError(t, f.reg.SetStrategy(backend.StrategyStickyFailover))
	assert.Equal(t, backend.StrategyStickyFailover, f.reg.Strategy())

	require.ErrorIs(t, f.reg.SetStrategy("random"), constants.ErrUnknownStrategy)
	assert.Equal(t, backend.StrategyStickyFailover, f.reg.Strategy())
}

func TestDisablingActiveStoreReselects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.reg.Execute(ctx, "get", getEmployee(42))
	require.NoError(t, err)
	require.Equal(t, "primary", f.reg.Snapshot().ActiveStoreID)

	require.NoError(t, f.reg.SetEnabled("primary", false))
	snap := f.reg.Snapshot()
	assert.Equal(t, "backup", snap.ActiveStoreID)
	p, _ := snap.Store("primary")
	assert.False(t, p.Enabled)

	res, err := f.reg.Execute(ctx, "get", getEmployee(42))
	require.NoError(t, err)
	assert.Equal(t, "backup", res.StoreID)

	require.NoError(t, f.reg.SetEnabled("primary", true))
	res, err = f.reg.Execute(ctx, "get", getEmployee(42))
	require.NoError(t, err)
	assert.Equal(t, "primary", res.StoreID)

	require.ErrorIs(t, f.reg.SetEnabled("nope", true), constants.ErrStoreNotFound)
}

func TestDisablingPinnedStoreUnpins(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.reg.SwitchTo(context.Background(), "backup"))
	require.NoError(t, f.reg.SetEnabled("backup", false))

	snap := f.reg.Snapshot()
	assert.Empty(t, snap.PinnedStoreID)
	assert.Equal(t, "primary", snap.ActiveStoreID)
}

func TestDisablingLastStoreClearsActive(t *testing.T) {
	f := newFixture(t, func(d []backend.Descriptor) {
		d[1].Enabled = false
		d[2].Enabled = false
	})
	_, err := f.reg.Execute(context.Background(), "get", getEmployee(42))
	require.NoError(t, err)

	require.NoError(t, f.reg.SetEnabled("primary", false))
	assert.Empty(t, f.reg.Snapshot().ActiveStoreID)
}
