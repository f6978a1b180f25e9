package backend_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/driver/stub"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

var (
	errConnRefused = errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
	errSyntax      = errors.New("syntax error at or near \"SELEC\"")
)

// fakeDriver is a real-store double: it serves the stub dataset and fails on demand.
type fakeDriver struct {
	*stub.Driver
	name string

	mu         sync.Mutex
	opErr      error
	pingErr    error
	beginErr   error
	block      chan struct{}
	beginBlock chan struct{}
	calls      int
	pings      int
	closed     bool
}

var _ driver.Driver = (*fakeDriver)(nil)

func newFake(name string) *fakeDriver {
	return &fakeDriver{Driver: stub.New(), name: name}
}

func (f *fakeDriver) Name() string { return f.name }

func (f *fakeDriver) failOps(err error) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opErr = err
	return f
}

func (f *fakeDriver) failPing(err error) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
	return f
}

func (f *fakeDriver) failBegin(err error) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginErr = err
	return f
}

// hang makes every store call block, ignoring its context, until the returned
// function is called.
func (f *fakeDriver) hang() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.block = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// hangBegin makes Begin block, ignoring its context, until release is called.
func (f *fakeDriver) hangBegin() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.beginBlock = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeDriver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDriver) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeDriver) before(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	block, err := f.block, f.opErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (f *fakeDriver) Ping(ctx context.Context) error {
	f.mu.Lock()
	f.pings++
	err := f.pingErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDriver) Classify(err error) driver.Class {
	if errors.Is(err, errSyntax) {
		return driver.ClassPermanent
	}
	return f.Driver.Classify(err)
}

func (f *fakeDriver) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	if err := f.before(ctx); err != nil {
		return nil, err
	}
	return f.Driver.Get(ctx, kind, id)
}

func (f *fakeDriver) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	if err := f.before(ctx); err != nil {
		return nil, err
	}
	return f.Driver.List(ctx, kind, page)
}

func (f *fakeDriver) Insert(ctx context.Context, e models.Entity) error {
	if err := f.before(ctx); err != nil {
		return err
	}
	return f.Driver.Insert(ctx, e)
}

func (f *fakeDriver) Update(ctx context.Context, e models.Entity) error {
	if err := f.before(ctx); err != nil {
		return err
	}
	return f.Driver.Update(ctx, e)
}

func (f *fakeDriver) Delete(ctx context.Context, kind models.Kind, id int64) error {
	if err := f.before(ctx); err != nil {
		return err
	}
	return f.Driver.Delete(ctx, kind, id)
}

func (f *fakeDriver) Begin(ctx context.Context) (store.Tx, error) {
	f.mu.Lock()
	f.calls++
	err, block := f.beginErr, f.beginBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return f.Driver.Begin(ctx)
}

// fixture is the three-store layout used throughout the tests.
type fixture struct {
	reg     *backend.Registry
	primary *fakeDriver
	backup  *fakeDriver
	stub    *stub.Driver
}

func descriptors() []backend.Descriptor {
	return []backend.Descriptor{
		{ID: "primary", DisplayName: "Primary", Kind: backend.KindReal, Target: "postgres://primary", Priority: 1,
			MaxFailuresBeforeOffline: 3, SuccessesRequiredToRecover: 2, ProbeInterval: time.Hour,
			ProbeTimeout: 200 * time.Millisecond, OperationTimeout: time.Second, Enabled: true},
		{ID: "backup", DisplayName: "Backup", Kind: backend.KindReal, Target: "postgres://backup", Priority: 2,
			MaxFailuresBeforeOffline: 3, SuccessesRequiredToRecover: 2, ProbeInterval: time.Hour,
			ProbeTimeout: 200 * time.Millisecond, OperationTimeout: time.Second, Enabled: true},
		{ID: "stub", DisplayName: "Degraded stub", Kind: backend.KindDegradedStub, Priority: 999,
			MaxFailuresBeforeOffline: 3, SuccessesRequiredToRecover: 2, ProbeInterval: time.Hour,
			ProbeTimeout: 200 * time.Millisecond, OperationTimeout: time.Second, Enabled: true},
	}
}

func fastBackoff(retries int) backend.Backoff {
	return backend.Backoff{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
	}
}

func newFixture(t *testing.T, mutate func([]backend.Descriptor), opts ...backend.Option) *fixture {
	t.Helper()
	descs := descriptors()
	if mutate != nil {
		mutate(descs)
	}
	f := &fixture{
		primary: newFake("fake-primary"),
		backup:  newFake("fake-backup"),
		stub:    stub.New(),
	}
	opts = append([]backend.Option{backend.WithBackoff(fastBackoff(3))}, opts...)
	reg, err := backend.New(descs, map[string]driver.Driver{
		"primary": f.primary,
		"backup":  f.backup,
		"stub":    f.stub,
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	f.reg = reg
	return f
}

// probeN runs n immediate probes against a store.
func (f *fixture) probeN(t *testing.T, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.reg.Probe(context.Background(), id)
		require.NoError(t, err)
	}
}

func (f *fixture) status(t *testing.T, id string) backend.StoreStatus {
	t.Helper()
	st, ok := f.reg.Snapshot().Store(id)
	require.True(t, ok, "store %q not in snapshot", id)
	return st
}

func getEmployee(id int64) backend.Op {
	return func(ctx context.Context, s store.Store) (any, error) {
		return s.Get(ctx, models.KindEmployee, id)
	}
}

func listEmployees(ctx context.Context, s store.Store) ([]models.Entity, error) {
	return s.List(ctx, models.KindEmployee, models.Page{})
}
