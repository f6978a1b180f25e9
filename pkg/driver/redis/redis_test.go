package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/models"
)

// serverError mimics a Redis error reply.
type serverError string

func (e serverError) Error() string { return string(e) }
func (serverError) RedisError() {}

func TestKeys(t *testing.T) {
	d := New(Config{Addr: "localhost:6379"})
	assert.Equal(t, "workledger:employees:42", d.keys.entity(models.KindEmployee, 42))
	assert.Equal(t, "workledger:documents:ids", d.keys.ids(models.KindDocument))
	assert.Equal(t, "workledger:companies:seq", d.keys.seq(models.KindCompany))

	custom := New(Config{Addr: "localhost:6379", KeyPrefix: "staging"})
	assert.Equal(t, "staging:employees:1", custom.keys.entity(models.KindEmployee, 1))
}

func TestConfigOptions(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache.internal:6380/3"}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = Config{}.options()
	assert.Error(t, err)

	_, err = Config{URL: "http://nope"}.options()
	assert.Error(t, err)
}

func TestNotConnected(t *testing.T) {
	d := New(Config{Addr: "127.0.0.1:1"})
	ctx := context.Background()

	assert.ErrorIs(t, d.Ping(ctx), constants.ErrNotConnected)
	_, err := d.List(ctx, models.KindEmployee, models.Page{})
	assert.ErrorIs(t, err, constants.ErrNotConnected)
	_, err = d.Begin(ctx)
	assert.ErrorIs(t, err, constants.ErrNotConnected)
	assert.NoError(t, d.Close())
}

func TestConnectRefused(t *testing.T) {
	d := New(Config{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := d.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, driver.ClassTransient, d.Classify(err))
	assert.ErrorIs(t, d.Ping(ctx), constants.ErrNotConnected)
}

func TestClassify(t *testing.T) {
	d := New(Config{Addr: "localhost:6379"})
	cases := []struct {
		err  error
		want driver.Class
	}{
		{serverError("LOADING Redis is loading the dataset in memory"), driver.ClassTransient},
		{serverError("BUSY Redis is busy running a script"), driver.ClassTransient},
		{serverError("READONLY You can't write against a read only replica."), driver.ClassTransient},
		{serverError("WRONGTYPE Operation against a key holding the wrong kind of value"), driver.ClassPermanent},
		{serverError("NOAUTH Authentication required."), driver.ClassPermanent},
		{fmt.Errorf("commit: %w", redis.TxFailedErr), driver.ClassTransient},
		{redis.ErrClosed, driver.ClassTransient},
		{&net.OpError{Op: "dial", Err: errors.New("connection refused")}, driver.ClassTransient},
		{fmt.Errorf("x: %w", constants.ErrNotFound), driver.ClassPermanent},
		{errors.New("mystery"), driver.ClassUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, d.Classify(tc.err), "%v", tc.err)
	}
}
