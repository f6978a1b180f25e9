package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/internal/testenv"
	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/models"
)

func TestNewDefaults(t *testing.T) {
	d := New(Config{URL: "ws://localhost:8000/rpc"})
	assert.Equal(t, "workledger", d.cfg.Namespace)
	assert.Equal(t, "workledger", d.cfg.Database)
	assert.Equal(t, constants.DriverSurrealDB, d.Name())
}

func TestNotConnected(t *testing.T) {
	d := New(Config{URL: "ws://127.0.0.1:1/rpc"})
	ctx := context.Background()

	assert.ErrorIs(t, d.Ping(ctx), constants.ErrNotConnected)
	_, err := d.Get(ctx, models.KindEmployee, 42)
	assert.ErrorIs(t, err, constants.ErrNotConnected)
	assert.ErrorIs(t, d.Insert(ctx, &models.Company{Name: "x"}), constants.ErrNotConnected)
	_, err = d.Begin(ctx)
	assert.ErrorIs(t, err, constants.ErrNotConnected)
	assert.NoError(t, d.Close())
}

func TestClassify(t *testing.T) {
	d := New(Config{})
	assert.Equal(t, driver.ClassTransient, d.Classify(constants.ErrNotConnected))
	assert.Equal(t, driver.ClassPermanent, d.Classify(fmt.Errorf("x: %w", constants.ErrNotFound)))
	assert.Equal(t, driver.ClassUnknown, d.Classify(errors.New("websocket: close 1006")))
}

func TestRecordDecode(t *testing.T) {
	body, err := models.MarshalCBOR(&models.Company{Name: "Vos Care", Country: "NL"})
	require.NoError(t, err)

	e, err := record{Seq: 7, Body: body}.decode(models.KindCompany)
	require.NoError(t, err)
	c := e.(*models.Company)
	assert.Equal(t, int64(7), c.ID)
	assert.Equal(t, "NL", c.Country)

	_, err = record{Seq: 1, Body: body}.decode("payroll")
	assert.ErrorIs(t, err, constants.ErrUnknownKind)
}

func TestStoreSuite(t *testing.T) {
	url := testenv.SurrealDBURL(t)
	user, pass := testenv.SurrealDBCredentials()
	mock := clock.NewMock()
	mock.Set(time.Now().UTC().Truncate(time.Second))

	d := New(Config{
		URL:       url,
		Namespace: "workledger_test",
		Database:  fmt.Sprintf("suite_%d", time.Now().UnixNano()),
		Username:  user,
		Password:  pass,
	}, WithClock(mock))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.Connect(ctx))
	t.Cleanup(func() { d.Close() })

	testenv.RunStoreSuite(t, d, mock)
}
