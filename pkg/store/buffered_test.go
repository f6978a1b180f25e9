package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver/stub"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

func TestBufferedTxStagesUntilCommit(t *testing.T) {
	ctx := context.Background()
	base := stub.New()
	tx := store.NewBufferedTx(base, nil)

	require.NoError(t, tx.Insert(ctx, &models.Company{Name: "Initech"}))
	require.NoError(t, tx.Delete(ctx, models.KindEmployee, 45))

	list, err := tx.List(ctx, models.KindEmployee, models.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 5, "staged delete is visible inside the transaction")

	muts := tx.Mutations()
	require.Len(t, muts, 2)
	assert.Equal(t, store.OpInsert, muts[0].Op)
	assert.Equal(t, store.OpDelete, muts[1].Op)

	companies, err := base.List(ctx, models.KindCompany, models.Page{})
	require.NoError(t, err)
	assert.Len(t, companies, 3)

	require.NoError(t, tx.Commit(ctx))

	companies, err = base.List(ctx, models.KindCompany, models.Page{})
	require.NoError(t, err)
	assert.Len(t, companies, 4)

	gone, err := base.Get(ctx, models.KindEmployee, 45)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestBufferedTxDone(t *testing.T) {
	ctx := context.Background()
	tx := store.NewBufferedTx(stub.New(), nil)
	require.NoError(t, tx.Rollback(ctx))

	_, err := tx.Get(ctx, models.KindEmployee, 42)
	require.ErrorIs(t, err, constants.ErrTxDone)
	require.ErrorIs(t, tx.Insert(ctx, &models.Company{Name: "x"}), constants.ErrTxDone)
	require.ErrorIs(t, tx.Commit(ctx), constants.ErrTxDone)
}

func TestBufferedTxMissing(t *testing.T) {
	ctx := context.Background()
	tx := store.NewBufferedTx(stub.New(), nil)

	err := tx.Update(ctx, &models.Employee{ID: 7, FirstName: "a", LastName: "b"})
	require.ErrorIs(t, err, constants.ErrNotFound)
	require.ErrorIs(t, tx.Delete(ctx, models.KindDocument, 99), constants.ErrNotFound)
	assert.Empty(t, tx.Mutations())
}

func TestBufferedTxApplyError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	var seen []store.Mutation
	tx := store.NewBufferedTx(stub.New(), func(_ context.Context, muts []store.Mutation) error {
		seen = muts
		return boom
	})

	require.NoError(t, tx.Delete(ctx, models.KindEmployee, 40))
	require.ErrorIs(t, tx.Commit(ctx), boom)
	require.Len(t, seen, 1)
	assert.Equal(t, int64(40), seen[0].ID)
}

func TestApplySequentialStopsOnError(t *testing.T) {
	ctx := context.Background()
	base := stub.New()
	apply := store.ApplySequential(base)

	err := apply(ctx, []store.Mutation{
		{Op: store.OpDelete, Kind: models.KindEmployee, ID: 40},
		{Op: store.OpDelete, Kind: models.KindEmployee, ID: 4000},
		{Op: store.OpDelete, Kind: models.KindEmployee, ID: 41},
	})
	require.ErrorIs(t, err, constants.ErrNotFound)

	e, err := base.Get(ctx, models.KindEmployee, 41)
	require.NoError(t, err)
	assert.NotNil(t, e)
	e, err = base.Get(ctx, models.KindEmployee, 40)
	require.NoError(t, err)
	assert.Nil(t, e)
}
