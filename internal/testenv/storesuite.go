package testenv

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/models"
)

// RunStoreSuite checks the read and write behaviour every driver shares. d must be
// connected and built with clk. The suite only relies on rows it creates, so it can
// run against a database that already holds data.
func RunStoreSuite(t *testing.T, d driver.Driver, clk *clock.Mock) {
	t.Helper()
	ctx := context.Background()
	tag := fmt.Sprintf("suite-%d", clk.Now().UnixNano())

	insert := func(t *testing.T, e models.Entity) models.Entity {
		t.Helper()
		require.NoError(t, d.Insert(ctx, e))
		require.NotZero(t, e.EntityID())
		return e
	}

	t.Run("insert and get", func(t *testing.T) {
		c := insert(t, &models.Company{Name: tag, Industry: "retail", Country: "PT"}).(*models.Company)

		got, err := d.Get(ctx, models.KindCompany, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		gc := got.(*models.Company)
		assert.Equal(t, tag, gc.Name)
		assert.Equal(t, "PT", gc.Country)
		assert.WithinDuration(t, clk.Now(), gc.CreatedAt, time.Millisecond)

		missing, err := d.Get(ctx, models.KindCompany, 1<<40)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("explicit id", func(t *testing.T) {
		auto := insert(t, &models.Company{Name: tag})
		explicit := auto.EntityID() + 1000
		insert(t, &models.Company{ID: explicit, Name: tag})

		next := insert(t, &models.Company{Name: tag})
		assert.Greater(t, next.EntityID(), explicit, "auto ids must skip past explicit ones")

		err := d.Insert(ctx, &models.Company{ID: explicit, Name: tag})
		require.Error(t, err)
		assert.Equal(t, driver.ClassPermanent, d.Classify(err))
	})

	t.Run("update keeps created at", func(t *testing.T) {
		c := insert(t, &models.Company{Name: tag}).(*models.Company)
		created := clk.Now()
		clk.Add(time.Hour)

		c.Name = tag + "-renamed"
		require.NoError(t, d.Update(ctx, c))

		got, err := d.Get(ctx, models.KindCompany, c.ID)
		require.NoError(t, err)
		gc := got.(*models.Company)
		assert.Equal(t, tag+"-renamed", gc.Name)
		assert.WithinDuration(t, created, gc.CreatedAt, time.Millisecond)
		assert.WithinDuration(t, clk.Now(), gc.UpdatedAt, time.Millisecond)

		err = d.Update(ctx, &models.Company{ID: 1 << 40, Name: tag})
		assert.ErrorIs(t, err, constants.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		c := insert(t, &models.Company{Name: tag})
		require.NoError(t, d.Delete(ctx, models.KindCompany, c.EntityID()))

		got, err := d.Get(ctx, models.KindCompany, c.EntityID())
		require.NoError(t, err)
		assert.Nil(t, got)

		assert.ErrorIs(t, d.Delete(ctx, models.KindCompany, c.EntityID()), constants.ErrNotFound)
	})

	t.Run("list order and paging", func(t *testing.T) {
		var created []int64
		for i := 0; i < 3; i++ {
			created = append(created, insert(t, &models.Document{Title: fmt.Sprintf("%s-%d", tag, i)}).EntityID())
		}

		var ids []int64
		page := models.Page{Limit: constants.MaxPageLimit}
		for {
			list, err := d.List(ctx, models.KindDocument, page)
			require.NoError(t, err)
			for _, e := range list {
				ids = append(ids, e.EntityID())
			}
			if len(list) < page.Limit {
				break
			}
			page.Offset += page.Limit
		}
		assert.True(t, slices.IsSorted(ids), "list must be ordered by id: %v", ids)
		for _, id := range created {
			assert.Contains(t, ids, id)
		}

		first, err := d.List(ctx, models.KindDocument, models.Page{Offset: 0, Limit: 2})
		require.NoError(t, err)
		second, err := d.List(ctx, models.KindDocument, models.Page{Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, first, 2)
		require.NotEmpty(t, second)
		assert.Equal(t, first[1].EntityID(), second[0].EntityID())

		_, err = d.List(ctx, "payroll", models.Page{})
		assert.ErrorIs(t, err, constants.ErrUnknownKind)
	})

	t.Run("transaction", func(t *testing.T) {
		keep := insert(t, &models.Company{Name: tag}).(*models.Company)
		drop := insert(t, &models.Company{Name: tag})

		tx, err := d.Begin(ctx)
		require.NoError(t, err)
		keep.Name = tag + "-rolled-back"
		require.NoError(t, tx.Update(ctx, keep))
		require.NoError(t, tx.Rollback(ctx))

		got, err := d.Get(ctx, models.KindCompany, keep.ID)
		require.NoError(t, err)
		assert.Equal(t, tag, got.(*models.Company).Name)

		tx, err = d.Begin(ctx)
		require.NoError(t, err)
		keep.Name = tag + "-committed"
		require.NoError(t, tx.Update(ctx, keep))
		require.NoError(t, tx.Delete(ctx, models.KindCompany, drop.EntityID()))
		require.NoError(t, tx.Commit(ctx))
		assert.ErrorIs(t, tx.Commit(ctx), constants.ErrTxDone)

		got, err = d.Get(ctx, models.KindCompany, keep.ID)
		require.NoError(t, err)
		assert.Equal(t, tag+"-committed", got.(*models.Company).Name)
		gone, err := d.Get(ctx, models.KindCompany, drop.EntityID())
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}
