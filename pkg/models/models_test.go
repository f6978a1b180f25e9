package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
)

func TestParseKind(t *testing.T) {
	for _, k := range models.Kinds {
		got, err := models.ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)

		e, err := models.New(k)
		require.NoError(t, err)
		assert.Equal(t, k, e.EntityKind())
	}

	_, err := models.ParseKind("Employees")
	assert.ErrorIs(t, err, constants.ErrUnknownKind)
}

func TestPageNormalize(t *testing.T) {
	cases := []struct {
		in, want models.Page
	}{
		{models.Page{}, models.Page{Limit: constants.DefaultPageLimit}},
		{models.Page{Offset: -3, Limit: 10}, models.Page{Limit: 10}},
		{models.Page{Offset: 7, Limit: 100000}, models.Page{Offset: 7, Limit: constants.MaxPageLimit}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.in.Normalize())
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, models.Validate(&models.Company{Name: "Vos Care"}))
	assert.ErrorIs(t, models.Validate(&models.Company{}), constants.ErrInvalidEntity)
	assert.ErrorIs(t, models.Validate(&models.Employee{FirstName: "Ana"}), constants.ErrInvalidEntity)
	assert.ErrorIs(t, models.Validate(&models.Document{ID: -1, Title: "x"}), constants.ErrInvalidEntity)
	assert.ErrorIs(t, models.Validate(nil), constants.ErrInvalidEntity)
}

func TestTouchKeepsCreatedAt(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	c := &models.Company{Name: "Vos Care"}
	c.Touch(t0)
	c.Touch(t0.Add(time.Hour))

	assert.Equal(t, t0, c.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), c.UpdatedAt)
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &models.Employee{ID: 1, FirstName: "Ana", LastName: "Lind"}
	cp := models.Clone(orig).(*models.Employee)
	cp.LastName = "Berg"

	assert.Equal(t, "Lind", orig.LastName)
	assert.NotSame(t, orig, cp)
	assert.Same(t, &cp.Timestamps, models.TimestampsOf(cp))
}
