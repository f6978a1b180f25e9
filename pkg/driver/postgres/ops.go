package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"gorm.io/gorm"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
)

type ops struct {
	db    *gorm.DB
	clock clock.Clock
}

func (o *ops) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	e, err := models.New(kind)
	if err != nil {
		return nil, err
	}
	err = o.db.WithContext(ctx).First(e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%d: %w", kind, id, err)
	}
	return e, nil
}

func (o *ops) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	if _, err := models.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	page = page.Normalize()
	q := o.db.WithContext(ctx).Order("id").Offset(page.Offset).Limit(page.Limit)

	var (
		out []models.Entity
		err error
	)
	switch kind {
	case models.KindCompany:
		out, err = find[models.Company](q)
	case models.KindEmployee:
		out, err = find[models.Employee](q)
	case models.KindDocument:
		out, err = find[models.Document](q)
	default:
		return nil, fmt.Errorf("%w: %q", constants.ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

func find[T any, PT interface {
	*T
	models.Entity
}](q *gorm.DB) ([]models.Entity, error) {
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Entity, 0, len(rows))
	for i := range rows {
		out = append(out, PT(&rows[i]))
	}
	return out, nil
}

func (o *ops) Insert(ctx context.Context, e models.Entity) error {
	if err := models.Validate(e); err != nil {
		return err
	}
	e.Touch(o.clock.Now().UTC())
	explicit := e.EntityID() != 0

	db := o.db.WithContext(ctx)
	if err := db.Create(e).Error; err != nil {
		return fmt.Errorf("insert %s: %w", e.EntityKind(), err)
	}
	if explicit {
		// keep the serial ahead of explicitly chosen ids
		table := string(e.EntityKind())
		err := db.Exec(fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence('%s', 'id'), (SELECT MAX(id) FROM %s))", table, table)).Error
		if err != nil {
			return fmt.Errorf("insert %s: advance sequence: %w", table, err)
		}
	}
	return nil
}

func (o *ops) Update(ctx context.Context, e models.Entity) error {
	if err := models.Validate(e); err != nil {
		return err
	}
	e.Touch(o.clock.Now().UTC())
	res := o.db.WithContext(ctx).Model(e).Select("*").Omit("id", "created_at").Updates(e)
	if res.Error != nil {
		return fmt.Errorf("update %s/%d: %w", e.EntityKind(), e.EntityID(), res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, e.EntityKind(), e.EntityID())
	}
	return nil
}

func (o *ops) Delete(ctx context.Context, kind models.Kind, id int64) error {
	e, err := models.New(kind)
	if err != nil {
		return err
	}
	res := o.db.WithContext(ctx).Delete(e, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete %s/%d: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, id)
	}
	return nil
}
