package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops implements store.Store over a querier.
type ops struct {
	q     querier
	clock clock.Clock
}

func (o *ops) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := o.q.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", t.selectCols(), t.name), id)
	e, err := t.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%d: %w", kind, id, err)
	}
	return e, nil
}

func (o *ops) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()
	rows, err := o.q.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY id LIMIT ? OFFSET ?", t.selectCols(), t.name),
		page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	out := make([]models.Entity, 0, page.Limit)
	for rows.Next() {
		e, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

func (o *ops) Insert(ctx context.Context, e models.Entity) error {
	if err := models.Validate(e); err != nil {
		return err
	}
	t, err := tableFor(e.EntityKind())
	if err != nil {
		return err
	}
	e.Touch(o.clock.Now().UTC())

	args := t.values(e)
	withID := e.EntityID() != 0
	if withID {
		args = append([]any{e.EntityID()}, args...)
	}
	res, err := o.q.ExecContext(ctx, t.insertSQL(withID), args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", e.EntityKind(), err)
	}
	if !withID {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert %s: %w", e.EntityKind(), err)
		}
		e.SetEntityID(id)
	}
	return nil
}

func (o *ops) Update(ctx context.Context, e models.Entity) error {
	if err := models.Validate(e); err != nil {
		return err
	}
	t, err := tableFor(e.EntityKind())
	if err != nil {
		return err
	}
	e.Touch(o.clock.Now().UTC())

	query, keep := t.updateSQL()
	all := t.values(e)
	args := make([]any, 0, len(keep)+1)
	for _, i := range keep {
		args = append(args, all[i])
	}
	args = append(args, e.EntityID())

	res, err := o.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", e.EntityKind(), e.EntityID(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, e.EntityKind(), e.EntityID())
	}
	return nil
}

func (o *ops) Delete(ctx context.Context, kind models.Kind, id int64) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := o.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.name), id)
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, id)
	}
	return nil
}
