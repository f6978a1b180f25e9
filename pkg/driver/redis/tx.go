package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

// apply commits staged mutations under WATCH on every touched entity key. IDs for
// inserts are drawn first; a failed commit leaves gaps in the sequence.
func (d *Driver) apply(ctx context.Context, muts []store.Mutation) error {
	c, err := d.conn()
	if err != nil {
		return err
	}
	for i := range muts {
		m := &muts[i]
		if m.Op != store.OpInsert {
			continue
		}
		if err := models.Validate(m.Entity); err != nil {
			return err
		}
		if err := d.assignID(ctx, c, m.Entity); err != nil {
			return err
		}
		m.ID = m.Entity.EntityID()
	}

	watched := make([]string, 0, len(muts))
	seen := make(map[string]bool, len(muts))
	for _, m := range muts {
		k := d.keys.entity(m.Kind, m.ID)
		if !seen[k] {
			seen[k] = true
			watched = append(watched, k)
		}
	}

	err = c.Watch(ctx, func(tx *redis.Tx) error {
		writes, err := d.plan(ctx, tx, muts)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				w(pipe)
			}
			return nil
		})
		return err
	}, watched...)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// plan checks every mutation against the watched state and returns the queued writes.
func (d *Driver) plan(ctx context.Context, tx *redis.Tx, muts []store.Mutation) ([]func(redis.Pipeliner), error) {
	// presence after the mutations so far, keyed by entity key
	present := make(map[string]bool)
	current := make(map[string]models.Entity)
	lookup := func(m store.Mutation) (bool, error) {
		k := d.keys.entity(m.Kind, m.ID)
		if p, ok := present[k]; ok {
			return p, nil
		}
		e, err := d.get(ctx, tx, m.Kind, m.ID)
		if err != nil {
			return false, err
		}
		present[k] = e != nil
		if e != nil {
			current[k] = e
		}
		return e != nil, nil
	}

	writes := make([]func(redis.Pipeliner), 0, len(muts))
	for i, m := range muts {
		k := d.keys.entity(m.Kind, m.ID)
		exists, err := lookup(m)
		if err != nil {
			return nil, err
		}
		switch m.Op {
		case store.OpInsert:
			if exists {
				return nil, fmt.Errorf("mutation %d: %w: %s/%d already exists", i, constants.ErrInvalidEntity, m.Kind, m.ID)
			}
			m.Entity.Touch(d.clock.Now().UTC())
			body, err := models.MarshalCBOR(m.Entity)
			if err != nil {
				return nil, err
			}
			present[k] = true
			current[k] = m.Entity
			writes = append(writes, d.writeEntity(ctx, m.Kind, m.ID, body))
		case store.OpUpdate:
			if !exists {
				return nil, fmt.Errorf("mutation %d: %w: %s/%d", i, constants.ErrNotFound, m.Kind, m.ID)
			}
			body, err := d.encodeUpdate(current[k], m.Entity)
			if err != nil {
				return nil, err
			}
			current[k] = m.Entity
			writes = append(writes, d.writeEntity(ctx, m.Kind, m.ID, body))
		case store.OpDelete:
			if !exists {
				return nil, fmt.Errorf("mutation %d: %w: %s/%d", i, constants.ErrNotFound, m.Kind, m.ID)
			}
			present[k] = false
			delete(current, k)
			kind, id := m.Kind, m.ID
			writes = append(writes, func(pipe redis.Pipeliner) {
				pipe.Del(ctx, d.keys.entity(kind, id))
				pipe.ZRem(ctx, d.keys.ids(kind), id)
			})
		}
	}
	return writes, nil
}

func (d *Driver) writeEntity(ctx context.Context, kind models.Kind, id int64, body []byte) func(redis.Pipeliner) {
	return func(pipe redis.Pipeliner) {
		pipe.Set(ctx, d.keys.entity(kind, id), body, 0)
		pipe.ZAdd(ctx, d.keys.ids(kind), redis.Z{Score: float64(id), Member: id})
	}
}
