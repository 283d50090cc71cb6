package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/zw-fingerprint/internal/slotcache"
)

// SlotSnapshots 槽位快照持久化（zw_slot_snapshot），实现 slotcache.Store
type SlotSnapshots struct {
	Pool *pgxpool.Pool
}

var _ slotcache.Store = (*SlotSnapshots)(nil)

func (r *SlotSnapshots) Put(ctx context.Context, s slotcache.Snapshot) error {
	slots := make([]int32, len(s.Slots))
	for i, id := range s.Slots {
		slots[i] = int32(id)
	}
	const q = `INSERT INTO zw_slot_snapshot (address, variant, capacity, slots, updated_at)
               VALUES ($1,$2,$3,$4,NOW())
               ON CONFLICT (address)
               DO UPDATE SET variant=EXCLUDED.variant, capacity=EXCLUDED.capacity, slots=EXCLUDED.slots, updated_at=NOW()`
	if _, err := r.Pool.Exec(ctx, q, s.Address, s.Variant, s.Capacity, slots); err != nil {
		return fmt.Errorf("upsert slot snapshot: %w", err)
	}
	return nil
}

func (r *SlotSnapshots) Get(ctx context.Context, address string) (*slotcache.Snapshot, error) {
	const q = `SELECT address, variant, capacity, slots, updated_at FROM zw_slot_snapshot WHERE address=$1`
	var (
		s     slotcache.Snapshot
		slots []int32
	)
	err := r.Pool.QueryRow(ctx, q, address).Scan(&s.Address, &s.Variant, &s.Capacity, &slots, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, slotcache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query slot snapshot: %w", err)
	}
	s.Slots = make([]int, len(slots))
	for i, id := range slots {
		s.Slots[i] = int(id)
	}
	return &s, nil
}

func (r *SlotSnapshots) Ping(ctx context.Context) error { return r.Pool.Ping(ctx) }
