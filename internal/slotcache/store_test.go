package slotcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_NextFree(t *testing.T) {
	tests := []struct {
		name     string
		slots    []int
		capacity int
		want     int
		ok       bool
	}{
		{"空库", []int{}, 100, 0, true},
		{"连续占用", []int{0, 1, 2}, 100, 3, true},
		{"中间有空位", []int{0, 1, 5}, 100, 2, true},
		{"首位空闲", []int{3, 4}, 100, 0, true},
		{"已满", []int{0, 1}, 2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{Slots: tt.slots, Capacity: tt.capacity}
			got, ok := s.NextFree()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshot_Occupied(t *testing.T) {
	s := Snapshot{Slots: []int{0, 1, 2, 7, 99}, Capacity: 100}
	assert.True(t, s.Occupied(7))
	assert.True(t, s.Occupied(99))
	assert.False(t, s.Occupied(3))
	assert.False(t, s.Occupied(100))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Ping(ctx))

	_, err := m.Get(ctx, "FFFFFFFF")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Put(ctx, Snapshot{Address: "FFFFFFFF", Variant: "ZW20", Capacity: 100, Slots: []int{7, 0, 2, 7}}))
	s, err := m.Get(ctx, "FFFFFFFF")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 7}, s.Slots)
	assert.False(t, s.UpdatedAt.IsZero())

	// 返回值为拷贝
	s.Slots[0] = 42
	again, err := m.Get(ctx, "FFFFFFFF")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Slots[0])

	require.NoError(t, m.Put(ctx, Snapshot{Address: "FFFFFFFF", Capacity: 100}))
	empty, err := m.Get(ctx, "FFFFFFFF")
	require.NoError(t, err)
	assert.NotNil(t, empty.Slots)
	assert.Empty(t, empty.Slots)
}
