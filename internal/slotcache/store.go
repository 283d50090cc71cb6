// Package slotcache 保存最近一次读索引表得到的已注册指纹槽位
package slotcache

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNotFound 该地址尚无快照
var ErrNotFound = errors.New("slot snapshot not found")

// Snapshot 已注册槽位快照
type Snapshot struct {
	Address   string    `json:"address"`
	Variant   string    `json:"variant"`
	Capacity  int       `json:"capacity"`
	Slots     []int     `json:"slots"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store 快照存储
type Store interface {
	Put(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, address string) (*Snapshot, error)
	Ping(ctx context.Context) error
}

// Occupied 槽位是否已注册
func (s *Snapshot) Occupied(id int) bool {
	i := sort.SearchInts(s.Slots, id)
	return i < len(s.Slots) && s.Slots[i] == id
}

// NextFree 最小的空闲槽位
func (s *Snapshot) NextFree() (int, bool) {
	next := 0
	for _, id := range s.Slots {
		if id != next {
			break
		}
		next++
	}
	if next >= s.Capacity {
		return 0, false
	}
	return next, true
}

// normalize 升序去重，避免调用方传入未排序数据
func normalize(s Snapshot) Snapshot {
	slots := append([]int(nil), s.Slots...)
	sort.Ints(slots)
	out := slots[:0]
	for i, id := range slots {
		if i > 0 && id == slots[i-1] {
			continue
		}
		out = append(out, id)
	}
	s.Slots = out
	if s.Slots == nil {
		s.Slots = []int{}
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	return s
}
