package risk

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// 内存中的快照序列，按帧索引
type MemorySink[K comparable] struct {
	mu     sync.RWMutex
	frames map[int]Snapshot[K]
}

func NewMemorySink[K comparable]() *MemorySink[K] {
	return &MemorySink[K]{frames: make(map[int]Snapshot[K])}
}

func (m *MemorySink[K]) WriteRiskLevels(_ context.Context, frame int, snapshot Snapshot[K]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[frame] = lo.Assign(map[K]float64(snapshot))
	return nil
}

// 指定帧的快照
func (m *MemorySink[K]) At(frame int) (Snapshot[K], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.frames[frame]
	return s, ok
}

// 不晚于frame的最近一帧快照
func (m *MemorySink[K]) Latest(frame int) (Snapshot[K], int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	best := -1
	for f := range m.frames {
		if f <= frame && f > best {
			best = f
		}
	}
	if best < 0 {
		return nil, 0, false
	}
	return m.frames[best], best, true
}

// 已记录的帧，升序
func (m *MemorySink[K]) Frames() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	frames := lo.Keys(m.frames)
	sort.Ints(frames)
	return frames
}
