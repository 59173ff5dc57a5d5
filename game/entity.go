package game

import (
	"sort"
	"sync"

	"github.com/voxelcraft/vcnet"
)

// MemoryEntities is the in-memory EntityManager.
type MemoryEntities struct {
	mu       sync.RWMutex
	entities map[uint32]vcnet.EntityState
}

func NewMemoryEntities() *MemoryEntities {
	return &MemoryEntities{entities: make(map[uint32]vcnet.EntityState)}
}

func (m *MemoryEntities) Upsert(e vcnet.EntityState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entities[e.ID] = e
}

// Has reports whether an entity with the given id is live.
func (m *MemoryEntities) Has(id uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entities[id]
	return ok
}

func (m *MemoryEntities) Remove(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entities, id)
}

// Active returns all entities in ascending id order.
func (m *MemoryEntities) Active() []vcnet.EntityState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]vcnet.EntityState, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
