package slots

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps slots in insertion order behind a mutex. It backs
// STORE_DRIVER=memory and the package tests.
type MemoryStore struct {
	mu    sync.Mutex
	slots []Slot
}

func NewMemoryStore(seed ...Slot) *MemoryStore {
	m := &MemoryStore{}
	_ = m.Seed(context.Background(), seed)
	return m
}

func (m *MemoryStore) Seed(_ context.Context, slots []Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		if s.DocID == "" {
			s.DocID = uuid.NewString()
		}
		m.slots = append(m.slots, s)
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Slot, len(m.slots))
	copy(out, m.slots)
	return out, nil
}

func (m *MemoryStore) Reserve(ctx context.Context, id int, at time.Time) (Slot, error) {
	if err := ctx.Err(); err != nil {
		return Slot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.slots {
		if m.slots[i].ID != id {
			continue
		}
		if m.slots[i].Occupied {
			return Slot{}, Occupied(id)
		}
		m.slots[i].Occupied = true
		m.slots[i].ReservedAt = &at
		return m.slots[i], nil
	}
	return Slot{}, NotFound(id)
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
