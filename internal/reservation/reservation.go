// Package reservation holds soft stock reservations placed during a
// checkout attempt. A hold is a best-effort, TTL'd marker meant to prevent
// overselling within a single attempt; it is not a durable inventory lock.
package reservation

import (
	"context"
	"sync"
)

// Reservation is a soft hold on a quantity of one product.
type Reservation struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// Store places and releases soft holds. Release is best-effort: callers
// log failures and move on, they never fail a compensation over it.
type Store interface {
	Hold(ctx context.Context, userID string, items []Reservation) error
	Release(ctx context.Context, userID string) error
}

// MemoryStore is an in-process Store for tests and single-node dev setups.
type MemoryStore struct {
	mu    sync.Mutex
	holds map[string][]Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holds: make(map[string][]Reservation)}
}

func (s *MemoryStore) Hold(_ context.Context, userID string, items []Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[userID] = items
	return nil
}

func (s *MemoryStore) Release(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holds, userID)
	return nil
}

// Held reports the current hold for a user. Test helper.
func (s *MemoryStore) Held(userID string) []Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds[userID]
}
