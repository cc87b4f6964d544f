package matchmaker

import (
	"context"
	"fmt"
	"sync"
)

type memRepo struct {
	mu      sync.Mutex
	pools   map[string][]string // key -> userIDs in join order
	players map[string]string   // userID -> key
}

func NewMemoryRepo() Repo {
	return &memRepo{
		pools:   make(map[string][]string),
		players: make(map[string]string),
	}
}

func memKey(variant string, stake int64, seats int) string {
	return fmt.Sprintf("mm:pool:%s:%d:%d", variant, stake, seats)
}

func (m *memRepo) Enqueue(ctx context.Context, variant string, stake int64, seats int, userID string, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, queued := m.players[userID]; queued {
		return nil
	}
	key := memKey(variant, stake, seats)
	m.pools[key] = append(m.pools[key], userID)
	m.players[userID] = key
	// TTL ignored, the memory repo is for tests
	return nil
}

func (m *memRepo) PopOldest(ctx context.Context, variant string, stake int64, seats int, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(variant, stake, seats)
	pool := m.pools[key]
	if len(pool) < n {
		return []string{}, nil
	}

	chosen := append([]string(nil), pool[:n]...)
	rest := pool[n:]
	if len(rest) == 0 {
		delete(m.pools, key)
	} else {
		m.pools[key] = rest
	}
	for _, id := range chosen {
		delete(m.players, id)
	}
	return chosen, nil
}

func (m *memRepo) Remove(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.players[userID]
	if !ok {
		return nil
	}
	pool := m.pools[key]
	for i, id := range pool {
		if id == userID {
			m.pools[key] = append(pool[:i:i], pool[i+1:]...)
			break
		}
	}
	if len(m.pools[key]) == 0 {
		delete(m.pools, key)
	}
	delete(m.players, userID)
	return nil
}

func (m *memRepo) Count(ctx context.Context, variant string, stake int64, seats int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pools[memKey(variant, stake, seats)])), nil
}
