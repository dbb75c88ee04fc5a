package realtime

import (
	"context"
	"sort"
	"sync"
)

// Presence tracks which users have a live session subscribed to a group.
// Add and Remove are counted so several sessions of one user overlap.
type Presence interface {
	Add(ctx context.Context, groupID, userID string) error
	Remove(ctx context.Context, groupID, userID string) error
	Online(ctx context.Context, groupID string) ([]string, error)
}

type MemoryPresence struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{counts: make(map[string]map[string]int)}
}

func (p *MemoryPresence) Add(_ context.Context, groupID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[groupID] == nil {
		p.counts[groupID] = make(map[string]int)
	}
	p.counts[groupID][userID]++
	return nil
}

func (p *MemoryPresence) Remove(_ context.Context, groupID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := p.counts[groupID]
	if users == nil {
		return nil
	}
	if users[userID]--; users[userID] <= 0 {
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(p.counts, groupID)
	}
	return nil
}

func (p *MemoryPresence) Online(_ context.Context, groupID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.counts[groupID]))
	for u := range p.counts[groupID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}
