package realtime

import "sync"

// recentIDs remembers the last size ids it was given.
type recentIDs struct {
	mu   sync.Mutex
	size int
	ring []string
	next int
	set  map[string]struct{}
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{size: size, ring: make([]string, size), set: make(map[string]struct{}, size)}
}

// add records id and reports whether it was unseen.
func (r *recentIDs) add(id string) bool {
	if id == "" {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[id]; ok {
		return false
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % r.size
	return true
}
