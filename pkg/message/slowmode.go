package message

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const slowModeSweepAt = 4096

type slowEntry struct {
	limiter  *rate.Limiter
	interval time.Duration
	last     time.Time
}

// slowMode allows one message per interval for each (group, user) pair.
// State is per process.
type slowMode struct {
	mu      sync.Mutex
	entries map[string]*slowEntry
}

func newSlowMode() *slowMode {
	return &slowMode{entries: make(map[string]*slowEntry)}
}

// allow reports whether userID may post in groupID at now, consuming the
// allowance when it does.
func (s *slowMode) allow(groupID, userID string, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return true
	}
	key := groupID + "/" + userID

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.interval != interval {
		if len(s.entries) >= slowModeSweepAt {
			s.sweep(now)
		}
		e = &slowEntry{limiter: rate.NewLimiter(rate.Every(interval), 1), interval: interval}
		s.entries[key] = e
	}
	if !e.limiter.AllowN(now, 1) {
		return false
	}
	e.last = now
	return true
}

// sweep drops entries whose interval has fully elapsed; a fresh limiter
// would allow them anyway.
func (s *slowMode) sweep(now time.Time) {
	for k, e := range s.entries {
		if now.Sub(e.last) >= e.interval {
			delete(s.entries, k)
		}
	}
}
