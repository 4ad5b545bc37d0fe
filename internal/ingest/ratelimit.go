package ingest

import (
	"sync"
	"time"
)

// maxTrackedKeys caps the number of tracked senders to prevent memory
// exhaustion from rotating identities.
const maxTrackedKeys = 4096

type limitEntry struct {
	windowStart time.Time
	count       int
}

// Limiter bounds inbound events per sender within a sliding window.
// Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*limitEntry
	window  time.Duration
	maxHits int
}

// NewLimiter creates a limiter allowing maxHits events per key per window.
func NewLimiter(maxHits int, window time.Duration) *Limiter {
	if maxHits <= 0 {
		maxHits = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		entries: make(map[string]*limitEntry),
		window:  window,
		maxHits: maxHits,
	}
}

// Allow returns true if the key is within its rate limit. Stale entries
// are pruned lazily; a hard cap on tracked keys is enforced.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if len(l.entries) >= maxTrackedKeys {
		for k, e := range l.entries {
			if now.Sub(e.windowStart) >= l.window {
				delete(l.entries, k)
			}
		}
		for len(l.entries) >= maxTrackedKeys {
			for k := range l.entries {
				delete(l.entries, k)
				break
			}
		}
	}

	e, ok := l.entries[key]
	if !ok || now.Sub(e.windowStart) >= l.window {
		l.entries[key] = &limitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= l.maxHits
}
