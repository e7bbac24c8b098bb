package rolemanager

import (
	"sync"
	"time"
)

// userLocks provides a single mutation point per user ID. Entries for
// different users are independent, so contention is limited to same-user
// races, which are rare and short.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

type userLock struct {
	mu       sync.Mutex
	lastUsed time.Time
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[string]*userLock)}
}

// lock acquires the user's mutex and returns the unlock function.
func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	entry, ok := l.m[userID]
	if !ok {
		entry = &userLock{}
		l.m[userID] = entry
	}
	entry.lastUsed = time.Now()
	l.mu.Unlock()

	entry.mu.Lock()
	return entry.mu.Unlock
}

// sweep removes entries idle for longer than maxIdle and reports how many
// were dropped. Entries currently held are skipped.
func (l *userLocks) sweep(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxIdle)
	for id, entry := range l.m {
		if entry.lastUsed.Before(cutoff) && entry.mu.TryLock() {
			entry.mu.Unlock()
			delete(l.m, id)
			removed++
		}
	}
	return removed
}
