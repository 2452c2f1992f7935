// Package lock provides the mutual exclusion used to keep evaluation passes
// from overlapping, either within one process or across replicas.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker acquires named locks without blocking.
type Locker interface {
	// TryLock attempts to take key for at most ttl. When ok is false the lock
	// is held elsewhere and unlock is nil.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Local is an in-process Locker. Held locks expire after their ttl so a
// stuck holder cannot block later passes forever.
type Local struct {
	mu    sync.Mutex
	held  map[string]localEntry
	now   func() time.Time
	token uint64
}

type localEntry struct {
	token   uint64
	expires time.Time
}

func NewLocal() *Local {
	return &Local{
		held: make(map[string]localEntry),
		now:  time.Now,
	}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && (e.expires.IsZero() || now.Before(e.expires)) {
		return nil, false, nil
	}

	l.token++
	token := l.token
	entry := localEntry{token: token}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}
	l.held[key] = entry

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[key]; ok && e.token == token {
			delete(l.held, key)
		}
	}, true, nil
}
