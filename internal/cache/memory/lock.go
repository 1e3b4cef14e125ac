package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

type lockEntry struct {
	token  uint64
	expiry time.Time
}

// LockManager implements domain.LockManager for a single process. It still
// honours TTL expiry so a leaked lock cannot wedge a restarting engine,
// and tracks ownership so a stale unlock cannot release a newer holder.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	seq   uint64
}

// NewLockManager creates an empty in-memory lock manager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]lockEntry)}
}

// Acquire attempts to obtain the lock for the given key with the specified
// TTL. On success it returns an unlock function that is safe to call more
// than once. It returns domain.ErrLockHeld if the lock is live.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	now := time.Now()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if e, ok := lm.locks[key]; ok && now.Before(e.expiry) {
		return nil, domain.ErrLockHeld
	}
	lm.seq++
	token := lm.seq
	lm.locks[key] = lockEntry{token: token, expiry: now.Add(ttl)}

	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if e, ok := lm.locks[key]; ok && e.token == token {
			delete(lm.locks, key)
		}
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
