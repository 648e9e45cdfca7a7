package lock

import (
	"context"
	"sync"
	"time"
)

type lease struct {
	token   string
	expires time.Time
}

// MemoryLocker is a process-local Locker. Expired entries are treated as free.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]lease
	clock func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return NewMemoryLockerWithClock(time.Now)
}

// NewMemoryLockerWithClock measures lease expiry against clock.
func NewMemoryLockerWithClock(clock func() time.Time) *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]lease),
		clock: clock,
	}
}

func (m *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if l, ok := m.held[key]; ok && now.Before(l.expires) {
		return "", false, nil
	}
	token := newToken()
	m.held[key] = lease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryLocker) Unlock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.held[key]
	if !ok || l.token != token {
		return ErrNotHeld
	}
	delete(m.held, key)
	return nil
}
