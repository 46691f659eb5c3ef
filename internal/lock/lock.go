// Package lock provides short-lived exclusive locks keyed by string, used to
// keep two workers from recognizing the same photo at once.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned by Lock when another holder owns the key.
var ErrLocked = errors.New("lock held elsewhere")

// Unlock releases a lock obtained from Locker.Lock.
type Unlock func(ctx context.Context) error

type Locker interface {
	// Lock acquires key without waiting. It returns ErrLocked if the key is
	// already held.
	Lock(ctx context.Context, key string) (Unlock, error)
}

// MemoryLocker serializes holders within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Lock(_ context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
