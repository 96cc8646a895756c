package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type held struct {
	token string
	done  chan struct{}
}

// MemoryLocker serializes callers within one process. Used by tests and single-instance runs.
type MemoryLocker struct {
	mu   sync.Mutex
	keys map[string]*held
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{keys: make(map[string]*held)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (string, error) {
	for {
		l.mu.Lock()
		cur, ok := l.keys[key]
		if !ok {
			h := &held{token: uuid.NewString(), done: make(chan struct{})}
			l.keys[key] = h
			l.mu.Unlock()
			return h.token, nil
		}
		l.mu.Unlock()

		select {
		case <-cur.done:
		case <-ctx.Done():
			return "", fmt.Errorf("lock %s: %w", key, ctx.Err())
		}
	}
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.keys[key]
	if !ok || cur.token != token {
		return fmt.Errorf("%w: %s", ErrNotHeld, key)
	}
	delete(l.keys, key)
	close(cur.done)
	return nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[key]
	return ok
}
