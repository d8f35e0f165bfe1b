package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const turnLockTTL = 2 * time.Minute

// TurnLock enforces "each conversation has at-most-one concurrent turn" (§5).
// A second turn arriving before the first completes is rejected rather than
// queued.
type TurnLock interface {
	// TryAcquire returns true if the caller now holds the lock for
	// conversationID. Release must be called exactly once after a successful
	// TryAcquire, and not after a failed one (it would free the holder's lock).
	TryAcquire(ctx context.Context, conversationID string) (bool, error)
	Release(ctx context.Context, conversationID string)
}

// NewTurnLock returns a Redis-backed lock, or an in-process fallback when no
// Redis client is given (REDIS_ADDR unset), whatever the storage mode.
func NewTurnLock(client *redis.Client) TurnLock {
	if client == nil {
		return newLocalTurnLock()
	}
	return &redisTurnLock{client: client}
}

type redisTurnLock struct {
	client *redis.Client
}

func (l *redisTurnLock) TryAcquire(ctx context.Context, conversationID string) (bool, error) {
	return l.client.SetNX(ctx, lockKey(conversationID), "1", turnLockTTL).Result()
}

func (l *redisTurnLock) Release(ctx context.Context, conversationID string) {
	l.client.Del(ctx, lockKey(conversationID))
}

func lockKey(conversationID string) string { return "conv:" + conversationID }

type localTurnLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLocalTurnLock() *localTurnLock {
	return &localTurnLock{held: make(map[string]struct{})}
}

func (l *localTurnLock) TryAcquire(ctx context.Context, conversationID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[conversationID]; ok {
		return false, nil
	}
	l.held[conversationID] = struct{}{}
	return true, nil
}

func (l *localTurnLock) Release(ctx context.Context, conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, conversationID)
}
