// Package lock implements the named-lock service the scheduling
// coordinator uses to serialize one lifecycle handler's stage across
// processes: SET NX EX to acquire, a Lua check-and-renew/check-and-release
// pair to make renewal and release safe against a lock that has already
// been taken over by a different holder after expiry.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sessiond:lock:"

var renewScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current == ARGV[1] then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

var releaseScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current == ARGV[1] then
		redis.call('DEL', KEYS[1])
		return 1
	end
	return 0
`)

// ErrNotHeld is returned by Renew/Release when the lock has already been
// taken over by another holder (this holder's lease expired).
var ErrNotHeld = fmt.Errorf("lock: not held by this holder")

// Held is a lock currently held by this process, released by Release. It
// is satisfied by *Lock; callers that only need to hold and release a lock
// (the scheduling coordinator, in particular) should depend on this
// interface rather than the concrete type so a test can substitute a fake
// holder without a real Redis connection.
type Held interface {
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// Service grants named, leased locks backed by Redis.
type Service struct {
	client *redis.Client
}

// NewService wraps an existing Redis client.
func NewService(client *redis.Client) *Service {
	return &Service{client: client}
}

// Lock is a held named lock; Renew/Release operate on it.
type Lock struct {
	service  *Service
	key      string
	holderID string
	lease    time.Duration
}

// Acquire attempts to take name, retrying at a short interval until ctx's
// deadline (the caller's lock_acquire_timeout_ms) elapses. A returned
// ok=false (with a nil error) means the lock is currently held by someone
// else and the caller should skip this round rather than treat it as a
// failure.
func (s *Service) Acquire(ctx context.Context, name string, lease time.Duration) (Held, bool, error) {
	key := keyPrefix + name
	holderID := uuid.NewString()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		acquired, err := s.client.SetNX(ctx, key, holderID, lease).Result()
		if err != nil {
			return nil, false, fmt.Errorf("lock: acquire %q: %w", name, err)
		}
		if acquired {
			return &Lock{service: s, key: key, holderID: holderID, lease: lease}, true, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, nil
		case <-ticker.C:
		}
	}
}

// Renew extends the lease if this Lock is still the current holder.
func (l *Lock) Renew(ctx context.Context) error {
	result, err := renewScript.Run(ctx, l.service.client, []string{l.key}, l.holderID, int(l.lease.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("lock: renew %q: %w", l.key, err)
	}
	if n, _ := result.(int64); n != 1 {
		return ErrNotHeld
	}
	return nil
}

// Release gives up the lock if this Lock is still the current holder; it
// is a no-op (not an error) if the lease already expired and was taken
// over by someone else.
func (l *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.service.client, []string{l.key}, l.holderID).Result()
	if err != nil {
		return fmt.Errorf("lock: release %q: %w", l.key, err)
	}
	if n, _ := result.(int64); n != 1 {
		return nil
	}
	return nil
}
