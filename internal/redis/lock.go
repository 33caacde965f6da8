package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker guards the check-and-insert critical section of a booking.
// The key is the (doctor, date, time slot) triple, so bookings for
// different triples never contend.
type Locker interface {
	WithSlotLock(ctx context.Context, doctorID uuid.UUID, date, timeSlot string, fn func(ctx context.Context) error) error
}

type slotLocker struct {
	client    *redis.Client
	ttl       time.Duration
	wait      time.Duration
	retryStep time.Duration
}

// NewSlotLocker creates a locker backed by a per-triple Redis key.
// A contended lock is retried until wait elapses; after that the caller
// is told the slot is busy rather than being blocked indefinitely.
func NewSlotLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &slotLocker{
		client:    client,
		ttl:       ttl,
		wait:      wait,
		retryStep: 25 * time.Millisecond,
	}
}

func lockKey(doctorID uuid.UUID, date, timeSlot string) string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", doctorID, date, timeSlot)
}

func (l *slotLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, date, timeSlot string, fn func(ctx context.Context) error) error {
	key := lockKey(doctorID, date, timeSlot)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	fnCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(fnCtx)
}

func (l *slotLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire slot lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryStep):
		}
	}
}

// release deletes the lock only when it still holds our token, so an
// expired lock reclaimed by another booking is never removed.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *slotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
