// Package session keeps per-user chat conversation context in Redis.
// It lives entirely outside the booking engine: the engine stays
// stateless between calls and never reads from here.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists one JSON context blob per user with a sliding TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(userID string) string {
	return "chat:session:" + userID
}

// Get returns the stored context, or an empty JSON object when the
// user has no session yet.
func (s *Store) Get(ctx context.Context, userID string) (json.RawMessage, error) {
	val, err := s.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return json.RawMessage("{}"), nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return json.RawMessage(val), nil
}

// Put replaces the context and resets the TTL. The payload must be
// valid JSON; the chat layer owns its shape.
func (s *Store) Put(ctx context.Context, userID string, data json.RawMessage) error {
	if !json.Valid(data) {
		return errors.New("session data must be valid JSON")
	}
	if err := s.client.Set(ctx, key(userID), []byte(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Delete drops the context, ending the conversation.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
