// Package redisstore stores session state in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/shopfront/internal/domain/session"
)

const keyPrefix = "session:"

var _ session.Store = (*SessionStore)(nil)

// SessionStore keeps each session as one JSON value. Every save refreshes
// the TTL, so idle sessions expire and active ones do not.
type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSessionStore returns a SessionStore expiring sessions after ttl of
// inactivity.
func NewSessionStore(client redis.UniversalClient, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Load returns the session with id, or session.ErrNotFound when it is
// missing or cannot be decoded.
func (s *SessionStore) Load(ctx context.Context, id string) (*session.State, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var st session.State
	if err := json.Unmarshal(data, &st); err != nil {
		// Unreadable state is treated as expired; the next save overwrites it.
		zctx.From(ctx).Warn("Discarding undecodable session", zap.Error(err))
		return nil, session.ErrNotFound
	}
	st.ID = id
	return &st, nil
}

// Save writes st and resets its expiry.
func (s *SessionStore) Save(ctx context.Context, st *session.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, key(st.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func key(id string) string {
	return keyPrefix + id
}
