package dedupe

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Tracker records which outbox events a consumer has already handled.
// Pub/Sub delivers at least once, so every consumer claims an event id
// before acting on it and forgets the claim if handling fails.
type Tracker struct {
	store claimStore
	ttl   time.Duration
}

func NewTracker(store claimStore, ttl time.Duration) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Tracker{store: store, ttl: ttl}, nil
}

// Claim marks the event as handled by consumer. It reports false when an
// earlier delivery already claimed it.
func (t *Tracker) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := t.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return t.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), t.ttl)
}

// Forget releases a claim so the next delivery is handled again.
func (t *Tracker) Forget(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := t.key(consumer, eventID)
	if err != nil {
		return err
	}
	return t.store.Del(ctx, key)
}

func (t *Tracker) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return t.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
