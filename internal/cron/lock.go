package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 15 * time.Minute

// Lock keeps cron-worker replicas from reconciling the same rows concurrently.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfHeld(ctx context.Context, key, token string) (bool, error)
	LockKey(name string) string
}

// LeaseLock holds a Redis key for at most ttl. The value is a per-cycle
// token, so only the holder can release early.
type LeaseLock struct {
	store    leaseStore
	key      string
	ttl      time.Duration
	held     string
	newToken func() string
}

// LockName scopes the cron lease to one deployment environment.
func LockName(env string) string {
	env = strings.TrimSpace(env)
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

func NewLeaseLock(store leaseStore, name string, ttl time.Duration) (*LeaseLock, error) {
	if store == nil {
		return nil, errors.New("cron: lease store required")
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil, errors.New("cron: lock name required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &LeaseLock{store: store, key: store.LockKey(name), ttl: ttl, newToken: uuid.NewString}, nil
}

func (l *LeaseLock) Key() string { return l.key }

func (l *LeaseLock) Acquire(ctx context.Context) (bool, error) {
	token := l.newToken()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.held = token
	}
	return won, nil
}

func (l *LeaseLock) Release(ctx context.Context) error {
	token := l.held
	if token == "" {
		return nil
	}
	l.held = ""
	if _, err := l.store.ReleaseIfHeld(ctx, l.key, token); err != nil {
		return err
	}
	return nil
}
