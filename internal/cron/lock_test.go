package cron

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLeases struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryLeases() *memoryLeases {
	return &memoryLeases{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLeases) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, taken := m.values[key]; taken {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLeases) ReleaseIfHeld(_ context.Context, key, token string) (bool, error) {
	if m.values[key] != token {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryLeases) LockKey(name string) string { return "sf:lock:" + name }

func TestLockName(t *testing.T) {
	assert.Equal(t, "cron-worker:prod", LockName(" prod "))
	assert.Equal(t, "cron-worker:local", LockName(""))
}

func TestLeaseLockExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLeases()
	first, err := NewLeaseLock(store, LockName("dev"), 0)
	require.NoError(t, err)
	second, err := NewLeaseLock(store, LockName("dev"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "sf:lock:cron-worker:dev", first.Key())

	won, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, won)
	assert.Equal(t, defaultLockTTL, store.ttls[first.Key()])

	won, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, won)
	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, first.Key())

	require.NoError(t, first.Release(ctx))
	won, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestLeaseLockKeepsExpiredLeaseTakenByOthers(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLeases()
	lock, err := NewLeaseLock(store, LockName("dev"), time.Minute)
	require.NoError(t, err)

	won, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, won)

	store.values[lock.Key()] = "other-replica"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "other-replica", store.values[lock.Key()])
}

func TestLeaseLockAcquireError(t *testing.T) {
	store := newMemoryLeases()
	store.err = errors.New("connection refused")
	lock, err := NewLeaseLock(store, "x", 0)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, lock.Release(context.Background()))
}

func TestNewLeaseLockValidates(t *testing.T) {
	_, err := NewLeaseLock(nil, "x", 0)
	assert.Error(t, err)
	_, err = NewLeaseLock(newMemoryLeases(), "  ", 0)
	assert.Error(t, err)
}
