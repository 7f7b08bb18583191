package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeLock struct {
	held       bool
	releaseErr error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	return f.releaseErr
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

type recordedRun struct {
	job    string
	failed bool
}

type fakeRecorder struct {
	runs    []recordedRun
	skipped int
}

func (f *fakeRecorder) ObserveRun(job string, _ time.Duration, err error) {
	f.runs = append(f.runs, recordedRun{job: job, failed: err != nil})
}

func (f *fakeRecorder) IncSkipped() { f.skipped++ }

func TestRunOnceRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &testJob{name: "outbox-retention"}
	bad := &testJob{name: "settlement-followups", err: errors.New("boom")}
	recorder := &fakeRecorder{}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(bad, ok),
		Lock:     lock,
		Metrics:  recorder,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))

	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, bad.runs)
	assert.True(t, ok.deadline, "jobs run under a timeout")
	assert.Equal(t, []recordedRun{
		{job: "settlement-followups", failed: true},
		{job: "outbox-retention", failed: false},
	}, recorder.runs)
	assert.False(t, lock.held, "lock released after the cycle")
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "settlement-followups"}
	recorder := &fakeRecorder{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
		Metrics:  recorder,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))

	assert.Zero(t, job.runs)
	assert.Equal(t, 1, recorder.skipped)
	assert.Empty(t, recorder.runs)
}

func TestRunOnceReportsReleaseFailure(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(&testJob{name: "noop"}),
		Lock:     &fakeLock{releaseErr: errors.New("redis down")},
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release cron lock")
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	assert.Error(t, err)

	service, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}})
	require.NoError(t, err)
	assert.Equal(t, defaultInterval, service.interval)
	assert.Equal(t, defaultJobTimeout, service.jobTimeout)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "noop"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
		Interval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
	assert.Equal(t, 1, job.runs)
}
