package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type inlineTx struct{ calls int }

func (i *inlineTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	i.calls++
	return fn(nil)
}

// scriptedPruner returns one result per call, then zero.
type scriptedPruner struct {
	results []int64
	cutoffs []time.Time
	limits  []int
	err     error
}

func (s *scriptedPruner) PrunePublished(_ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return 0, s.err
	}
	if len(s.results) == 0 {
		return 0, nil
	}
	n := s.results[0]
	s.results = s.results[1:]
	return n, nil
}

func newRetentionJob(t *testing.T, tx *inlineTx, pruner *scriptedPruner, days, batch int) *OutboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        logger.Nop(),
		DB:            tx,
		Outbox:        pruner,
		RetentionDays: days,
		Batch:         batch,
	})
	require.NoError(t, err)
	return job
}

func TestOutboxRetentionDrainsInBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	tx := &inlineTx{}
	pruner := &scriptedPruner{results: []int64{3, 3, 1}}
	job := newRetentionJob(t, tx, pruner, 7, 3)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 3, tx.calls)
	assert.Equal(t, []int{3, 3, 3}, pruner.limits)
	for _, cutoff := range pruner.cutoffs {
		assert.True(t, cutoff.Equal(now.Add(-7*24*time.Hour)))
	}
}

func TestOutboxRetentionDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &scriptedPruner{}
	job := newRetentionJob(t, &inlineTx{}, pruner, 0, 0)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, pruner.cutoffs, 1)
	assert.True(t, pruner.cutoffs[0].Equal(now.Add(-defaultRetention)))
	assert.Equal(t, defaultPruneBatch, pruner.limits[0])
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	job := newRetentionJob(t, &inlineTx{}, &scriptedPruner{err: errors.New("disk full")}, 0, 0)

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestOutboxRetentionStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pruner := &scriptedPruner{results: []int64{5}}
	job := newRetentionJob(t, &inlineTx{}, pruner, 0, 5)

	err := job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pruner.limits)
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{DB: &inlineTx{}, Outbox: &scriptedPruner{}})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Outbox: &scriptedPruner{}})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: &inlineTx{}})
	assert.Error(t, err)
}
