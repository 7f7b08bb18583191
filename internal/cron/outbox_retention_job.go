package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultRetention  = 30 * 24 * time.Hour
	defaultPruneBatch = 500
)

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPruner interface {
	PrunePublished(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     transactor
	Outbox publishedPruner
	// RetentionDays keeps delivered rows this long; zero means 30.
	RetentionDays int
	// Batch caps the rows removed per transaction; zero means 500.
	Batch int
}

// OutboxRetentionJob deletes delivered outbox rows past the retention window
// in short transactions so a large backlog never holds one long lock.
// Undelivered and parked rows are never touched.
type OutboxRetentionJob struct {
	logg   *logger.Logger
	db     transactor
	outbox publishedPruner
	keep   time.Duration
	batch  int
	now    func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("outbox retention: logger required")
	case params.DB == nil:
		return nil, errors.New("outbox retention: db required")
	case params.Outbox == nil:
		return nil, errors.New("outbox retention: outbox repository required")
	}
	job := &OutboxRetentionJob{
		logg:   params.Logger,
		db:     params.DB,
		outbox: params.Outbox,
		keep:   time.Duration(params.RetentionDays) * 24 * time.Hour,
		batch:  params.Batch,
		now:    time.Now,
	}
	if job.keep <= 0 {
		job.keep = defaultRetention
	}
	if job.batch <= 0 {
		job.batch = defaultPruneBatch
	}
	return job, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var total int64
	for batches := 0; ; batches++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("outbox retention stopped after %d rows: %w", total, err)
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.outbox.PrunePublished(tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention batch %d: %w", batches+1, err)
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "outbox retention pass finished")
	return nil
}
