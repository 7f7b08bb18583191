package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	followUpBatchSize   = 100
	followUpGraceWindow = 10 * time.Minute
	followUpMaxAttempts = 8
)

// SettlementFollowUpsJobParams configure the follow-up reconciliation job.
type SettlementFollowUpsJobParams struct {
	Logger      *logger.Logger
	Tasks       dueTaskLister
	Runner      settlement.FollowUpRunner
	MaxAttempts int
	BatchSize   int
	GraceWindow time.Duration
}

type dueTaskLister interface {
	ListDue(ctx context.Context, now, pendingBefore time.Time, limit int) ([]models.SettlementTask, error)
}

// NewSettlementFollowUpsJob builds the job that retries failed settlement
// follow-ups and recovers pending ones orphaned by a crashed request.
func NewSettlementFollowUpsJob(params SettlementFollowUpsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("task repository required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("follow-up runner required")
	}
	job := &settlementFollowUpsJob{
		logg:        params.Logger,
		tasks:       params.Tasks,
		runner:      params.Runner,
		maxAttempts: params.MaxAttempts,
		batchSize:   params.BatchSize,
		grace:       params.GraceWindow,
		now:         time.Now,
	}
	if job.maxAttempts <= 0 {
		job.maxAttempts = followUpMaxAttempts
	}
	if job.batchSize <= 0 {
		job.batchSize = followUpBatchSize
	}
	if job.grace <= 0 {
		job.grace = followUpGraceWindow
	}
	return job, nil
}

type settlementFollowUpsJob struct {
	logg        *logger.Logger
	tasks       dueTaskLister
	runner      settlement.FollowUpRunner
	maxAttempts int
	batchSize   int
	grace       time.Duration
	now         func() time.Time
}

func (j *settlementFollowUpsJob) Name() string { return "settlement-followups" }

// Run processes one batch of due tasks. Each task is independent; their
// errors are combined so one bad task does not hide the rest.
func (j *settlementFollowUpsJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.tasks.ListDue(ctx, now, now.Add(-j.grace), j.batchSize)
	if err != nil {
		return fmt.Errorf("list due settlement tasks: %w", err)
	}

	var errs error
	counts := map[settlement.Outcome]int{}
	for _, task := range due {
		if task.Attempts >= j.maxAttempts {
			reason := "attempt budget exhausted"
			if task.LastError != nil {
				reason = *task.LastError
			}
			if err := j.runner.DeadLetter(ctx, task, reason); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("dead-letter task %s: %w", task.ID, err))
				continue
			}
			counts[settlement.OutcomeDead]++
			continue
		}

		outcome, err := j.runner.RunFollowUp(ctx, task)
		counts[outcome]++
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("task %s (%s): %w", task.ID, task.Kind, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":        len(due),
		"succeeded":  counts[settlement.OutcomeSucceeded],
		"skipped":    counts[settlement.OutcomeSkipped],
		"failed":     counts[settlement.OutcomeFailed],
		"dead":       counts[settlement.OutcomeDead],
		"superseded": counts[settlement.OutcomeSuperseded],
	})
	j.logg.Info(logCtx, "settlement follow-ups reconciled")
	return errs
}
