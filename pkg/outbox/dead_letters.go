package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const (
	maxErrorLen          = 1024
	defaultDeadLetterMax = 50
)

// DeadLetterRepository stores outbox rows the relay has given up on.
type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// Park copies event into outbox_dlq and pins its attempt counter at ceiling
// so ClaimBatch never returns it again. Both writes share tx.
func (r *DeadLetterRepository) Park(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, ceiling int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !reason.IsValid() {
		return errors.New("unknown dead letter reason " + string(reason))
	}
	entry := event.DeadLetter(reason, truncateError(cause), time.Now())
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	if ceiling < event.AttemptCount {
		ceiling = event.AttemptCount
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"attempt_count": ceiling,
			"last_error":    entry.ErrorMessage,
		}).Error
}

// Recent lists parked rows newest first, optionally narrowed to one reason.
func (r *DeadLetterRepository) Recent(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = defaultDeadLetterMax
	}
	q := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit)
	if reason != "" {
		q = q.Where("error_reason = ?", reason)
	}
	var rows []models.OutboxDLQ
	return rows, q.Find(&rows).Error
}

func truncateError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return &msg
}
