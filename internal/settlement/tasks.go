package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var runnable = []enums.SettlementTaskStatus{enums.SettlementTaskPending, enums.SettlementTaskFailed}

// TaskRepository persists settlement follow-up tasks.
type TaskRepository interface {
	WithTx(tx *gorm.DB) TaskRepository
	CreateMany(ctx context.Context, tasks []models.SettlementTask) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementTask, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.SettlementTask, error)
	ListDue(ctx context.Context, now, pendingBefore time.Time, limit int) ([]models.SettlementTask, error)
	Claim(ctx context.Context, id uuid.UUID, attempts int) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, status enums.SettlementTaskStatus, note *string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, next time.Time) (bool, error)
	MarkDead(ctx context.Context, id uuid.UUID, attempts, finalAttempts int, lastError string) (bool, error)
	CancelOpen(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository binds the task repository to db.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) WithTx(tx *gorm.DB) TaskRepository {
	if tx == nil {
		return r
	}
	return &taskRepository{db: tx}
}

func (r *taskRepository) CreateMany(ctx context.Context, tasks []models.SettlementTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tasks).Error
}

func (r *taskRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementTask, error) {
	var task models.SettlementTask
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.SettlementTask, error) {
	var tasks []models.SettlementTask
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("kind ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListDue returns failed tasks whose retry time has passed plus pending
// tasks older than pendingBefore, which were orphaned by a crashed request.
func (r *taskRepository) ListDue(ctx context.Context, now, pendingBefore time.Time, limit int) ([]models.SettlementTask, error) {
	var tasks []models.SettlementTask
	err := r.db.WithContext(ctx).
		Where("(status = ? AND next_attempt_at <= ?) OR (status = ? AND created_at <= ?)",
			enums.SettlementTaskFailed, now, enums.SettlementTaskPending, pendingBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// Claim bumps the attempt counter if the task is still runnable and nobody
// else has claimed this attempt. It must run in the transaction that
// performs the side effect.
func (r *taskRepository) Claim(ctx context.Context, id uuid.UUID, attempts int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SettlementTask{}).
		Where("id = ? AND status IN ? AND attempts = ?", id, runnable, attempts).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *taskRepository) Complete(ctx context.Context, id uuid.UUID, status enums.SettlementTaskStatus, note *string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.SettlementTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          status,
			"last_error":      note,
			"next_attempt_at": nil,
			"completed_at":    now,
			"updated_at":      now,
		}).Error
}

func (r *taskRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, next time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SettlementTask{}).
		Where("id = ? AND status IN ? AND attempts = ?", id, runnable, attempts).
		Updates(map[string]any{
			"status":          enums.SettlementTaskFailed,
			"attempts":        attempts + 1,
			"last_error":      lastError,
			"next_attempt_at": next,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkDead parks a task for manual handling. finalAttempts is the attempt
// count to record, which differs from attempts when the failing run itself
// exhausted the budget.
func (r *taskRepository) MarkDead(ctx context.Context, id uuid.UUID, attempts, finalAttempts int, lastError string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.SettlementTask{}).
		Where("id = ? AND status IN ? AND attempts = ?", id, runnable, attempts).
		Updates(map[string]any{
			"status":          enums.SettlementTaskDead,
			"attempts":        finalAttempts,
			"last_error":      lastError,
			"next_attempt_at": nil,
			"completed_at":    now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelOpen cancels every runnable task of an order.
func (r *taskRepository) CancelOpen(ctx context.Context, orderID uuid.UUID) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.SettlementTask{}).
		Where("order_id = ? AND status IN ?", orderID, runnable).
		Updates(map[string]any{
			"status":       enums.SettlementTaskCancelled,
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}
