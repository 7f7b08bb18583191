package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// SettlementTask is a post-commit side effect of a settled order, retried until it succeeds or dies.
type SettlementTask struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	Kind          enums.SettlementTaskKind   `gorm:"column:kind;type:varchar(32);not null"`
	LineItemID    *uuid.UUID                 `gorm:"column:line_item_id;type:uuid"`
	Status        enums.SettlementTaskStatus `gorm:"column:status;type:varchar(16);not null;index"`
	Attempts      int                        `gorm:"column:attempts;not null;default:0"`
	LastError     *string                    `gorm:"column:last_error"`
	NextAttemptAt *time.Time                 `gorm:"column:next_attempt_at"`
	CompletedAt   *time.Time                 `gorm:"column:completed_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *SettlementTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = enums.SettlementTaskPending
	}
	return nil
}
