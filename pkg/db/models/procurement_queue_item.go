package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ProcurementQueueItem accumulates replenishment demand for one product, variant and location.
type ProcurementQueueItem struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ProductID      uuid.UUID                 `gorm:"column:product_id;type:uuid;not null;index:idx_procurement_queue_key"`
	VariantID      *uuid.UUID                `gorm:"column:variant_id;type:uuid;index:idx_procurement_queue_key"`
	LocationID     uuid.UUID                 `gorm:"column:location_id;type:uuid;not null;index:idx_procurement_queue_key"`
	QuantityNeeded int                       `gorm:"column:quantity_needed;not null;check:chk_procurement_quantity,quantity_needed > 0"`
	Status         enums.ProcurementStatus   `gorm:"column:status;type:varchar(16);not null;index"`
	Priority       enums.ProcurementPriority `gorm:"column:priority;type:varchar(16);not null"`
	LastOrderID    *uuid.UUID                `gorm:"column:last_order_id;type:uuid"`
	Notes          *string                   `gorm:"column:notes"`
	UpdatedBy      string                    `gorm:"column:updated_by;not null"`
	OrderedAt      *time.Time                `gorm:"column:ordered_at"`
	ReceivedAt     *time.Time                `gorm:"column:received_at"`
	CancelledAt    *time.Time                `gorm:"column:cancelled_at"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProcurementQueueItem) TableName() string { return "procurement_queue" }

func (i *ProcurementQueueItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = enums.ProcurementStatusPending
	}
	if i.Priority == "" {
		i.Priority = enums.ProcurementPriorityNormal
	}
	return nil
}
