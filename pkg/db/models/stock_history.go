package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// StockHistory is the append-only audit row written for every stock mutation.
// Seq numbers the rows of one pool key from 1 and orders them strictly.
type StockHistory struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ProductID        uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index:idx_stock_history_key,priority:1"`
	VariantID        *uuid.UUID            `gorm:"column:variant_id;type:uuid;index:idx_stock_history_key,priority:2"`
	LocationID       *uuid.UUID            `gorm:"column:location_id;type:uuid;index:idx_stock_history_key,priority:3"`
	Seq              int64                 `gorm:"column:seq;not null;default:0;index:idx_stock_history_key,priority:4"`
	ChangeType       enums.StockChangeType `gorm:"column:change_type;type:varchar(16);not null"`
	QuantityChange   int                   `gorm:"column:quantity_change;not null"`
	PreviousQuantity int                   `gorm:"column:previous_quantity;not null"`
	NewQuantity      int                   `gorm:"column:new_quantity;not null"`
	OrderID          *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	Reason           *string               `gorm:"column:reason"`
	CreatedBy        string                `gorm:"column:created_by;not null"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (StockHistory) TableName() string { return "stock_history" }

// BeforeCreate refuses rows that break the before/after arithmetic.
func (h *StockHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if !h.ChangeType.IsValid() {
		return fmt.Errorf("invalid stock change type %q", h.ChangeType)
	}
	if h.NewQuantity != h.PreviousQuantity+h.QuantityChange {
		return fmt.Errorf("stock history mismatch: %d + %d != %d", h.PreviousQuantity, h.QuantityChange, h.NewQuantity)
	}
	if h.NewQuantity < 0 {
		return fmt.Errorf("stock history would record negative quantity %d", h.NewQuantity)
	}
	if h.CreatedBy == "" {
		return fmt.Errorf("stock history requires an actor")
	}
	return nil
}
