package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Stock is the central warehouse counter for a product or product variant.
type Stock struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID         `gorm:"column:product_id;type:uuid;not null;index:idx_stock_key"`
	VariantID *uuid.UUID        `gorm:"column:variant_id;type:uuid;index:idx_stock_key"`
	Quantity  int               `gorm:"column:quantity;not null;default:0;check:chk_stock_quantity,quantity >= 0"`
	Status    enums.StockStatus `gorm:"column:status;type:varchar(16);not null;default:active"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Stock) TableName() string { return "stock" }

func (s *Stock) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = enums.StockStatusActive
	}
	return nil
}

// LocationStock is the per-franchise counter, keyed by location, product and optional variant.
type LocationStock struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	LocationID   uuid.UUID         `gorm:"column:location_id;type:uuid;not null;index:idx_location_stock_key"`
	ProductID    uuid.UUID         `gorm:"column:product_id;type:uuid;not null;index:idx_location_stock_key"`
	VariantID    *uuid.UUID        `gorm:"column:variant_id;type:uuid;index:idx_location_stock_key"`
	Quantity     int               `gorm:"column:quantity;not null;default:0;check:chk_location_stock_quantity,quantity >= 0"`
	ReorderLevel int               `gorm:"column:reorder_level;not null;default:0"`
	Status       enums.StockStatus `gorm:"column:status;type:varchar(16);not null;default:active"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (LocationStock) TableName() string { return "location_stock" }

func (s *LocationStock) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = enums.StockStatusActive
	}
	return nil
}
