package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductCostBreakdown is a persisted landed-cost calculation for a product or variant.
type ProductCostBreakdown struct {
	ID                            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID                     uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index:idx_cost_breakdown_key"`
	VariantID                     *uuid.UUID      `gorm:"column:variant_id;type:uuid;index:idx_cost_breakdown_key"`
	BaseCost                      decimal.Decimal `gorm:"column:base_cost;type:numeric(18,4);not null"`
	TransportCostPerUnit          decimal.Decimal `gorm:"column:transport_cost_per_unit;type:numeric(18,4);not null"`
	TransportCostAllocatedPerUnit decimal.Decimal `gorm:"column:transport_cost_allocated_per_unit;type:numeric(18,4);not null"`
	CustomDutyRate                decimal.Decimal `gorm:"column:custom_duty_rate;type:numeric(7,4);not null"`
	CustomDutyAmount              decimal.Decimal `gorm:"column:custom_duty_amount;type:numeric(18,4);not null"`
	ImportVATRate                 decimal.Decimal `gorm:"column:import_vat_rate;type:numeric(7,4);not null"`
	ImportVATAmount               decimal.Decimal `gorm:"column:import_vat_amount;type:numeric(18,4);not null"`
	TotalLandedCost               decimal.Decimal `gorm:"column:total_landed_cost;type:numeric(18,4);not null"`
	EffectiveCost                 decimal.Decimal `gorm:"column:effective_cost;type:numeric(18,4);not null"`
	DesiredProfitMargin           decimal.Decimal `gorm:"column:desired_profit_margin;type:numeric(7,4);not null"`
	SalesVATRate                  decimal.Decimal `gorm:"column:sales_vat_rate;type:numeric(7,4);not null"`
	SuggestedSellingPrice         decimal.Decimal `gorm:"column:suggested_selling_price;type:numeric(18,4);not null"`
	PriceIncludingVAT             decimal.Decimal `gorm:"column:price_including_vat;type:numeric(18,4);not null"`
	CreatedBy                     string          `gorm:"column:created_by;not null"`
	CreatedAt                     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductCostBreakdown) TableName() string { return "product_cost_breakdown" }

func (b *ProductCostBreakdown) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// CustomDutyRate maps a product category to its customs duty percentage.
type CustomDutyRate struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CategoryCode string          `gorm:"column:category_code;not null;uniqueIndex"`
	DutyRate     decimal.Decimal `gorm:"column:duty_rate;type:numeric(7,4);not null"`
	Description  *string         `gorm:"column:description"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *CustomDutyRate) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
