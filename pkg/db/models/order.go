package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the immutable record of a settled cart. Only status fields change after creation.
type Order struct {
	ID                       uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CustomerEmail            string            `gorm:"column:customer_email;not null;index"`
	CustomerID               *uuid.UUID        `gorm:"column:customer_id;type:uuid"`
	Total                    decimal.Decimal   `gorm:"column:total;type:numeric(18,4);not null"`
	Currency                 string            `gorm:"column:currency;type:varchar(3);not null"`
	Status                   enums.OrderStatus `gorm:"column:status;type:varchar(16);not null;index"`
	FranchiseLocationID      *uuid.UUID        `gorm:"column:franchise_location_id;type:uuid"`
	DeliveryInfo             json.RawMessage   `gorm:"column:delivery_info;type:jsonb"`
	StockInconsistent        bool              `gorm:"column:stock_inconsistent;not null;default:false;index"`
	StockInconsistencyReason *string           `gorm:"column:stock_inconsistency_reason"`
	CreatedBy                string            `gorm:"column:created_by;not null"`
	ConfirmedAt              *time.Time        `gorm:"column:confirmed_at"`
	ShippedAt                *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt              *time.Time        `gorm:"column:delivered_at"`
	CancelledAt              *time.Time        `gorm:"column:cancelled_at"`
	LineItems                []OrderLineItem   `gorm:"foreignKey:OrderID"`
	CreatedAt                time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderLineItem snapshots price and cost at sale time; later catalog edits never touch it.
type OrderLineItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	Position    int             `gorm:"column:position;not null"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID   *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	ProductName string          `gorm:"column:product_name;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(18,4);not null"`
	UnitCost    decimal.Decimal `gorm:"column:unit_cost;type:numeric(18,4);not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderLineItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
