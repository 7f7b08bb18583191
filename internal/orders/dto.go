package orders

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CreateInput carries everything needed to persist a pending order.
type CreateInput struct {
	CustomerEmail       string
	CustomerID          *uuid.UUID
	Currency            string
	FranchiseLocationID *uuid.UUID
	DeliveryInfo        json.RawMessage
	Lines               []LineInput
	Actor               audit.Actor
}

// LineInput is one sold line with its price and cost snapshot.
type LineInput struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	ProductName string
	UnitPrice   decimal.Decimal
	UnitCost    decimal.Decimal
	Quantity    int
}

// ListFilter narrows the admin order list.
type ListFilter struct {
	Status            *enums.OrderStatus
	StockInconsistent *bool
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
