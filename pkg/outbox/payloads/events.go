package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent announces a settled order before its stock is committed.
type OrderCreatedEvent struct {
	OrderID             uuid.UUID       `json:"order_id"`
	CustomerEmail       string          `json:"customer_email"`
	Total               decimal.Decimal `json:"total"`
	Currency            string          `json:"currency"`
	FranchiseLocationID *uuid.UUID      `json:"franchise_location_id,omitempty"`
	LineItemCount       int             `json:"line_item_count"`
}

// OrderStatusChangedEvent is emitted on every fulfillment transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderStockInconsistentEvent flags an order whose stock commit partially failed.
type OrderStockInconsistentEvent struct {
	OrderID       uuid.UUID      `json:"order_id"`
	Reason        string         `json:"reason"`
	FailedEntries []StockFailure `json:"failed_entries"`
	Committed     []StockPoolRef `json:"committed"`
}

// StockPoolRef names one stock pool.
type StockPoolRef struct {
	ProductID  uuid.UUID  `json:"product_id"`
	VariantID  *uuid.UUID `json:"variant_id,omitempty"`
	LocationID *uuid.UUID `json:"location_id,omitempty"`
}

// StockFailure describes why one pool could not be committed.
type StockFailure struct {
	StockPoolRef
	Code      string `json:"code"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// SettlementTaskDeadLetteredEvent reports a follow-up task that exhausted its retries.
type SettlementTaskDeadLetteredEvent struct {
	TaskID     uuid.UUID                `json:"task_id"`
	OrderID    uuid.UUID                `json:"order_id"`
	Kind       enums.SettlementTaskKind `json:"kind"`
	LineItemID *uuid.UUID               `json:"line_item_id,omitempty"`
	Attempts   int                      `json:"attempts"`
	LastError  string                   `json:"last_error"`
}

// ProcurementItemReceivedEvent is emitted when replenishment stock arrives at a location.
type ProcurementItemReceivedEvent struct {
	ItemID           uuid.UUID  `json:"item_id"`
	ProductID        uuid.UUID  `json:"product_id"`
	VariantID        *uuid.UUID `json:"variant_id,omitempty"`
	LocationID       uuid.UUID  `json:"location_id"`
	QuantityReceived int        `json:"quantity_received"`
	NewQuantity      int        `json:"new_quantity"`
	ReceivedAt       time.Time  `json:"received_at"`
}
