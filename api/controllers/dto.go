package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderResponse is the public shape of an order and its lines.
type OrderResponse struct {
	ID                       uuid.UUID           `json:"id"`
	CustomerEmail            string              `json:"customer_email"`
	CustomerID               *uuid.UUID          `json:"customer_id,omitempty"`
	Total                    decimal.Decimal     `json:"total"`
	Currency                 string              `json:"currency"`
	Status                   enums.OrderStatus   `json:"status"`
	FranchiseLocationID      *uuid.UUID          `json:"franchise_location_id,omitempty"`
	DeliveryInfo             json.RawMessage     `json:"delivery_info,omitempty"`
	StockInconsistent        bool                `json:"stock_inconsistent"`
	StockInconsistencyReason *string             `json:"stock_inconsistency_reason,omitempty"`
	LineItems                []OrderLineResponse `json:"line_items"`
	ConfirmedAt              *time.Time          `json:"confirmed_at,omitempty"`
	ShippedAt                *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt              *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt              *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt                time.Time           `json:"created_at"`
	UpdatedAt                time.Time           `json:"updated_at"`
}

type OrderLineResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Quantity    int             `json:"quantity"`
}

type OrderListResponse struct {
	Orders     []OrderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func newOrderResponse(o *models.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		lines = append(lines, OrderLineResponse{
			ProductID:   li.ProductID,
			VariantID:   li.VariantID,
			ProductName: li.ProductName,
			UnitPrice:   li.UnitPrice,
			UnitCost:    li.UnitCost,
			Quantity:    li.Quantity,
		})
	}
	return OrderResponse{
		ID:                       o.ID,
		CustomerEmail:            o.CustomerEmail,
		CustomerID:               o.CustomerID,
		Total:                    o.Total,
		Currency:                 o.Currency,
		Status:                   o.Status,
		FranchiseLocationID:      o.FranchiseLocationID,
		DeliveryInfo:             o.DeliveryInfo,
		StockInconsistent:        o.StockInconsistent,
		StockInconsistencyReason: o.StockInconsistencyReason,
		LineItems:                lines,
		ConfirmedAt:              o.ConfirmedAt,
		ShippedAt:                o.ShippedAt,
		DeliveredAt:              o.DeliveredAt,
		CancelledAt:              o.CancelledAt,
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
	}
}

// FinancialTransactionResponse mirrors one ledger row.
type FinancialTransactionResponse struct {
	ID                 uuid.UUID             `json:"id"`
	OrderID            uuid.UUID             `json:"order_id"`
	TransactionType    enums.TransactionType `json:"transaction_type"`
	RevenueAmount      decimal.Decimal       `json:"revenue_amount"`
	TaxAmount          decimal.Decimal       `json:"tax_amount"`
	CostAmount         decimal.Decimal       `json:"cost_amount"`
	ImportVATAmount    decimal.Decimal       `json:"import_vat_amount"`
	CorporateTaxAmount decimal.Decimal       `json:"corporate_tax_amount"`
	ProfitBeforeTax    decimal.Decimal       `json:"profit_before_tax"`
	NetProfitAfterTax  decimal.Decimal       `json:"net_profit_after_tax"`
	Currency           string                `json:"currency"`
	CreatedAt          time.Time             `json:"created_at"`
}

func newFinancialTransactionResponses(rows []models.FinancialTransaction) []FinancialTransactionResponse {
	out := make([]FinancialTransactionResponse, 0, len(rows))
	for _, ft := range rows {
		out = append(out, FinancialTransactionResponse{
			ID:                 ft.ID,
			OrderID:            ft.OrderID,
			TransactionType:    ft.TransactionType,
			RevenueAmount:      ft.RevenueAmount,
			TaxAmount:          ft.TaxAmount,
			CostAmount:         ft.CostAmount,
			ImportVATAmount:    ft.ImportVATAmount,
			CorporateTaxAmount: ft.CorporateTaxAmount,
			ProfitBeforeTax:    ft.ProfitBeforeTax,
			NetProfitAfterTax:  ft.NetProfitAfterTax,
			Currency:           ft.Currency,
			CreatedAt:          ft.CreatedAt,
		})
	}
	return out
}

// CostBreakdownResponse is a persisted landed-cost breakdown.
type CostBreakdownResponse struct {
	ID                            uuid.UUID       `json:"id"`
	ProductID                     uuid.UUID       `json:"product_id"`
	VariantID                     *uuid.UUID      `json:"variant_id,omitempty"`
	BaseCost                      decimal.Decimal `json:"base_cost"`
	TransportCostPerUnit          decimal.Decimal `json:"transport_cost_per_unit"`
	TransportCostAllocatedPerUnit decimal.Decimal `json:"transport_cost_allocated_per_unit"`
	CustomDutyRate                decimal.Decimal `json:"custom_duty_rate"`
	CustomDutyAmount              decimal.Decimal `json:"custom_duty_amount"`
	ImportVATRate                 decimal.Decimal `json:"import_vat_rate"`
	ImportVATAmount               decimal.Decimal `json:"import_vat_amount"`
	TotalLandedCost               decimal.Decimal `json:"total_landed_cost"`
	EffectiveCost                 decimal.Decimal `json:"effective_cost"`
	DesiredProfitMargin           decimal.Decimal `json:"desired_profit_margin"`
	SalesVATRate                  decimal.Decimal `json:"sales_vat_rate"`
	SuggestedSellingPrice         decimal.Decimal `json:"suggested_selling_price"`
	PriceIncludingVAT             decimal.Decimal `json:"price_including_vat"`
	UpdatedBy                     string          `json:"updated_by"`
	UpdatedAt                     time.Time       `json:"updated_at"`
}

func newCostBreakdownResponse(b *models.ProductCostBreakdown) CostBreakdownResponse {
	return CostBreakdownResponse{
		ID:                            b.ID,
		ProductID:                     b.ProductID,
		VariantID:                     b.VariantID,
		BaseCost:                      b.BaseCost,
		TransportCostPerUnit:          b.TransportCostPerUnit,
		TransportCostAllocatedPerUnit: b.TransportCostAllocatedPerUnit,
		CustomDutyRate:                b.CustomDutyRate,
		CustomDutyAmount:              b.CustomDutyAmount,
		ImportVATRate:                 b.ImportVATRate,
		ImportVATAmount:               b.ImportVATAmount,
		TotalLandedCost:               b.TotalLandedCost,
		EffectiveCost:                 b.EffectiveCost,
		DesiredProfitMargin:           b.DesiredProfitMargin,
		SalesVATRate:                  b.SalesVATRate,
		SuggestedSellingPrice:         b.SuggestedSellingPrice,
		PriceIncludingVAT:             b.PriceIncludingVAT,
		UpdatedBy:                     b.CreatedBy,
		UpdatedAt:                     b.UpdatedAt,
	}
}

type DutyRateResponse struct {
	CategoryCode string          `json:"category_code"`
	DutyRate     decimal.Decimal `json:"duty_rate"`
	Description  *string         `json:"description,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func newDutyRateResponse(r models.CustomDutyRate) DutyRateResponse {
	return DutyRateResponse{
		CategoryCode: r.CategoryCode,
		DutyRate:     r.DutyRate,
		Description:  r.Description,
		UpdatedAt:    r.UpdatedAt,
	}
}

// StockHistoryResponse is one audit row of the stock ledger.
type StockHistoryResponse struct {
	ID               uuid.UUID             `json:"id"`
	Seq              int64                 `json:"seq"`
	ChangeType       enums.StockChangeType `json:"change_type"`
	QuantityChange   int                   `json:"quantity_change"`
	PreviousQuantity int                   `json:"previous_quantity"`
	NewQuantity      int                   `json:"new_quantity"`
	OrderID          *uuid.UUID            `json:"order_id,omitempty"`
	Reason           *string               `json:"reason,omitempty"`
	CreatedBy        string                `json:"created_by"`
	CreatedAt        time.Time             `json:"created_at"`
}

func newStockHistoryResponses(rows []models.StockHistory) []StockHistoryResponse {
	out := make([]StockHistoryResponse, 0, len(rows))
	for _, h := range rows {
		out = append(out, StockHistoryResponse{
			ID:               h.ID,
			Seq:              h.Seq,
			ChangeType:       h.ChangeType,
			QuantityChange:   h.QuantityChange,
			PreviousQuantity: h.PreviousQuantity,
			NewQuantity:      h.NewQuantity,
			OrderID:          h.OrderID,
			Reason:           h.Reason,
			CreatedBy:        h.CreatedBy,
			CreatedAt:        h.CreatedAt,
		})
	}
	return out
}

// ProcurementItemResponse is one replenishment worklist entry.
type ProcurementItemResponse struct {
	ID             uuid.UUID                 `json:"id"`
	ProductID      uuid.UUID                 `json:"product_id"`
	VariantID      *uuid.UUID                `json:"variant_id,omitempty"`
	LocationID     uuid.UUID                 `json:"location_id"`
	QuantityNeeded int                       `json:"quantity_needed"`
	Status         enums.ProcurementStatus   `json:"status"`
	Priority       enums.ProcurementPriority `json:"priority"`
	LastOrderID    *uuid.UUID                `json:"last_order_id,omitempty"`
	Notes          *string                   `json:"notes,omitempty"`
	UpdatedBy      string                    `json:"updated_by"`
	OrderedAt      *time.Time                `json:"ordered_at,omitempty"`
	ReceivedAt     *time.Time                `json:"received_at,omitempty"`
	CancelledAt    *time.Time                `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
}

func newProcurementItemResponse(item *models.ProcurementQueueItem) ProcurementItemResponse {
	return ProcurementItemResponse{
		ID:             item.ID,
		ProductID:      item.ProductID,
		VariantID:      item.VariantID,
		LocationID:     item.LocationID,
		QuantityNeeded: item.QuantityNeeded,
		Status:         item.Status,
		Priority:       item.Priority,
		LastOrderID:    item.LastOrderID,
		Notes:          item.Notes,
		UpdatedBy:      item.UpdatedBy,
		OrderedAt:      item.OrderedAt,
		ReceivedAt:     item.ReceivedAt,
		CancelledAt:    item.CancelledAt,
		CreatedAt:      item.CreatedAt,
	}
}
