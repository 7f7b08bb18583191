package settlement

import (
	"encoding/json"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Request is the inbound settlement trigger.
type Request struct {
	CustomerEmail       string           `json:"customer_email" validate:"required,email"`
	CustomerID          *uuid.UUID       `json:"customer_id,omitempty"`
	Items               []RequestItem    `json:"items" validate:"required,min=1,dive"`
	DeclaredTotal       *decimal.Decimal `json:"declared_total" validate:"required"`
	DeliveryInfo        json.RawMessage  `json:"delivery_info"`
	FranchiseLocationID *uuid.UUID       `json:"franchise_location_id,omitempty"`
}

// MaxLineQuantity bounds one line so pool totals fit the integer stock columns.
const MaxLineQuantity = 1_000_000

// RequestItem is one cart line with the price and cost seen at checkout.
// The snapshots are pointers so an omitted field is told apart from zero.
type RequestItem struct {
	ProductID         uuid.UUID        `json:"product_id" validate:"required"`
	VariantID         *uuid.UUID       `json:"variant_id,omitempty"`
	Quantity          int              `json:"quantity" validate:"min=1,max=1000000"`
	UnitPriceSnapshot *decimal.Decimal `json:"unit_price_snapshot" validate:"required"`
	UnitCostSnapshot  *decimal.Decimal `json:"unit_cost_snapshot" validate:"required"`
}

// UnitPrice is the price snapshot, zero when absent.
func (i RequestItem) UnitPrice() decimal.Decimal {
	return valueOrZero(i.UnitPriceSnapshot)
}

// UnitCost is the cost snapshot, zero when absent.
func (i RequestItem) UnitCost() decimal.Decimal {
	return valueOrZero(i.UnitCostSnapshot)
}

// LineTotal sums unit price times quantity over every item.
func (r Request) LineTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.UnitPrice().Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Validate applies the rules struct tags cannot express. It repeats the
// basic shape checks so callers outside HTTP get the same guarantees.
func (r Request) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(r.CustomerEmail)); err != nil {
		return invalid("customer_email", "must be a valid email")
	}
	if len(r.Items) == 0 {
		return invalid("items", "at least one item is required")
	}
	for i, item := range r.Items {
		switch {
		case item.ProductID == uuid.Nil:
			return invalidItem(i, "product_id", "is required")
		case item.Quantity < 1:
			return invalidItem(i, "quantity", "must be at least 1")
		case item.Quantity > MaxLineQuantity:
			return invalidItem(i, "quantity", "must be at most 1000000")
		case item.UnitPriceSnapshot == nil:
			return invalidItem(i, "unit_price_snapshot", "is required")
		case item.UnitCostSnapshot == nil:
			return invalidItem(i, "unit_cost_snapshot", "is required")
		case item.UnitPriceSnapshot.IsNegative():
			return invalidItem(i, "unit_price_snapshot", "must not be negative")
		case item.UnitCostSnapshot.IsNegative():
			return invalidItem(i, "unit_cost_snapshot", "must not be negative")
		}
	}
	if r.DeclaredTotal == nil {
		return invalid("declared_total", "is required")
	}
	computed := r.LineTotal().Round(2)
	if !r.DeclaredTotal.Round(2).Equal(computed) {
		return pkgerrors.New(pkgerrors.CodeValidation, "declared total does not match line items").
			WithDetails(map[string]any{
				"declared_total": r.DeclaredTotal.StringFixed(2),
				"computed_total": computed.StringFixed(2),
			})
	}
	return nil
}

func valueOrZero(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}

func invalid(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{field: message})
}

func invalidItem(index int, field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]any{"line": index, "field": field, "error": message})
}
