package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PoolKey addresses one stock counter. A nil LocationID selects central
// stock; a set LocationID selects that franchise's stock.
type PoolKey struct {
	ProductID  uuid.UUID  `json:"product_id"`
	VariantID  *uuid.UUID `json:"variant_id,omitempty"`
	LocationID *uuid.UUID `json:"location_id,omitempty"`
}

// IsCentral reports whether the key addresses the central warehouse pool.
func (k PoolKey) IsCentral() bool {
	return k.LocationID == nil
}

// PoolName labels the pool for logs and metrics.
func (k PoolKey) PoolName() string {
	if k.IsCentral() {
		return "central"
	}
	return "location"
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.ProductID, uuidOrDash(k.VariantID), uuidOrDash(k.LocationID))
}

func (k PoolKey) id() poolID {
	id := poolID{product: k.ProductID}
	if k.VariantID != nil {
		id.variant = *k.VariantID
	}
	if k.LocationID != nil {
		id.location = *k.LocationID
	}
	return id
}

// poolID is the comparable form of PoolKey used for aggregation.
type poolID struct {
	product  uuid.UUID
	variant  uuid.UUID
	location uuid.UUID
}

func uuidOrDash(id *uuid.UUID) string {
	if id == nil {
		return "-"
	}
	return id.String()
}

// Level is a point-in-time read of a pool.
type Level struct {
	Key      PoolKey           `json:"key"`
	Quantity int               `json:"quantity"`
	Status   enums.StockStatus `json:"status"`
	Exists   bool              `json:"exists"`
}

// Available is the sellable quantity. Missing and archived pools sell nothing.
func (l Level) Available() int {
	if !l.Exists || l.Status != enums.StockStatusActive {
		return 0
	}
	return l.Quantity
}

// Mutation moves a pool from Previous to Next and records why.
type Mutation struct {
	Key        PoolKey
	Previous   int
	Next       int
	ChangeType enums.StockChangeType
	OrderID    *uuid.UUID
	Reason     *string
	Actor      audit.Actor
}

func (m Mutation) history() models.StockHistory {
	return models.StockHistory{
		ProductID:        m.Key.ProductID,
		VariantID:        m.Key.VariantID,
		LocationID:       m.Key.LocationID,
		ChangeType:       m.ChangeType,
		QuantityChange:   m.Next - m.Previous,
		PreviousQuantity: m.Previous,
		NewQuantity:      m.Next,
		OrderID:          m.OrderID,
		Reason:           m.Reason,
		CreatedBy:        m.Actor.String(),
	}
}

// StockPool is the storage behind both central and franchise counters. Every
// quantity change goes through Apply or Create, which write the counter and
// its history row atomically.
type StockPool interface {
	Read(ctx context.Context, key PoolKey) (Level, error)
	// Apply swaps the quantity from Previous to Next only while the pool is
	// active and still holds Previous. It reports false when the swap lost.
	Apply(ctx context.Context, mutation Mutation) (bool, error)
	// Create inserts a new active pool holding mutation.Next. ErrPoolExists
	// is returned when the key is already present.
	Create(ctx context.Context, mutation Mutation) error
	SetStatus(ctx context.Context, key PoolKey, status enums.StockStatus, entry Mutation) error
	History(ctx context.Context, key PoolKey, limit int) ([]models.StockHistory, error)
}

// ErrPoolExists signals a duplicate Create.
var ErrPoolExists = errors.New("stock pool already exists")
