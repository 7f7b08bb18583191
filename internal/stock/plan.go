package stock

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Item is one requested cart line.
type Item struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// PlannedLine ties a request line to the pool it draws from.
type PlannedLine struct {
	Index       int
	Key         PoolKey
	ProductName string
	Quantity    int
}

// PlanEntry is the aggregated demand on one pool with the quantities observed
// when the plan was built.
type PlanEntry struct {
	Key              PoolKey
	ProductName      string
	Requested        int
	PreviousQuantity int
	NewQuantity      int
	LineIndexes      []int
}

// ReservationPlan is the output of CheckAndReserve. Entries keep the order in
// which their pools first appeared in the request.
type ReservationPlan struct {
	LocationID *uuid.UUID
	Lines      []PlannedLine
	Entries    []PlanEntry
}

// FailedEntry is a plan entry that could not be committed.
type FailedEntry struct {
	Entry PlanEntry
	Err   error
}

// CommitResult lists which pools were decremented and which were not.
type CommitResult struct {
	Committed []PlanEntry
	Failed    []FailedEntry
	Retries   int
}

// OK reports whether every entry committed.
func (r CommitResult) OK() bool {
	return len(r.Failed) == 0
}

// Err returns the first failure, if any.
func (r CommitResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return r.Failed[0].Err
}

func insufficientStock(entry PlanEntry, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for "+entry.ProductName).
		WithDetails(stockDetails(entry, available))
}

func stockDetails(entry PlanEntry, available int) map[string]any {
	details := keyDetails(entry.Key)
	details["product_name"] = entry.ProductName
	details["available"] = available
	details["requested"] = entry.Requested
	return details
}

func keyDetails(key PoolKey) map[string]any {
	return map[string]any{
		"product_id":  key.ProductID,
		"variant_id":  key.VariantID,
		"location_id": key.LocationID,
	}
}
