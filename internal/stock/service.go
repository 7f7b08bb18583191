package stock

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultCommitAttempts = 3

// MaxRequestQuantity is the largest amount one pool can be asked for; stock
// columns are 32-bit integers.
const MaxRequestQuantity = math.MaxInt32

type catalogReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	CountActiveVariants(ctx context.Context, productID uuid.UUID) (int64, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
}

type retryRecorder interface {
	IncStockRetry(pool string)
}

type noopRecorder struct{}

func (noopRecorder) IncStockRetry(string) {}

// Service is the only writer of live stock counters.
type Service interface {
	CheckAndReserve(ctx context.Context, items []Item, locationID *uuid.UUID) (*ReservationPlan, error)
	Commit(ctx context.Context, plan *ReservationPlan, orderID uuid.UUID, actor audit.Actor) CommitResult
	Provision(ctx context.Context, key PoolKey, quantity int, actor audit.Actor) (*Level, error)
	Restock(ctx context.Context, key PoolKey, quantity int, reason string, actor audit.Actor) (*Level, error)
	Adjust(ctx context.Context, key PoolKey, delta int, reason string, actor audit.Actor) (*Level, error)
	Archive(ctx context.Context, key PoolKey, actor audit.Actor) error
	Get(ctx context.Context, key PoolKey) (*Level, error)
	History(ctx context.Context, key PoolKey, limit int) ([]models.StockHistory, error)
}

// ServiceParams wires the stock service.
type ServiceParams struct {
	Pool           StockPool
	Catalog        catalogReader
	Logger         *logger.Logger
	Metrics        retryRecorder
	CommitAttempts int
}

type service struct {
	pool     StockPool
	catalog  catalogReader
	logg     *logger.Logger
	metrics  retryRecorder
	attempts int
}

// NewService builds the inventory reservation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Pool == nil {
		return nil, fmt.Errorf("stock pool required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	attempts := params.CommitAttempts
	if attempts <= 0 {
		attempts = defaultCommitAttempts
	}
	var recorder retryRecorder = noopRecorder{}
	if params.Metrics != nil {
		recorder = params.Metrics
	}
	return &service{
		pool:     params.Pool,
		catalog:  params.Catalog,
		logg:     params.Logger,
		metrics:  recorder,
		attempts: attempts,
	}, nil
}

// CheckAndReserve validates every line against its pool and returns the
// planned before and after quantities. It writes nothing.
func (s *service) CheckAndReserve(ctx context.Context, items []Item, locationID *uuid.UUID) (*ReservationPlan, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if locationID != nil {
		if _, err := s.catalog.GetLocation(ctx, *locationID); err != nil {
			return nil, err
		}
	}

	plan := &ReservationPlan{LocationID: locationID}
	index := map[poolID]int{}
	for i, item := range items {
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"line": i, "product_id": item.ProductID})
		}
		if item.Quantity > MaxRequestQuantity {
			return nil, quantityTooLarge(i, item.ProductID)
		}
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if err := s.checkVariant(ctx, product, item.VariantID); err != nil {
			return nil, err
		}

		key := PoolKey{ProductID: item.ProductID, VariantID: item.VariantID, LocationID: locationID}
		plan.Lines = append(plan.Lines, PlannedLine{
			Index:       i,
			Key:         key,
			ProductName: product.Name,
			Quantity:    item.Quantity,
		})
		if pos, ok := index[key.id()]; ok {
			if plan.Entries[pos].Requested > MaxRequestQuantity-item.Quantity {
				return nil, quantityTooLarge(i, item.ProductID)
			}
			plan.Entries[pos].Requested += item.Quantity
			plan.Entries[pos].LineIndexes = append(plan.Entries[pos].LineIndexes, i)
			continue
		}
		index[key.id()] = len(plan.Entries)
		plan.Entries = append(plan.Entries, PlanEntry{
			Key:         key,
			ProductName: product.Name,
			Requested:   item.Quantity,
			LineIndexes: []int{i},
		})
	}

	for i := range plan.Entries {
		entry := &plan.Entries[i]
		level, err := s.pool.Read(ctx, entry.Key)
		if err != nil {
			return nil, pkgerrors.Persistence(err, "read stock")
		}
		if level.Available() < entry.Requested {
			return nil, insufficientStock(*entry, level.Available())
		}
		entry.PreviousQuantity = level.Quantity
		entry.NewQuantity = level.Quantity - entry.Requested
	}
	return plan, nil
}

func quantityTooLarge(line int, productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "requested quantity exceeds the stock column range").
		WithDetails(map[string]any{"line": line, "product_id": productID, "max": MaxRequestQuantity})
}

func (s *service) checkVariant(ctx context.Context, product *models.Product, variantID *uuid.UUID) error {
	if variantID != nil {
		_, err := s.catalog.GetVariant(ctx, product.ID, *variantID)
		return err
	}
	if !product.HasVariants {
		return nil
	}
	count, err := s.catalog.CountActiveVariants(ctx, product.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return pkgerrors.New(pkgerrors.CodeVariantRequired, "product requires a variant selection").
			WithDetails(map[string]any{"product_id": product.ID, "product_name": product.Name})
	}
	return nil
}

// Commit applies each plan entry with its own compare-and-swap. A lost swap
// is refreshed from a new read and retried until the attempt budget runs out.
// Entries are independent: one failure does not roll back the others.
func (s *service) Commit(ctx context.Context, plan *ReservationPlan, orderID uuid.UUID, actor audit.Actor) CommitResult {
	var result CommitResult
	if plan == nil {
		return result
	}
	for _, entry := range plan.Entries {
		committed, retries, err := s.commitEntry(ctx, entry, orderID, actor)
		result.Retries += retries
		if err != nil {
			result.Failed = append(result.Failed, FailedEntry{Entry: committed, Err: err})
			continue
		}
		result.Committed = append(result.Committed, committed)
	}
	return result
}

func (s *service) commitEntry(ctx context.Context, entry PlanEntry, orderID uuid.UUID, actor audit.Actor) (PlanEntry, int, error) {
	retries := 0
	for attempt := 1; ; attempt++ {
		swapped, err := s.pool.Apply(ctx, Mutation{
			Key:        entry.Key,
			Previous:   entry.PreviousQuantity,
			Next:       entry.NewQuantity,
			ChangeType: enums.StockChangeSale,
			OrderID:    &orderID,
			Actor:      actor,
		})
		if err != nil {
			return entry, retries, pkgerrors.Persistence(err, "commit stock")
		}
		if swapped {
			return entry, retries, nil
		}
		if attempt >= s.attempts {
			return entry, retries, pkgerrors.New(pkgerrors.CodeStockConflict, "stock changed concurrently").
				WithDetails(stockDetails(entry, entry.PreviousQuantity))
		}

		retries++
		s.metrics.IncStockRetry(entry.Key.PoolName())
		s.logStale(ctx, entry, orderID, attempt)

		level, err := s.pool.Read(ctx, entry.Key)
		if err != nil {
			return entry, retries, pkgerrors.Persistence(err, "refresh stock")
		}
		if level.Available() < entry.Requested {
			return entry, retries, insufficientStock(entry, level.Available())
		}
		entry.PreviousQuantity = level.Quantity
		entry.NewQuantity = level.Quantity - entry.Requested
	}
}

func (s *service) logStale(ctx context.Context, entry PlanEntry, orderID uuid.UUID, attempt int) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"pool":     entry.Key.String(),
		"attempt":  attempt,
		"planned":  entry.PreviousQuantity,
	})
	s.logg.Warn(logCtx, "stale stock reservation, refreshing")
}

func (s *service) Provision(ctx context.Context, key PoolKey, quantity int, actor audit.Actor) (*Level, error) {
	if err := s.checkWrite(ctx, key, actor); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	err := s.pool.Create(ctx, Mutation{
		Key:        key,
		Previous:   0,
		Next:       quantity,
		ChangeType: enums.StockChangeInitial,
		Actor:      actor,
	})
	if errors.Is(err, ErrPoolExists) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "stock pool already provisioned").
			WithDetails(keyDetails(key))
	}
	if err != nil {
		return nil, pkgerrors.Persistence(err, "provision stock")
	}
	return s.Get(ctx, key)
}

// Restock adds received stock. A pool that does not exist yet is created
// holding the received quantity.
func (s *service) Restock(ctx context.Context, key PoolKey, quantity int, reason string, actor audit.Actor) (*Level, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be at least 1")
	}
	if err := s.checkWrite(ctx, key, actor); err != nil {
		return nil, err
	}
	level, err := s.pool.Read(ctx, key)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "read stock")
	}
	if !level.Exists {
		err := s.pool.Create(ctx, Mutation{
			Key:        key,
			Next:       quantity,
			ChangeType: enums.StockChangeRestock,
			Reason:     optionalReason(reason),
			Actor:      actor,
		})
		if err == nil {
			return s.Get(ctx, key)
		}
		if !errors.Is(err, ErrPoolExists) {
			return nil, pkgerrors.Persistence(err, "create stock on restock")
		}
	}
	return s.applyDelta(ctx, key, quantity, enums.StockChangeRestock, reason, actor)
}

func (s *service) Adjust(ctx context.Context, key PoolKey, delta int, reason string, actor audit.Actor) (*Level, error) {
	if delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment must change the quantity")
	}
	if err := s.checkWrite(ctx, key, actor); err != nil {
		return nil, err
	}
	return s.applyDelta(ctx, key, delta, enums.StockChangeAdjustment, reason, actor)
}

// applyDelta runs the same read and compare-and-swap loop as Commit.
func (s *service) applyDelta(ctx context.Context, key PoolKey, delta int, changeType enums.StockChangeType, reason string, actor audit.Actor) (*Level, error) {
	for attempt := 1; ; attempt++ {
		level, err := s.pool.Read(ctx, key)
		if err != nil {
			return nil, pkgerrors.Persistence(err, "read stock")
		}
		if !level.Exists {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock pool not found").WithDetails(keyDetails(key))
		}
		if level.Status != enums.StockStatusActive {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "stock pool is archived").WithDetails(keyDetails(key))
		}
		next := level.Quantity + delta
		if next < 0 {
			details := keyDetails(key)
			details["available"] = level.Quantity
			details["delta"] = delta
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment would make stock negative").WithDetails(details)
		}
		swapped, err := s.pool.Apply(ctx, Mutation{
			Key:        key,
			Previous:   level.Quantity,
			Next:       next,
			ChangeType: changeType,
			Reason:     optionalReason(reason),
			Actor:      actor,
		})
		if err != nil {
			return nil, pkgerrors.Persistence(err, "apply stock change")
		}
		if swapped {
			level.Quantity = next
			return &level, nil
		}
		if attempt >= s.attempts {
			return nil, pkgerrors.New(pkgerrors.CodeStockConflict, "stock changed concurrently").WithDetails(keyDetails(key))
		}
		s.metrics.IncStockRetry(key.PoolName())
	}
}

func (s *service) Archive(ctx context.Context, key PoolKey, actor audit.Actor) error {
	if err := s.checkWrite(ctx, key, actor); err != nil {
		return err
	}
	level, err := s.pool.Read(ctx, key)
	if err != nil {
		return pkgerrors.Persistence(err, "read stock")
	}
	if !level.Exists {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock pool not found").WithDetails(keyDetails(key))
	}
	if level.Status == enums.StockStatusArchived {
		return nil
	}
	reason := "archived"
	err = s.pool.SetStatus(ctx, key, enums.StockStatusArchived, Mutation{
		Key:        key,
		Previous:   level.Quantity,
		Next:       level.Quantity,
		ChangeType: enums.StockChangeAdjustment,
		Reason:     &reason,
		Actor:      actor,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock pool not found").WithDetails(keyDetails(key))
	}
	if err != nil {
		return pkgerrors.Persistence(err, "archive stock")
	}
	return nil
}

func (s *service) Get(ctx context.Context, key PoolKey) (*Level, error) {
	level, err := s.pool.Read(ctx, key)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "read stock")
	}
	if !level.Exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock pool not found").WithDetails(keyDetails(key))
	}
	return &level, nil
}

func (s *service) History(ctx context.Context, key PoolKey, limit int) ([]models.StockHistory, error) {
	if key.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	rows, err := s.pool.History(ctx, key, limit)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "list stock history")
	}
	return rows, nil
}

// checkWrite validates the actor and that the key names a real product,
// variant and location.
func (s *service) checkWrite(ctx context.Context, key PoolKey, actor audit.Actor) error {
	if err := actor.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "actor is required")
	}
	if key.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if _, err := s.catalog.GetProduct(ctx, key.ProductID); err != nil {
		return err
	}
	if key.VariantID != nil {
		if _, err := s.catalog.GetVariant(ctx, key.ProductID, *key.VariantID); err != nil {
			return err
		}
	}
	if key.LocationID != nil {
		if _, err := s.catalog.GetLocation(ctx, *key.LocationID); err != nil {
			return err
		}
	}
	return nil
}

func optionalReason(reason string) *string {
	if reason == "" {
		return nil
	}
	return &reason
}
