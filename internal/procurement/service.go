package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type restocker interface {
	Restock(ctx context.Context, key stock.PoolKey, quantity int, reason string, actor audit.Actor) (*stock.Level, error)
}

type defaultLocationFinder interface {
	DefaultLocation(ctx context.Context) (*models.Location, error)
}

// Demand is replenishment need created by a sale.
type Demand struct {
	ProductID  uuid.UUID
	VariantID  *uuid.UUID
	LocationID uuid.UUID
	Quantity   int
	OrderID    *uuid.UUID
	Actor      audit.Actor
}

// Service maintains the replenishment worklist.
type Service interface {
	EnqueueDemand(ctx context.Context, tx *gorm.DB, demand Demand) (*models.ProcurementQueueItem, error)
	ResolveLocation(ctx context.Context, product *models.Product) (*uuid.UUID, error)
	ListPending(ctx context.Context, locationID *uuid.UUID) ([]models.ProcurementQueueItem, error)
	MarkOrdered(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error)
	MarkReceived(ctx context.Context, id uuid.UUID, receivedQty int, actor audit.Actor) (*models.ProcurementQueueItem, error)
	Cancel(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error)
	SetPriority(ctx context.Context, id uuid.UUID, priority enums.ProcurementPriority, actor audit.Actor) (*models.ProcurementQueueItem, error)
}

// ServiceParams wires the procurement service.
type ServiceParams struct {
	Repo            Repository
	Tx              txRunner
	Stock           restocker
	Catalog         defaultLocationFinder
	Outbox          outboxPublisher
	Logger          *logger.Logger
	DefaultLocation *uuid.UUID
}

type service struct {
	repo            Repository
	tx              txRunner
	stock           restocker
	catalog         defaultLocationFinder
	outbox          outboxPublisher
	logg            *logger.Logger
	defaultLocation *uuid.UUID
}

// NewService builds the procurement queue service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("procurement repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock service required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:            params.Repo,
		tx:              params.Tx,
		stock:           params.Stock,
		catalog:         params.Catalog,
		outbox:          params.Outbox,
		logg:            logg,
		defaultLocation: params.DefaultLocation,
	}, nil
}

// EnqueueDemand merges quantity into the pending row for the key, inserting
// one when none exists. A concurrent insert that wins the pending index is
// absorbed by retrying the increment once. The insert runs under a savepoint
// so a violation leaves tx usable.
func (s *service) EnqueueDemand(ctx context.Context, tx *gorm.DB, demand Demand) (*models.ProcurementQueueItem, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if demand.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "demand quantity must be at least 1")
	}
	if demand.ProductID == uuid.Nil || demand.LocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product and location are required")
	}
	actor := demand.Actor
	if actor.IsZero() {
		actor = audit.Service("settlement")
	}

	repo := s.repo.WithTx(tx)
	key := Key{ProductID: demand.ProductID, VariantID: demand.VariantID, LocationID: demand.LocationID}

	merged, err := repo.IncrementPending(ctx, key, demand.Quantity, demand.OrderID, actor.String())
	if err != nil {
		return nil, pkgerrors.Persistence(err, "increment procurement demand")
	}
	if !merged {
		item := &models.ProcurementQueueItem{
			ProductID:      demand.ProductID,
			VariantID:      demand.VariantID,
			LocationID:     demand.LocationID,
			QuantityNeeded: demand.Quantity,
			LastOrderID:    demand.OrderID,
			UpdatedBy:      actor.String(),
		}
		err = tx.Transaction(func(sp *gorm.DB) error {
			return s.repo.WithTx(sp).Create(ctx, item)
		})
		switch {
		case err == nil:
			return item, nil
		case dbpkg.IsUniqueViolation(err, PendingIndex):
			merged, err = repo.IncrementPending(ctx, key, demand.Quantity, demand.OrderID, actor.String())
			if err != nil {
				return nil, pkgerrors.Persistence(err, "increment procurement demand")
			}
			if !merged {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "procurement row changed concurrently")
			}
		default:
			return nil, pkgerrors.Persistence(err, "insert procurement demand")
		}
	}

	item, err := repo.FindPending(ctx, key)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "load procurement demand")
	}
	return item, nil
}

// ResolveLocation picks where replenishment for product should land: the
// product's own location, then the configured default, then the catalog
// default. It returns nil when none applies.
func (s *service) ResolveLocation(ctx context.Context, product *models.Product) (*uuid.UUID, error) {
	if product != nil && product.LocationID != nil {
		return product.LocationID, nil
	}
	if s.defaultLocation != nil {
		return s.defaultLocation, nil
	}
	location, err := s.catalog.DefaultLocation(ctx)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, nil
	}
	return &location.ID, nil
}

func (s *service) ListPending(ctx context.Context, locationID *uuid.UUID) ([]models.ProcurementQueueItem, error) {
	items, err := s.repo.ListPending(ctx, locationID)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "list procurement queue")
	}
	return items, nil
}

func (s *service) MarkOrdered(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error) {
	now := time.Now().UTC()
	return s.move(ctx, id, actor, enums.ProcurementStatusOrdered, map[string]any{"ordered_at": now},
		enums.ProcurementStatusPending)
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error) {
	now := time.Now().UTC()
	return s.move(ctx, id, actor, enums.ProcurementStatusCancelled, map[string]any{"cancelled_at": now},
		enums.ProcurementStatusPending, enums.ProcurementStatusOrdered)
}

// MarkReceived closes the row and restocks the location pool. The row is
// claimed first so a concurrent receipt cannot restock twice; if the restock
// fails the claim is reverted.
func (s *service) MarkReceived(ctx context.Context, id uuid.UUID, receivedQty int, actor audit.Actor) (*models.ProcurementQueueItem, error) {
	if receivedQty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "received quantity must be at least 1")
	}
	receivedAt := time.Now().UTC()
	before, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := s.move(ctx, id, actor, enums.ProcurementStatusReceived, map[string]any{"received_at": receivedAt},
		enums.ProcurementStatusPending, enums.ProcurementStatusOrdered)
	if err != nil {
		return nil, err
	}

	locationID := item.LocationID
	key := stock.PoolKey{ProductID: item.ProductID, VariantID: item.VariantID, LocationID: &locationID}
	level, err := s.stock.Restock(ctx, key, receivedQty, fmt.Sprintf("procurement %s received", item.ID), actor)
	if err != nil {
		s.revertReceipt(ctx, item.ID, before.Status)
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProcurementItemReceived,
			AggregateType: enums.AggregateProcurementItem,
			AggregateID:   item.ID,
			Actor:         &actor,
			OccurredAt:    receivedAt,
			Data: payloads.ProcurementItemReceivedEvent{
				ItemID:           item.ID,
				ProductID:        item.ProductID,
				VariantID:        item.VariantID,
				LocationID:       item.LocationID,
				QuantityReceived: receivedQty,
				NewQuantity:      level.Quantity,
				ReceivedAt:       receivedAt,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "queue procurement received event")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"procurement_id": item.ID.String(),
		"location_id":    item.LocationID.String(),
		"quantity":       receivedQty,
		"actor":          actor.String(),
	})
	s.logg.Info(logCtx, "procurement item received")
	return item, nil
}

func (s *service) revertReceipt(ctx context.Context, id uuid.UUID, previous enums.ProcurementStatus) {
	_, err := s.repo.UpdateStatus(ctx, id, enums.ProcurementStatusReceived, previous, map[string]any{"received_at": nil})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "procurement_id", id.String()), "revert procurement receipt", err)
	}
}

func (s *service) SetPriority(ctx context.Context, id uuid.UUID, priority enums.ProcurementPriority, actor audit.Actor) (*models.ProcurementQueueItem, error) {
	if !priority.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown procurement priority").
			WithDetails(map[string]any{"priority": priority})
	}
	if err := actor.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "actor is invalid")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdatePriority(ctx, id, priority, actor.String())
	if err != nil {
		return nil, pkgerrors.Persistence(err, "update procurement priority")
	}
	if !ok {
		return nil, terminal(id, current.Status)
	}
	return s.load(ctx, id)
}

// move applies a status change guarded by a compare-and-swap on the status
// the row was read with.
func (s *service) move(ctx context.Context, id uuid.UUID, actor audit.Actor, to enums.ProcurementStatus, updates map[string]any, allowed ...enums.ProcurementStatus) (*models.ProcurementQueueItem, error) {
	if err := actor.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "actor is invalid")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(current.Status, allowed) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "procurement status transition not allowed").
			WithDetails(map[string]any{"procurement_id": id, "from": current.Status, "to": to})
	}
	updates["updated_by"] = actor.String()
	ok, err := s.repo.UpdateStatus(ctx, id, current.Status, to, updates)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "update procurement status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "procurement row changed concurrently").
			WithDetails(map[string]any{"procurement_id": id})
	}
	return s.load(ctx, id)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.ProcurementQueueItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "load procurement item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "procurement item not found").
			WithDetails(map[string]any{"procurement_id": id})
	}
	return item, nil
}

func statusIn(status enums.ProcurementStatus, allowed []enums.ProcurementStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func terminal(id uuid.UUID, status enums.ProcurementStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "procurement item is closed").
		WithDetails(map[string]any{"procurement_id": id, "status": status})
}
