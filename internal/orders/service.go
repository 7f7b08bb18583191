package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the order record and its fulfillment lifecycle.
type Service interface {
	CreatePending(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, id uuid.UUID, to enums.OrderStatus, actor audit.Actor) (*models.Order, error)
	MarkStockInconsistent(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) error
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the orders service.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: publisher,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// transitions lists the forward moves; cancellation is allowed from any
// non-terminal status and is handled separately.
var transitions = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusPending:    enums.OrderStatusConfirmed,
	enums.OrderStatusConfirmed:  enums.OrderStatusProcessing,
	enums.OrderStatusProcessing: enums.OrderStatusShipped,
	enums.OrderStatusShipped:    enums.OrderStatusDelivered,
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == enums.OrderStatusCancelled {
		return true
	}
	next, ok := transitions[from]
	return ok && next == to
}

// CreatePending persists the order header and line items inside tx. The
// caller owns the transaction so the order commits together with its
// follow-up rows and events.
func (s *service) CreatePending(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	order := &models.Order{
		CustomerEmail:       strings.TrimSpace(input.CustomerEmail),
		CustomerID:          input.CustomerID,
		Currency:            strings.ToUpper(input.Currency),
		Status:              enums.OrderStatusPending,
		FranchiseLocationID: input.FranchiseLocationID,
		DeliveryInfo:        input.DeliveryInfo,
		CreatedBy:           input.Actor.String(),
	}
	total := decimal.Zero
	for i, line := range input.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			Position:    i,
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			ProductName: line.ProductName,
			UnitPrice:   line.UnitPrice,
			UnitCost:    line.UnitCost,
			Quantity:    line.Quantity,
		})
	}
	order.Total = total

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, pkgerrors.Persistence(err, "create order")
	}
	return order, nil
}

func validateCreate(input CreateInput) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(input.CustomerEmail)); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is invalid").
			WithDetails(map[string]any{"field": "customer_email"})
	}
	if len(input.Currency) != 3 {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3 letter code").
			WithDetails(map[string]any{"field": "currency"})
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	if err := input.Actor.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "actor is invalid")
	}
	for i, line := range input.Lines {
		if line.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"line": i})
		}
		if line.UnitPrice.IsNegative() || line.UnitCost.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price and cost must not be negative").
				WithDetails(map[string]any{"line": i})
		}
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"order_id": id})
	}
	return order, nil
}

// Transition moves the order one step through its lifecycle. The status
// update is a compare-and-swap on the current status and the change event
// is queued in the same transaction.
func (s *service) Transition(ctx context.Context, id uuid.UUID, to enums.OrderStatus, actor audit.Actor) (*models.Order, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": to})
	}
	if err := actor.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "actor is invalid")
	}

	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Persistence(err, "load order")
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"order_id": id})
		}
		from = current.Status
		if !CanTransition(from, to) {
			return illegalTransition(id, from, to)
		}

		at := s.now()
		ok, err := repo.UpdateStatus(ctx, id, from, to, at)
		if err != nil {
			return pkgerrors.Persistence(err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
				WithDetails(map[string]any{"order_id": id, "expected": from})
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   id,
			Actor:         &actor,
			OccurredAt:    at,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   id,
				From:      from,
				To:        to,
				ChangedAt: at,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": id.String(),
		"from":     from,
		"to":       to,
		"actor":    actor.String(),
	})
	s.logg.Info(logCtx, "order status changed")
	return s.Get(ctx, id)
}

func illegalTransition(id uuid.UUID, from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
		WithDetails(map[string]any{"order_id": id, "from": from, "to": to})
}

// MarkStockInconsistent flags an order whose stock commit did not fully
// apply. It never changes the order status.
func (s *service) MarkStockInconsistent(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := s.repo.WithTx(tx).SetStockInconsistent(ctx, id, reason); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"order_id": id})
		}
		return pkgerrors.Persistence(err, "flag order stock inconsistent")
	}
	return nil
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if _, err := pagination.Parse(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "list orders")
	}
	return list, nil
}
