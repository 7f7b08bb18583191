package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const defaultFollowUpConcurrency = 4

const (
	outcomeRejected           = "rejected"
	outcomeStockInconsistent  = "stock_inconsistent"
	outcomeSettled            = "settled"
	outcomeBookkeepingPending = "bookkeeping_pending"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockReserver interface {
	CheckAndReserve(ctx context.Context, items []stock.Item, locationID *uuid.UUID) (*stock.ReservationPlan, error)
	Commit(ctx context.Context, plan *stock.ReservationPlan, orderID uuid.UUID, actor audit.Actor) stock.CommitResult
}

type orderWriter interface {
	CreatePending(ctx context.Context, tx *gorm.DB, input orders.CreateInput) (*models.Order, error)
	MarkStockInconsistent(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) error
}

type outcomeRecorder interface {
	IncOutcome(outcome string)
}

type noopOutcomes struct{}

func (noopOutcomes) IncOutcome(string) {}

// Result is returned to the caller once the order and its stock are durable.
type Result struct {
	OrderID            uuid.UUID         `json:"order_id"`
	Status             enums.OrderStatus `json:"status"`
	BookkeepingPending bool              `json:"bookkeeping_pending"`
	FollowUps          []TaskResult      `json:"-"`
}

// TaskResult is the inline outcome of one follow-up task.
type TaskResult struct {
	TaskID  uuid.UUID
	Kind    enums.SettlementTaskKind
	Outcome Outcome
	Err     error
}

// Service settles carts into orders.
type Service interface {
	Settle(ctx context.Context, req Request, actor audit.Actor) (*Result, error)
}

// ServiceParams wires the settlement orchestrator.
type ServiceParams struct {
	Tx                  txRunner
	Stock               stockReserver
	Orders              orderWriter
	Tasks               TaskRepository
	Outbox              outboxPublisher
	Runner              FollowUpRunner
	Metrics             outcomeRecorder
	Logger              *logger.Logger
	FollowUpConcurrency int
	Currency            string
}

type service struct {
	tx          txRunner
	stock       stockReserver
	orders      orderWriter
	tasks       TaskRepository
	outbox      outboxPublisher
	runner      FollowUpRunner
	metrics     outcomeRecorder
	logg        *logger.Logger
	concurrency int
	currency    string
}

// NewService builds the settlement orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock service required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Tasks == nil:
		return nil, fmt.Errorf("task repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Runner == nil:
		return nil, fmt.Errorf("follow-up runner required")
	}
	s := &service{
		tx:          params.Tx,
		stock:       params.Stock,
		orders:      params.Orders,
		tasks:       params.Tasks,
		outbox:      params.Outbox,
		runner:      params.Runner,
		metrics:     params.Metrics,
		logg:        params.Logger,
		concurrency: params.FollowUpConcurrency,
		currency:    strings.ToUpper(strings.TrimSpace(params.Currency)),
	}
	if s.metrics == nil {
		s.metrics = noopOutcomes{}
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultFollowUpConcurrency
	}
	if s.currency == "" {
		s.currency = "ZAR"
	}
	return s, nil
}

// Settle validates the cart, reserves stock, persists the order and its
// follow-up tasks, commits stock, then runs the follow-ups. Inventory errors
// surface before any order exists; follow-up errors never fail the call.
func (s *service) Settle(ctx context.Context, req Request, actor audit.Actor) (*Result, error) {
	if actor.IsZero() {
		actor = customerActor(req)
	}
	if err := actor.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "actor is invalid")
	}
	if err := req.Validate(); err != nil {
		s.metrics.IncOutcome(outcomeRejected)
		return nil, err
	}
	ctx = s.logg.WithActor(ctx, actor.String())

	items := make([]stock.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = stock.Item{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity}
	}
	plan, err := s.stock.CheckAndReserve(ctx, items, req.FranchiseLocationID)
	if err != nil {
		s.metrics.IncOutcome(outcomeRejected)
		return nil, err
	}

	order, tasks, err := s.createOrder(ctx, req, plan, actor)
	if err != nil {
		s.metrics.IncOutcome(outcomeRejected)
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	commit := s.stock.Commit(ctx, plan, order.ID, actor)
	if !commit.OK() {
		s.flagInconsistent(ctx, order.ID, commit, actor)
		s.metrics.IncOutcome(outcomeStockInconsistent)
		return nil, withOrderID(commit.Err(), order.ID)
	}

	followUps := s.runFollowUps(context.WithoutCancel(ctx), tasks)
	result := &Result{OrderID: order.ID, Status: order.Status, FollowUps: followUps}
	for _, f := range followUps {
		if f.Outcome.Pending() {
			result.BookkeepingPending = true
		}
	}

	outcome := outcomeSettled
	if result.BookkeepingPending {
		outcome = outcomeBookkeepingPending
	}
	s.metrics.IncOutcome(outcome)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"line_items":          len(order.LineItems),
		"total":               order.Total.String(),
		"stock_retries":       commit.Retries,
		"bookkeeping_pending": result.BookkeepingPending,
	})
	s.logg.Info(logCtx, "order settled")
	return result, nil
}

func customerActor(req Request) audit.Actor {
	if req.CustomerID != nil {
		return audit.Customer(req.CustomerID.String())
	}
	return audit.Customer(strings.ToLower(strings.TrimSpace(req.CustomerEmail)))
}

// createOrder writes the order, its line items, one ledger task, one
// procurement task per line and the order_created event atomically.
func (s *service) createOrder(ctx context.Context, req Request, plan *stock.ReservationPlan, actor audit.Actor) (*models.Order, []models.SettlementTask, error) {
	input := orders.CreateInput{
		CustomerEmail:       req.CustomerEmail,
		CustomerID:          req.CustomerID,
		Currency:            s.currency,
		FranchiseLocationID: req.FranchiseLocationID,
		DeliveryInfo:        req.DeliveryInfo,
		Actor:               actor,
	}
	for _, line := range plan.Lines {
		item := req.Items[line.Index]
		input.Lines = append(input.Lines, orders.LineInput{
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: line.ProductName,
			UnitPrice:   item.UnitPrice(),
			UnitCost:    item.UnitCost(),
			Quantity:    item.Quantity,
		})
	}

	var (
		order *models.Order
		tasks []models.SettlementTask
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.orders.CreatePending(ctx, tx, input)
		if err != nil {
			return err
		}

		tasks = []models.SettlementTask{{OrderID: order.ID, Kind: enums.SettlementTaskFinancialLedger}}
		for i := range order.LineItems {
			lineID := order.LineItems[i].ID
			tasks = append(tasks, models.SettlementTask{
				OrderID:    order.ID,
				Kind:       enums.SettlementTaskProcurement,
				LineItemID: &lineID,
			})
		}
		if err := s.tasks.WithTx(tx).CreateMany(ctx, tasks); err != nil {
			return pkgerrors.Persistence(err, "create settlement tasks")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &actor,
			Data: payloads.OrderCreatedEvent{
				OrderID:             order.ID,
				CustomerEmail:       order.CustomerEmail,
				Total:               order.Total,
				Currency:            order.Currency,
				FranchiseLocationID: order.FranchiseLocationID,
				LineItemCount:       len(order.LineItems),
			},
		})
	})
	if err != nil {
		return nil, nil, pkgerrors.Persistence(err, "create order")
	}
	return order, tasks, nil
}

// flagInconsistent records a partial stock commit for manual review. The
// order keeps its status; its follow-ups are cancelled.
func (s *service) flagInconsistent(ctx context.Context, orderID uuid.UUID, commit stock.CommitResult, actor audit.Actor) {
	reason := commit.Err().Error()
	event := payloads.OrderStockInconsistentEvent{OrderID: orderID, Reason: reason}
	for _, failed := range commit.Failed {
		code, available := failureDetails(failed.Err)
		event.FailedEntries = append(event.FailedEntries, payloads.StockFailure{
			StockPoolRef: poolRef(failed.Entry.Key),
			Code:         code,
			Available:    available,
			Requested:    failed.Entry.Requested,
		})
	}
	for _, entry := range commit.Committed {
		event.Committed = append(event.Committed, poolRef(entry.Key))
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.MarkStockInconsistent(ctx, tx, orderID, reason); err != nil {
			return err
		}
		if _, err := s.tasks.WithTx(tx).CancelOpen(ctx, orderID); err != nil {
			return pkgerrors.Persistence(err, "cancel settlement tasks")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStockInconsistent,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &actor,
			Data:          event,
		})
	})
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"failed_entries":    len(commit.Failed),
		"committed_entries": len(commit.Committed),
	})
	if err != nil {
		s.logg.Error(logCtx, "flag order stock inconsistent", err)
		return
	}
	s.logg.Warn(logCtx, "order flagged stock inconsistent")
}

func poolRef(key stock.PoolKey) payloads.StockPoolRef {
	return payloads.StockPoolRef{ProductID: key.ProductID, VariantID: key.VariantID, LocationID: key.LocationID}
}

func failureDetails(err error) (string, int) {
	typed := pkgerrors.As(err)
	if typed == nil {
		return string(pkgerrors.CodeInternal), 0
	}
	available := 0
	if details, ok := typed.Details().(map[string]any); ok {
		if v, ok := details["available"].(int); ok {
			available = v
		}
	}
	return string(typed.Code()), available
}

// withOrderID copies err's code and details, adding the flagged order.
func withOrderID(err error, orderID uuid.UUID) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Wrap(pkgerrors.CodeStockConflict, err, "stock commit failed").
			WithDetails(map[string]any{"order_id": orderID})
	}
	details := map[string]any{}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	details["order_id"] = orderID
	return pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(details)
}

// runFollowUps runs every task concurrently up to the configured limit.
// Failures are already recorded on the task rows, so they are collected
// rather than returned through the group.
func (s *service) runFollowUps(ctx context.Context, tasks []models.SettlementTask) []TaskResult {
	results := make([]TaskResult, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			outcome, err := s.runner.RunFollowUp(gctx, task)
			results[i] = TaskResult{TaskID: task.ID, Kind: task.Kind, Outcome: outcome, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
