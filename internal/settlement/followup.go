package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/procurement"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	defaultFollowUpMaxAttempts = 8
	defaultFollowUpBackoff     = 30 * time.Second
	maxFollowUpBackoff         = 6 * time.Hour
)

// Outcome is what one follow-up run did to its task.
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
	OutcomeDead       Outcome = "dead"
	OutcomeSuperseded Outcome = "superseded"
)

// Pending reports whether the task still needs bookkeeping attention.
func (o Outcome) Pending() bool {
	return o == OutcomeFailed || o == OutcomeDead
}

var errClaimLost = errors.New("settlement task claimed elsewhere")

// FollowUpRunner executes post-commit tasks. The inline settlement path and
// the reconciliation job share it.
type FollowUpRunner interface {
	RunFollowUp(ctx context.Context, task models.SettlementTask) (Outcome, error)
	DeadLetter(ctx context.Context, task models.SettlementTask, reason string) error
}

type orderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type ledgerWriter interface {
	ComputeAndRecord(ctx context.Context, tx *gorm.DB, order *models.Order, cfg ledger.TaxConfig) (*models.FinancialTransaction, error)
}

type demandQueue interface {
	EnqueueDemand(ctx context.Context, tx *gorm.DB, demand procurement.Demand) (*models.ProcurementQueueItem, error)
	ResolveLocation(ctx context.Context, product *models.Product) (*uuid.UUID, error)
}

type productReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type followUpRecorder interface {
	IncFollowUp(kind, outcome string)
}

type noopFollowUps struct{}

func (noopFollowUps) IncFollowUp(string, string) {}

// RunnerParams wires the follow-up runner.
type RunnerParams struct {
	Tasks       TaskRepository
	Tx          txRunner
	Orders      orderReader
	Ledger      ledgerWriter
	Rates       ledger.TaxConfigProvider
	Catalog     productReader
	Procurement demandQueue
	Outbox      outboxPublisher
	Metrics     followUpRecorder
	Logger      *logger.Logger
	MaxAttempts int
	BaseBackoff time.Duration
}

type runner struct {
	tasks       TaskRepository
	tx          txRunner
	orders      orderReader
	ledger      ledgerWriter
	rates       ledger.TaxConfigProvider
	catalog     productReader
	procurement demandQueue
	outbox      outboxPublisher
	metrics     followUpRecorder
	logg        *logger.Logger
	maxAttempts int
	backoff     time.Duration
	actor       audit.Actor
	now         func() time.Time
}

// NewFollowUpRunner builds the shared follow-up runner.
func NewFollowUpRunner(params RunnerParams) (FollowUpRunner, error) {
	switch {
	case params.Tasks == nil:
		return nil, fmt.Errorf("task repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Ledger == nil || params.Rates == nil:
		return nil, fmt.Errorf("ledger service and tax rates required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog required")
	case params.Procurement == nil:
		return nil, fmt.Errorf("procurement service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	r := &runner{
		tasks:       params.Tasks,
		tx:          params.Tx,
		orders:      params.Orders,
		ledger:      params.Ledger,
		rates:       params.Rates,
		catalog:     params.Catalog,
		procurement: params.Procurement,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		maxAttempts: params.MaxAttempts,
		backoff:     params.BaseBackoff,
		actor:       audit.Service("settlement"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	if r.metrics == nil {
		r.metrics = noopFollowUps{}
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultFollowUpMaxAttempts
	}
	if r.backoff <= 0 {
		r.backoff = defaultFollowUpBackoff
	}
	return r, nil
}

// effect performs a task's side effect inside the claiming transaction and
// returns the terminal status plus an optional note.
type effect func(tx *gorm.DB) (enums.SettlementTaskStatus, *string, error)

// RunFollowUp claims the task with a compare-and-swap on its attempt count
// and applies its side effect in the same transaction, so a task that two
// runners race for is applied once.
func (r *runner) RunFollowUp(ctx context.Context, task models.SettlementTask) (Outcome, error) {
	if !task.Status.IsRunnable() {
		return OutcomeSuperseded, nil
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"task_id":  task.ID.String(),
		"order_id": task.OrderID.String(),
		"kind":     task.Kind,
		"attempt":  task.Attempts + 1,
	})

	apply, err := r.prepare(ctx, task)
	if err != nil {
		return r.fail(logCtx, task, err)
	}

	var status enums.SettlementTaskStatus
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tasks := r.tasks.WithTx(tx)
		claimed, err := tasks.Claim(ctx, task.ID, task.Attempts)
		if err != nil {
			return pkgerrors.Persistence(err, "claim settlement task")
		}
		if !claimed {
			return errClaimLost
		}
		var note *string
		status, note, err = apply(tx)
		if err != nil {
			return err
		}
		if err := tasks.Complete(ctx, task.ID, status, note); err != nil {
			return pkgerrors.Persistence(err, "complete settlement task")
		}
		return nil
	})
	switch {
	case errors.Is(err, errClaimLost):
		r.metrics.IncFollowUp(string(task.Kind), string(OutcomeSuperseded))
		return OutcomeSuperseded, nil
	case err != nil:
		return r.fail(logCtx, task, err)
	}

	outcome := OutcomeSucceeded
	if status == enums.SettlementTaskSkipped {
		outcome = OutcomeSkipped
	}
	r.metrics.IncFollowUp(string(task.Kind), string(outcome))
	r.logg.Info(logCtx, "settlement follow-up "+string(outcome))
	return outcome, nil
}

func (r *runner) prepare(ctx context.Context, task models.SettlementTask) (effect, error) {
	order, err := r.orders.Get(ctx, task.OrderID)
	if err != nil {
		return nil, err
	}

	switch task.Kind {
	case enums.SettlementTaskFinancialLedger:
		// Rates are read before the transaction opens so the claim holds a
		// single connection.
		cfg, err := r.rates.GetActive(ctx)
		if err != nil {
			return nil, err
		}
		return func(tx *gorm.DB) (enums.SettlementTaskStatus, *string, error) {
			if _, err := r.ledger.ComputeAndRecord(ctx, tx, order, cfg); err != nil {
				return "", nil, err
			}
			return enums.SettlementTaskSucceeded, nil, nil
		}, nil

	case enums.SettlementTaskProcurement:
		line := lineItem(order, task.LineItemID)
		if line == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order line item not found").
				WithDetails(map[string]any{"order_id": order.ID, "line_item_id": task.LineItemID})
		}
		product, err := r.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		locationID, err := r.procurement.ResolveLocation(ctx, product)
		if err != nil {
			return nil, err
		}
		if locationID == nil {
			return func(*gorm.DB) (enums.SettlementTaskStatus, *string, error) {
				note := "no procurement location resolved"
				r.logg.Warn(r.logg.WithField(ctx, "product_id", line.ProductID.String()), note)
				return enums.SettlementTaskSkipped, &note, nil
			}, nil
		}
		demand := procurement.Demand{
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			LocationID: *locationID,
			Quantity:   line.Quantity,
			OrderID:    &order.ID,
			Actor:      r.actor,
		}
		return func(tx *gorm.DB) (enums.SettlementTaskStatus, *string, error) {
			if _, err := r.procurement.EnqueueDemand(ctx, tx, demand); err != nil {
				return "", nil, err
			}
			return enums.SettlementTaskSucceeded, nil, nil
		}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "unknown settlement task kind").
		WithDetails(map[string]any{"kind": task.Kind})
}

func lineItem(order *models.Order, id *uuid.UUID) *models.OrderLineItem {
	if id == nil {
		return nil
	}
	for i := range order.LineItems {
		if order.LineItems[i].ID == *id {
			return &order.LineItems[i]
		}
	}
	return nil
}

// fail records a failed attempt. Once the attempt budget is spent the task is
// dead-lettered instead of rescheduled.
func (r *runner) fail(ctx context.Context, task models.SettlementTask, cause error) (Outcome, error) {
	attempts := task.Attempts + 1
	if attempts >= r.maxAttempts {
		if err := r.deadLetter(ctx, task, attempts, cause.Error()); err != nil {
			r.logg.Error(ctx, "dead-letter settlement task", err)
		}
		r.metrics.IncFollowUp(string(task.Kind), string(OutcomeDead))
		r.logg.Error(ctx, "settlement follow-up dead-lettered", cause)
		return OutcomeDead, cause
	}

	next := r.now().Add(r.delay(attempts))
	if _, err := r.tasks.MarkFailed(ctx, task.ID, task.Attempts, cause.Error(), next); err != nil {
		r.logg.Error(ctx, "record settlement task failure", err)
	}
	r.metrics.IncFollowUp(string(task.Kind), string(OutcomeFailed))
	r.logg.Error(r.logg.WithFields(ctx, map[string]any{
		"next_attempt_at": next,
		"retryable":       pkgerrors.IsRetryable(cause),
	}), "settlement follow-up failed", cause)
	return OutcomeFailed, cause
}

// delay doubles the base backoff per attempt.
func (r *runner) delay(attempts int) time.Duration {
	d := r.backoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxFollowUpBackoff {
			return maxFollowUpBackoff
		}
	}
	return d
}

// DeadLetter parks a task that will not be retried and announces it.
func (r *runner) DeadLetter(ctx context.Context, task models.SettlementTask, reason string) error {
	return r.deadLetter(ctx, task, task.Attempts, reason)
}

func (r *runner) deadLetter(ctx context.Context, task models.SettlementTask, attempts int, reason string) error {
	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := r.tasks.WithTx(tx).MarkDead(ctx, task.ID, task.Attempts, attempts, reason)
		if err != nil {
			return pkgerrors.Persistence(err, "dead-letter settlement task")
		}
		if !ok {
			return nil
		}
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementTaskDeadLettered,
			AggregateType: enums.AggregateSettlementTask,
			AggregateID:   task.ID,
			Actor:         &r.actor,
			Data: payloads.SettlementTaskDeadLetteredEvent{
				TaskID:     task.ID,
				OrderID:    task.OrderID,
				Kind:       task.Kind,
				LineItemID: task.LineItemID,
				Attempts:   attempts,
				LastError:  reason,
			},
		})
	})
}
