package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// ConsumerName scopes the dedupe claims of the warehouse export.
const ConsumerName = "analytics"

type rowWriter interface {
	Insert(ctx context.Context, row SettlementEventRow) error
	Flush(ctx context.Context) error
}

type claimTracker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Forget(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// WorkerParams wires the warehouse export worker.
type WorkerParams struct {
	Subscription subscriber
	Writer       rowWriter
	Tracker      claimTracker
	Logger       *logger.Logger
}

// Worker copies settlement outbox events from Pub/Sub into BigQuery.
type Worker struct {
	subscription subscriber
	writer       rowWriter
	tracker      claimTracker
	logg         *logger.Logger
}

func NewWorker(params WorkerParams) (*Worker, error) {
	switch {
	case params.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case params.Writer == nil:
		return nil, errors.New("analytics writer is required")
	case params.Tracker == nil:
		return nil, errors.New("dedupe tracker is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Worker{
		subscription: params.Subscription,
		writer:       params.Writer,
		tracker:      params.Tracker,
		logg:         params.Logger,
	}, nil
}

// Run receives until ctx is canceled, then flushes any buffered rows.
func (w *Worker) Run(ctx context.Context) error {
	err := w.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if w.process(msgCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if flushErr := w.writer.Flush(flushCtx); flushErr != nil {
		w.logg.Error(ctx, "failed to flush analytics rows on shutdown", flushErr)
	}
	return err
}

// process reports whether the message should be acked. Malformed and
// unsupported events are acked so they do not redeliver forever.
func (w *Worker) process(ctx context.Context, msg *gcppubsub.Message) bool {
	ctx = w.logg.WithField(ctx, "message_id", msg.ID)

	env, err := decodeMessage(msg)
	if err != nil {
		w.logg.Warn(w.logg.WithField(ctx, "error", err.Error()), "invalid analytics envelope")
		return true
	}
	ctx = w.logg.WithFields(ctx, map[string]any{
		"event_id":       env.EventID.String(),
		"event_type":     env.EventType,
		"aggregate_type": env.AggregateType,
		"aggregate_id":   env.AggregateID,
	})

	row, err := BuildRow(*env)
	if err != nil {
		w.logg.Warn(w.logg.WithField(ctx, "error", err.Error()), "analytics event skipped")
		return true
	}

	first, err := w.tracker.Claim(ctx, ConsumerName, env.EventID)
	if err != nil {
		w.logg.Error(ctx, "dedupe claim failed", err)
		return false
	}
	if !first {
		w.logg.Info(ctx, "event already exported")
		return true
	}

	if err := w.writer.Insert(ctx, *row); err != nil {
		w.logg.Error(ctx, "failed to export analytics row", err)
		if forgetErr := w.tracker.Forget(ctx, ConsumerName, env.EventID); forgetErr != nil {
			w.logg.Error(ctx, "failed to release dedupe claim", forgetErr)
		}
		return false
	}
	w.logg.Info(ctx, "analytics event exported")
	return true
}

func decodeMessage(msg *gcppubsub.Message) (*Envelope, error) {
	var stored outbox.Envelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(msg.Attributes["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("event_id: %w", err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(msg.Attributes["created_at"])); err == nil {
			occurredAt = parsed
		}
	}

	return &Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Actor:         stored.Actor,
		Payload:       stored.Data,
	}, nil
}
