package relay

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeRetry
	outcomeParked
)

type delivery struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	topic   string
	eventID string
	err     error
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return delivery{outcome: outcomeParked, reason: enums.OutboxDLQReasonUndecodable, err: err}
	}

	d := delivery{topic: resolved.Route.Topic, eventID: resolved.Envelope.EventID}
	pub := r.topics.Topic(d.topic)
	if pub == nil {
		d.outcome = outcomeParked
		d.reason = enums.OutboxDLQReasonUnroutable
		d.err = fmt.Errorf("no publisher for topic %q", d.topic)
		return d
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.opts.PublishTimeout)
	defer cancel()
	if _, err := pub.Publish(publishCtx, message(event, resolved)); err != nil {
		d.err = err
		switch {
		case isPermanent(err):
			d.outcome = outcomeParked
			d.reason = enums.OutboxDLQReasonUnroutable
		case event.AttemptCount+1 >= r.opts.MaxAttempts:
			d.outcome = outcomeParked
			d.reason = enums.OutboxDLQReasonMaxAttempts
			d.err = fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err)
		default:
			d.outcome = outcomeRetry
		}
		return d
	}
	d.outcome = outcomeDelivered
	return d
}

// message keys every event of an aggregate onto one ordering key so
// subscribers see an order's transitions in commit order.
func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.PartitionKey(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func isPermanent(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		return true
	}
	return false
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d delivery) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"event_id":       d.eventID,
		"topic":          d.topic,
	})
	eventType := string(event.EventType)

	switch d.outcome {
	case outcomeDelivered:
		now := r.now()
		if err := r.queue.MarkPublished(tx, event.ID, now); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		if r.metrics != nil {
			r.metrics.ObservePublished(eventType, now.Sub(event.CreatedAt))
		}
		r.logg.Info(ctx, "outbox event published")
	case outcomeRetry:
		if err := r.queue.RecordFailure(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("record %s failure: %w", event.ID, err)
		}
		if r.metrics != nil {
			r.metrics.IncFailed(eventType)
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", d.err.Error()), "outbox publish failed, will retry")
	case outcomeParked:
		if err := r.dlq.Park(tx, event, d.reason, d.err, r.opts.MaxAttempts); err != nil {
			return fmt.Errorf("park %s: %w", event.ID, err)
		}
		if r.metrics != nil {
			r.metrics.IncDeadLettered(eventType, string(d.reason))
		}
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"error":        d.err.Error(),
			"error_reason": d.reason,
		}), "outbox event dead-lettered")
	}
	return nil
}
