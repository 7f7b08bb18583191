// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// ErrUndecodable wraps every Resolve failure. Such a row will never
// publish, however often it is retried.
var ErrUndecodable = errors.New("undecodable outbox event")

// Route binds an event type to the aggregate that emits it and the topic
// it is published on.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is a row that passed validation.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

// NewEventRegistry routes order and settlement events to the orders topic
// and procurement events to the procurement topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" || cfg.ProcurementTopic == "" {
		return nil, errors.New("orders and procurement topics are required")
	}
	order := func(t enums.OutboxEventType, newPayload func() any) Route {
		return Route{EventType: t, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, newPayload: newPayload}
	}

	r := &EventRegistry{routes: map[enums.OutboxEventType]Route{}}
	for _, route := range []Route{
		order(enums.EventOrderCreated, func() any { return &payloads.OrderCreatedEvent{} }),
		order(enums.EventOrderStatusChanged, func() any { return &payloads.OrderStatusChangedEvent{} }),
		order(enums.EventOrderStockInconsistent, func() any { return &payloads.OrderStockInconsistentEvent{} }),
		{
			EventType:     enums.EventSettlementTaskDeadLettered,
			AggregateType: enums.AggregateSettlementTask,
			Topic:         cfg.OrdersTopic,
			newPayload:    func() any { return &payloads.SettlementTaskDeadLetteredEvent{} },
		},
		{
			EventType:     enums.EventProcurementItemReceived,
			AggregateType: enums.AggregateProcurementItem,
			Topic:         cfg.ProcurementTopic,
			newPayload:    func() any { return &payloads.ProcurementItemReceivedEvent{} },
		},
	} {
		r.routes[route.EventType] = route
	}
	return r, nil
}

// Topics lists every topic some route publishes to, sorted.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var topics []string
	for _, route := range r.routes {
		if _, ok := seen[route.Topic]; !ok {
			seen[route.Topic] = struct{}{}
			topics = append(topics, route.Topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks the row against its route and decodes the payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	if !ok {
		return nil, undecodable("no route for event type %q", event.EventType)
	}
	if route.AggregateType != event.AggregateType {
		return nil, undecodable("%s belongs to %s aggregates, row says %s", event.EventType, route.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, undecodable("%s row has no aggregate id", event.EventType)
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, undecodable("%s: %v", event.EventType, err)
	}
	payload := route.newPayload()
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, undecodable("%s data: %v", event.EventType, err)
	}
	return &ResolvedEvent{Route: route, Envelope: env, Payload: payload}, nil
}

func undecodable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUndecodable, fmt.Sprintf(format, args...))
}
