package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type fakeStore struct {
	pingErr error
	txErr   error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return fn(nil)
}

type fakeQueue struct {
	events    []models.OutboxEvent
	claimErr  error
	ceilings  []int
	published []uuid.UUID
	failed    map[uuid.UUID]error
}

func (f *fakeQueue) ClaimBatch(_ *gorm.DB, limit, ceiling int) ([]models.OutboxEvent, error) {
	f.ceilings = append(f.ceilings, ceiling)
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	batch := f.events
	if len(batch) > limit {
		batch = batch[:limit]
	}
	f.events = f.events[len(batch):]
	return batch, nil
}

func (f *fakeQueue) MarkPublished(_ *gorm.DB, id uuid.UUID, _ time.Time) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeQueue) RecordFailure(_ *gorm.DB, id uuid.UUID, cause error) error {
	if f.failed == nil {
		f.failed = map[uuid.UUID]error{}
	}
	f.failed[id] = cause
	return nil
}

type parked struct {
	id      uuid.UUID
	reason  enums.OutboxDLQErrorReason
	ceiling int
}

type fakeDeadLetters struct {
	parked []parked
}

func (f *fakeDeadLetters) Park(_ *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, _ error, ceiling int) error {
	f.parked = append(f.parked, parked{id: event.ID, reason: reason, ceiling: ceiling})
	return nil
}

type fakePublisher struct {
	errs []error
	sent []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) (string, error) {
	f.sent = append(f.sent, msg)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "srv-" + msg.Attributes["event_id"], nil
}

type fakeTopics struct {
	publishers map[string]*fakePublisher
	pingErr    error
}

func (f *fakeTopics) Topic(name string) Publisher {
	if p, ok := f.publishers[name]; ok {
		return p
	}
	return nil
}

func (f *fakeTopics) Ping(context.Context) error { return f.pingErr }

type fakeRecorder struct {
	published    map[string]int
	failed       map[string]int
	deadLettered map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{published: map[string]int{}, failed: map[string]int{}, deadLettered: map[string]int{}}
}

func (f *fakeRecorder) ObservePublished(eventType string, _ time.Duration) { f.published[eventType]++ }
func (f *fakeRecorder) IncFailed(eventType string)                         { f.failed[eventType]++ }
func (f *fakeRecorder) IncDeadLettered(_, reason string)                   { f.deadLettered[reason]++ }

type fixture struct {
	relay   *Relay
	queue   *fakeQueue
	dlq     *fakeDeadLetters
	orders  *fakePublisher
	topics  *fakeTopics
	metrics *fakeRecorder
}

func newFixture(t *testing.T, events ...models.OutboxEvent) fixture {
	t.Helper()
	eventRegistry, err := registry.NewEventRegistry(config.PubSubConfig{
		OrdersTopic:      "orders",
		ProcurementTopic: "procurement",
	})
	require.NoError(t, err)

	f := fixture{
		queue:   &fakeQueue{events: events},
		dlq:     &fakeDeadLetters{},
		orders:  &fakePublisher{},
		metrics: newFakeRecorder(),
	}
	f.topics = &fakeTopics{publishers: map[string]*fakePublisher{"orders": f.orders}}
	f.relay, err = New(Params{
		Logger:      logger.Nop(),
		DB:          &fakeStore{},
		Queue:       f.queue,
		DeadLetters: f.dlq,
		Resolver:    eventRegistry,
		Topics:      f.topics,
		Metrics:     f.metrics,
		Options:     Options{BatchSize: 10, MaxAttempts: 3, PollInterval: time.Millisecond},
	})
	require.NoError(t, err)
	return f
}

func orderCreated(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderCreatedEvent{OrderID: orderID, CustomerEmail: "buyer@example.com", Currency: "ZAR"})
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       payload,
		CreatedAt:     time.Now().Add(-time.Second),
		AttemptCount:  attempts,
	}
}

func TestDrainPublishesWithOrderingKeyAndAttributes(t *testing.T) {
	event := orderCreated(t, 0)
	f := newFixture(t, event)

	claimed, err := f.relay.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, claimed)
	assert.Equal(t, []uuid.UUID{event.ID}, f.queue.published)
	assert.Equal(t, []int{3}, f.queue.ceilings)
	require.Len(t, f.orders.sent, 1)
	msg := f.orders.sent[0]
	assert.Equal(t, event.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, "order_created", msg.Attributes["event_type"])
	assert.Equal(t, "order", msg.Attributes["aggregate_type"])
	assert.NotEmpty(t, msg.Attributes["event_id"])
	assert.JSONEq(t, string(event.Payload), string(msg.Data))
	assert.Equal(t, 1, f.metrics.published["order_created"])
}

func TestDrainRecordsTransientFailureAndContinues(t *testing.T) {
	first := orderCreated(t, 0)
	second := orderCreated(t, 0)
	f := newFixture(t, first, second)
	f.orders.errs = []error{status.Error(codes.Unavailable, "try later"), nil}

	_, err := f.relay.Drain(context.Background())
	require.NoError(t, err)

	require.Contains(t, f.queue.failed, first.ID)
	assert.Equal(t, []uuid.UUID{second.ID}, f.queue.published)
	assert.Empty(t, f.dlq.parked)
	assert.Equal(t, 1, f.metrics.failed["order_created"])
}

func TestDrainParksAtAttemptCeiling(t *testing.T) {
	event := orderCreated(t, 2)
	f := newFixture(t, event)
	f.orders.errs = []error{errors.New("deadline exceeded")}

	_, err := f.relay.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []parked{{id: event.ID, reason: enums.OutboxDLQReasonMaxAttempts, ceiling: 3}}, f.dlq.parked)
	assert.Empty(t, f.queue.failed)
	assert.Equal(t, 1, f.metrics.deadLettered["max_attempts"])
}

func TestDrainParksPermanentPublishErrors(t *testing.T) {
	event := orderCreated(t, 0)
	f := newFixture(t, event)
	f.orders.errs = []error{status.Error(codes.InvalidArgument, "message too large")}

	_, err := f.relay.Drain(context.Background())
	require.NoError(t, err)

	require.Len(t, f.dlq.parked, 1)
	assert.Equal(t, enums.OutboxDLQReasonUnroutable, f.dlq.parked[0].reason)
}

func TestDrainParksUndecodableRows(t *testing.T) {
	broken := orderCreated(t, 0)
	broken.Payload = []byte(`{"version":1,"data":null}`)
	mismatched := orderCreated(t, 0)
	mismatched.AggregateType = enums.AggregateProcurementItem
	f := newFixture(t, broken, mismatched)

	_, err := f.relay.Drain(context.Background())
	require.NoError(t, err)

	require.Len(t, f.dlq.parked, 2)
	for _, p := range f.dlq.parked {
		assert.Equal(t, enums.OutboxDLQReasonUndecodable, p.reason)
	}
	assert.Empty(t, f.orders.sent)
}

func TestDrainParksRowsWithoutPublisher(t *testing.T) {
	event := orderCreated(t, 0)
	f := newFixture(t, event)
	delete(f.topics.publishers, "orders")

	_, err := f.relay.Drain(context.Background())
	require.NoError(t, err)

	require.Len(t, f.dlq.parked, 1)
	assert.Equal(t, enums.OutboxDLQReasonUnroutable, f.dlq.parked[0].reason)
}

func TestDrainSurfacesClaimErrors(t *testing.T) {
	f := newFixture(t)
	f.queue.claimErr = errors.New("connection reset")

	_, err := f.relay.Drain(context.Background())
	assert.ErrorContains(t, err, "claim outbox batch")
}

func TestRunChecksReadinessAndStopsOnCancel(t *testing.T) {
	f := newFixture(t, orderCreated(t, 0))

	f.topics.pingErr = errors.New("no credentials")
	assert.ErrorContains(t, f.relay.Run(context.Background()), "pubsub not ready")
	f.topics.pingErr = nil

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.relay.Run(ctx), context.DeadlineExceeded)
	assert.Len(t, f.queue.published, 1)
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	opts := OptionsFromConfig(config.OutboxConfig{})
	assert.Equal(t, Options{
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		PollInterval:   defaultPollInterval,
		MaxBackoff:     defaultMaxBackoff,
		PublishTimeout: defaultPublishTimeout,
	}, opts)

	opts = OptionsFromConfig(config.OutboxConfig{BatchSize: 5, PollInterval: time.Second, MaxBackoff: 30 * time.Second})
	assert.Equal(t, 5, opts.BatchSize)
	assert.Equal(t, 30*time.Second, opts.MaxBackoff)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.Error(t, err)
	_, err = New(Params{Logger: logger.Nop(), DB: &fakeStore{}})
	assert.ErrorContains(t, err, "outbox repository")
}

type nilPublisherClient struct{}

func (nilPublisherClient) Publisher(string) *gcppubsub.Publisher { return nil }
func (nilPublisherClient) Ping(context.Context) error { return nil }

func TestPubSubTopicsUnknownTopic(t *testing.T) {
	topics := NewPubSubTopics(nilPublisherClient{})
	assert.Nil(t, topics.Topic("missing"))
	assert.NoError(t, topics.Ping(context.Background()))
	topics.Stop()
}
