// Package relay moves committed outbox rows onto Pub/Sub.
//
// Each poll claims a batch inside one transaction, publishes the rows in
// creation order and records the outcome of every row before committing.
// Delivery is at-least-once: a crash between publish and commit republishes
// the row, and consumers dedupe on the event_id attribute.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultMaxAttempts    = 10
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultPublishTimeout = 15 * time.Second
)

type store interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type queue interface {
	ClaimBatch(tx *gorm.DB, limit, ceiling int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
}

type deadLetters interface {
	Park(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, ceiling int) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type recorder interface {
	ObservePublished(eventType string, age time.Duration)
	IncFailed(eventType string)
	IncDeadLettered(eventType, reason string)
}

// Publisher sends one message and blocks until the server acknowledges it.
type Publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

// Topics hands out publishers by topic name; nil means the topic is unknown.
type Topics interface {
	Topic(name string) Publisher
	Ping(ctx context.Context) error
}

// Options tune polling and retry behaviour.
type Options struct {
	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	MaxBackoff     time.Duration
	PublishTimeout time.Duration
}

func OptionsFromConfig(cfg config.OutboxConfig) Options {
	return Options{
		BatchSize:      cfg.BatchSize,
		MaxAttempts:    cfg.MaxAttempts,
		PollInterval:   cfg.PollInterval,
		MaxBackoff:     cfg.MaxBackoff,
		PublishTimeout: cfg.PublishTimeout,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.MaxBackoff < o.PollInterval {
		o.MaxBackoff = defaultMaxBackoff
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	return o
}

type Params struct {
	Logger      *logger.Logger
	DB          store
	Queue       queue
	DeadLetters deadLetters
	Resolver    resolver
	Topics      Topics
	Metrics     recorder
	Options     Options
}

type Relay struct {
	logg     *logger.Logger
	db       store
	queue    queue
	dlq      deadLetters
	resolver resolver
	topics   Topics
	metrics  recorder
	opts     Options
	now      func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("relay: logger is required")
	case p.DB == nil:
		return nil, errors.New("relay: database is required")
	case p.Queue == nil:
		return nil, errors.New("relay: outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("relay: dead letter repository is required")
	case p.Resolver == nil:
		return nil, errors.New("relay: event registry is required")
	case p.Topics == nil:
		return nil, errors.New("relay: topics are required")
	}
	return &Relay{
		logg:     p.Logger,
		db:       p.DB,
		queue:    p.Queue,
		dlq:      p.DeadLetters,
		resolver: p.Resolver,
		topics:   p.Topics,
		metrics:  p.Metrics,
		opts:     p.Options.withDefaults(),
		now:      time.Now,
	}, nil
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// another poll; batch errors back off exponentially up to MaxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	if err := r.topics.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub not ready: %w", err)
	}

	backoff := r.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := r.Drain(ctx)
		wait := r.opts.PollInterval
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			if next, stop := backoff.Next(); !stop {
				wait = next
			} else {
				wait = r.opts.MaxBackoff
			}
		case claimed >= r.opts.BatchSize:
			backoff = r.newBackoff()
			continue
		default:
			backoff = r.newBackoff()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Drain claims and settles one batch, returning how many rows it claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.queue.ClaimBatch(tx, r.opts.BatchSize, r.opts.MaxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			if err := r.settle(ctx, tx, event, r.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) newBackoff() retry.Backoff {
	b := retry.NewExponential(r.opts.PollInterval)
	b = retry.WithJitter(r.opts.PollInterval/2, b)
	return retry.WithCappedDuration(r.opts.MaxBackoff, b)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
