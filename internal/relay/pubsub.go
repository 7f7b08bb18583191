package relay

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type pubsubClient interface {
	Publisher(name string) *gcppubsub.Publisher
	Ping(ctx context.Context) error
}

// PubSubTopics caches one ordered publisher per topic.
type PubSubTopics struct {
	client pubsubClient

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func NewPubSubTopics(client pubsubClient) *PubSubTopics {
	return &PubSubTopics{client: client, publishers: map[string]*gcppubsub.Publisher{}}
}

func (t *PubSubTopics) Topic(name string) Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.publishers[name]; ok {
		return orderedPublisher{p}
	}
	p := t.client.Publisher(name)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	t.publishers[name] = p
	return orderedPublisher{p}
}

func (t *PubSubTopics) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

// Stop flushes buffered messages of every cached publisher.
func (t *PubSubTopics) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, p := range t.publishers {
		p.Stop()
		delete(t.publishers, name)
	}
}

type orderedPublisher struct {
	p *gcppubsub.Publisher
}

// Publish resumes the ordering key after a failure; Pub/Sub pauses a key
// on error and rejects later messages for it until resumed.
func (o orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	id, err := o.p.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		o.p.ResumePublish(msg.OrderingKey)
	}
	return id, err
}
