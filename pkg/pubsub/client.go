// Package pubsub wraps the Pub/Sub v2 client. Each process states which
// topics and subscriptions it depends on; they are verified at startup and
// again on every Ping.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Resources lists what a process publishes to or pulls from. Names may be
// short ids or full resource names.
type Resources struct {
	Topics        []string
	Subscriptions []string
}

type Client struct {
	ps      *gcppubsub.Client
	project string
	topics  []string
	subs    []string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, res Resources, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	c := &Client{project: project}
	c.topics = c.qualify("topics", res.Topics)
	c.subs = c.qualify("subscriptions", res.Subscriptions)
	if len(c.topics) == 0 && len(c.subs) == 0 {
		return nil, errors.New("no pubsub topics or subscriptions requested")
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	ps, err := gcppubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c.ps = ps

	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":        c.topics,
			"subscriptions": c.subs,
		}), "pubsub client ready")
	}
	return c, nil
}

// Ping confirms every requested resource still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, topic := range c.topics {
		_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
		if err := describe("topic", topic, err); err != nil {
			return err
		}
	}
	for _, sub := range c.subs {
		_, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub})
		if err := describe("subscription", sub, err); err != nil {
			return err
		}
	}
	return nil
}

// Publisher returns a handle for topic, or nil when the name is blank.
func (c *Client) Publisher(topic string) *gcppubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	name := resourceName(c.project, "topics", topic)
	if name == "" {
		return nil
	}
	return c.ps.Publisher(name)
}

// Subscriber returns a handle for subscription, or nil when the name is blank.
func (c *Client) Subscriber(subscription string) *gcppubsub.Subscriber {
	if c == nil || c.ps == nil {
		return nil
	}
	name := resourceName(c.project, "subscriptions", subscription)
	if name == "" {
		return nil
	}
	return c.ps.Subscriber(name)
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

func (c *Client) qualify(kind string, names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		full := resourceName(c.project, kind, n)
		if full == "" || seen[full] {
			continue
		}
		seen[full] = true
		out = append(out, full)
	}
	return out
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Full
// names pass through unchanged.
func resourceName(project, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	return "projects/" + project + "/" + kind + "/" + name
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %s does not exist", kind, name)
	default:
		return fmt.Errorf("check %s %s: %w", kind, name, err)
	}
}
