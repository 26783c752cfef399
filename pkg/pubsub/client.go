package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

// Requirements lists the Pub/Sub resources a process depends on. They are
// checked at startup and on every Ping; nothing is created on the fly.
type Requirements struct {
	Topics        []string
	Subscriptions []string
}

// PublisherRequirements covers every topic the outbox routes to.
func PublisherRequirements(cfg config.PubSubConfig) Requirements {
	return Requirements{Topics: []string{cfg.ProvisioningTopic, cfg.BillingTopic, cfg.ServersTopic}}
}

// ConsumerRequirements covers the provisioning job subscription.
func ConsumerRequirements(cfg config.PubSubConfig) Requirements {
	return Requirements{Subscriptions: []string{cfg.ProvisioningSubscription}}
}

// Client holds one Pub/Sub v2 connection for the process.
type Client struct {
	client  *pubsub.Client
	project string
	cfg     config.PubSubConfig
	topics  []string
	subs    []string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, req Requirements, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	c := &Client{project: project, cfg: cfg}
	c.topics = c.resolve(req.Topics, c.topicName)
	c.subs = c.resolve(req.Subscriptions, c.subscriptionName)
	if len(c.topics)+len(c.subs) == 0 {
		return nil, errors.New("no pubsub topics or subscriptions required")
	}

	raw, err := pubsub.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c.client = raw
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":       project,
			"topics":        c.topics,
			"subscriptions": c.subs,
		}), "pubsub ready")
	}
	return c, nil
}

// credentials prefers inline JSON, then a key file, then ADC.
func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping confirms every required topic and subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, name := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		if err := describe("topic", name, err); err != nil {
			return err
		}
	}
	for _, name := range c.subs {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		if err := describe("subscription", name, err); err != nil {
			return err
		}
	}
	return nil
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %s does not exist", kind, name)
	default:
		return fmt.Errorf("get %s %s: %w", kind, name, err)
	}
}

// Subscriber returns a handle for name with the configured flow control.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.subscriptionName(name)
	if full == "" {
		return nil
	}
	sub := c.client.Subscriber(full)
	if c.cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstandingMessages
	}
	return sub
}

func (c *Client) ProvisioningSubscriber() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.ProvisioningSubscription)
}

func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.topicName(topic)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) resolve(names []string, full func(string) string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		if n := full(name); n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func (c *Client) topicName(name string) string {
	return c.resourceName("topics", name)
}

func (c *Client) subscriptionName(name string) string {
	return c.resourceName("subscriptions", name)
}

// resourceName expands a short id to projects/<project>/<kind>/<id>; a full
// resource name of the same kind passes through.
func (c *Client) resourceName(kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if c.project == "" {
		return ""
	}
	return "projects/" + c.project + "/" + kind + "/" + n
}
