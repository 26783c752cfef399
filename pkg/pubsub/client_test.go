package pubsub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{project: "proj-1"}

	if got := c.subscriptionName("provisioning-sub"); got != "projects/proj-1/subscriptions/provisioning-sub" {
		t.Fatalf("unexpected subscription name %q", got)
	}
	if got := c.subscriptionName("projects/other/subscriptions/x"); got != "projects/other/subscriptions/x" {
		t.Fatalf("full names should pass through, got %q", got)
	}
	if got := c.topicName("projects/other/subscriptions/x"); got != "projects/proj-1/topics/projects/other/subscriptions/x" {
		t.Fatalf("a subscription path is not a topic path, got %q", got)
	}
	if got := c.topicName(" gh-billing-events "); got != "projects/proj-1/topics/gh-billing-events" {
		t.Fatalf("unexpected topic name %q", got)
	}
	if got := c.topicName(""); got != "" {
		t.Fatalf("expected empty topic name, got %q", got)
	}
}

func TestRequirementsResolveAndDedupe(t *testing.T) {
	cfg := config.PubSubConfig{
		ProvisioningTopic:        "gh-provisioning",
		ProvisioningSubscription: "gh-provisioning-worker",
		BillingTopic:             "gh-events",
		ServersTopic:             "gh-events",
	}
	c := &Client{project: "proj-1"}

	topics := c.resolve(PublisherRequirements(cfg).Topics, c.topicName)
	if len(topics) != 2 {
		t.Fatalf("expected shared topic to collapse, got %v", topics)
	}
	subs := c.resolve(ConsumerRequirements(cfg).Subscriptions, c.subscriptionName)
	if len(subs) != 1 || subs[0] != "projects/proj-1/subscriptions/gh-provisioning-worker" {
		t.Fatalf("unexpected subscriptions %v", subs)
	}
	if blank := c.resolve([]string{" ", ""}, c.topicName); len(blank) != 0 {
		t.Fatalf("blank names should be skipped, got %v", blank)
	}
}

func TestNewClientValidatesInputs(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, Requirements{}, nil); err == nil {
		t.Fatalf("expected project id error")
	}
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, Requirements{Topics: []string{" "}}, nil)
	if err == nil || !strings.Contains(err.Error(), "no pubsub") {
		t.Fatalf("expected empty requirements error, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	if err := describe("topic", "t", nil); err != nil {
		t.Fatalf("nil should pass, got %v", err)
	}
	if err := describe("topic", "t", status.Error(codes.NotFound, "gone")); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing resource error, got %v", err)
	}
	cause := errors.New("deadline")
	if err := describe("subscription", "s", cause); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestCredentials(t *testing.T) {
	if opts := credentials(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	if opts := credentials(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/x"}); len(opts) != 1 {
		t.Fatalf("expected one credentials option")
	}
	if opts := credentials(config.GCPConfig{ApplicationCredentials: "/secrets/sa.json"}); len(opts) != 1 {
		t.Fatalf("expected credentials file option")
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Subscriber("x") != nil || c.Publisher("x") != nil {
		t.Fatalf("nil client should return nil handles")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("nil ping should fail")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close should succeed: %v", err)
	}
}
