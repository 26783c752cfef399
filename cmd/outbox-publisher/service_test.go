package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/metrics"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/registry"
)

func TestProcessBatchRoutesByTopicAndContinuesAfterFailure(t *testing.T) {
	orderID := uuid.New()
	rows := []models.OutboxEvent{
		provisioningRow(t, orderID),
		invoicePaidRow(t),
	}
	store := &fakeStore{rows: rows}
	pubs := map[string]*fakeTopic{
		"gh-provisioning": {errs: []error{errors.New("unavailable")}},
		"gh-billing":      {},
	}
	h := newHarness(t, store, pubs, 5)

	n, err := h.svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows handled, got %d", n)
	}
	if len(store.failed) != 1 || store.failed[0] != rows[0].ID {
		t.Fatalf("expected provisioning row marked failed, got %v", store.failed)
	}
	if len(store.published) != 1 || store.published[0] != rows[1].ID {
		t.Fatalf("expected invoice row published, got %v", store.published)
	}
	if h.counts[metrics.DispatchRetry] != 1 || h.counts[metrics.DispatchPublished] != 1 {
		t.Fatalf("unexpected dispatch counts: %v", h.counts)
	}

	sent := pubs["gh-billing"].sent
	if len(sent) != 1 {
		t.Fatalf("expected one billing message, got %d", len(sent))
	}
	if sent[0].Attributes["event_type"] != string(enums.EventInvoicePaid) {
		t.Fatalf("unexpected event_type attribute: %q", sent[0].Attributes["event_type"])
	}
	if sent[0].Attributes["event_id"] == "" {
		t.Fatal("expected event_id attribute")
	}
}

func TestProcessBatchParksUnresolvableRows(t *testing.T) {
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventProvisioningRequested,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"event_id":"x","data":{}}`),
	}
	store := &fakeStore{rows: []models.OutboxEvent{row}}
	h := newHarness(t, store, map[string]*fakeTopic{}, 5)

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(h.dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(h.dlq.entries))
	}
	entry := h.dlq.entries[0]
	if entry.EventID != row.ID || entry.ErrorReason != enums.DLQReasonNonRetryable {
		t.Fatalf("unexpected dlq entry: %+v", entry)
	}
	if len(store.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestProcessBatchParksAfterMaxAttempts(t *testing.T) {
	row := provisioningRow(t, uuid.New())
	row.AttemptCount = 2
	store := &fakeStore{rows: []models.OutboxEvent{row}}
	pubs := map[string]*fakeTopic{"gh-provisioning": {errs: []error{errors.New("deadline exceeded")}}}
	h := newHarness(t, store, pubs, 3)

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(h.dlq.entries) != 1 || h.dlq.entries[0].ErrorReason != enums.DLQReasonMaxAttempts {
		t.Fatalf("expected max_attempts dlq entry, got %+v", h.dlq.entries)
	}
	if h.dlq.entries[0].AttemptCount != 3 {
		t.Fatalf("expected attempt count 3, got %d", h.dlq.entries[0].AttemptCount)
	}
	if len(store.failed) != 0 {
		t.Fatal("parked row should not also be marked failed")
	}
}

func TestProcessBatchParksWhenTopicHasNoPublisher(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{invoicePaidRow(t)}}
	h := newHarness(t, store, map[string]*fakeTopic{}, 5)

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(h.dlq.entries) != 1 || h.counts[metrics.DispatchParked] != 1 {
		t.Fatalf("expected row parked, dlq=%d counts=%v", len(h.dlq.entries), h.counts)
	}
}

func TestPublisherIsCachedPerTopic(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{invoicePaidRow(t), invoicePaidRow(t)}}
	pubs := map[string]*fakeTopic{"gh-billing": {}}
	h := newHarness(t, store, pubs, 5)

	if _, err := h.svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if h.factoryCalls != 1 {
		t.Fatalf("expected one publisher lookup, got %d", h.factoryCalls)
	}
}

type harness struct {
	svc          *Service
	dlq          *fakeDLQ
	counts       map[string]int
	factoryCalls int
}

func newHarness(t *testing.T, store *fakeStore, topics map[string]*fakeTopic, maxAttempts int) *harness {
	t.Helper()
	cfg := &config.Config{
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: maxAttempts},
		PubSub: config.PubSubConfig{
			ProvisioningTopic: "gh-provisioning",
			BillingTopic:      "gh-billing",
			ServersTopic:      "gh-servers",
		},
	}
	reg, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		t.Fatalf("NewEventRegistry: %v", err)
	}
	h := &harness{dlq: &fakeDLQ{}, counts: map[string]int{}}
	h.svc, err = NewService(ServiceParams{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:       fakeDB{},
		PubSub:   fakeDB{},
		Outbox:   store,
		DLQ:      h.dlq,
		Registry: reg,
		Metrics:  countingMetrics(h.counts),
		Publisher: func(topic string) topicPublisher {
			h.factoryCalls++
			if p, ok := topics[topic]; ok {
				return p
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return h
}

func provisioningRow(t *testing.T, orderID uuid.UUID) models.OutboxEvent {
	return row(t, enums.EventProvisioningRequested, enums.AggregateOrder, orderID, payloads.ProvisioningRequestedEvent{
		OrderID:   orderID,
		UserID:    uuid.New(),
		InvoiceID: uuid.New(),
		Reason:    payloads.ProvisioningReasonPayment,
	})
}

func invoicePaidRow(t *testing.T) models.OutboxEvent {
	invoiceID := uuid.New()
	return row(t, enums.EventInvoicePaid, enums.AggregateInvoice, invoiceID, payloads.InvoicePaidEvent{
		InvoiceID: invoiceID,
		OrderID:   uuid.New(),
	})
}

func row(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, id uuid.UUID, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   id,
		Payload:       env,
	}
}

type fakeStore struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeStore) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.rows, nil
}

func (f *fakeStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeTopic struct {
	errs []error
	sent []*gcppubsub.Message
}

func (f *fakeTopic) Publish(_ context.Context, msg *gcppubsub.Message) (string, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

type countingMetrics map[string]int

func (c countingMetrics) IncDispatch(_ string, outcome string) { c[outcome]++ }
