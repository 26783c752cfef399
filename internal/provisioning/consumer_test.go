package provisioning

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
)

type memoryStore struct {
	keys map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key], _ = value.(string)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "gh:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type recordingHandler struct {
	jobs []payloads.ProvisioningRequestedEvent
	err  error
}

func (h *recordingHandler) ProvisionOrder(_ context.Context, job payloads.ProvisioningRequestedEvent) error {
	h.jobs = append(h.jobs, job)
	return h.err
}

func newTestConsumer(t *testing.T, handler jobHandler) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(&memoryStore{keys: map[string]string{}}, time.Hour, time.Minute)
	require.NoError(t, err)
	c, err := newConsumer(nil, handler, manager, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return c
}

func jobMessage(t *testing.T, job payloads.ProvisioningRequestedEvent) []byte {
	t.Helper()
	env, err := outbox.SealEnvelope(uuid.New(), 0, time.Now(), nil, job)
	require.NoError(t, err)
	body, err := env.Encode()
	require.NoError(t, err)
	return body
}

var provisioningAttrs = map[string]string{"event_type": string(enums.EventProvisioningRequested)}

func TestConsumerAcksProcessedJobAndSkipsDuplicates(t *testing.T) {
	handler := &recordingHandler{}
	c := newTestConsumer(t, handler)
	job := payloads.ProvisioningRequestedEvent{OrderID: uuid.New(), UserID: uuid.New()}
	body := jobMessage(t, job)

	assert.False(t, c.process(context.Background(), "m-1", provisioningAttrs, body))
	assert.False(t, c.process(context.Background(), "m-2", provisioningAttrs, body))

	require.Len(t, handler.jobs, 1)
	assert.Equal(t, job.OrderID, handler.jobs[0].OrderID)
}

func TestConsumerNacksRetryableFailure(t *testing.T) {
	handler := &recordingHandler{err: pkgerrors.New(pkgerrors.CodeDependency, "panel unavailable")}
	c := newTestConsumer(t, handler)
	body := jobMessage(t, payloads.ProvisioningRequestedEvent{OrderID: uuid.New()})

	assert.True(t, c.process(context.Background(), "m-1", provisioningAttrs, body))
	// The claim is released so the redelivery runs again.
	assert.True(t, c.process(context.Background(), "m-1", provisioningAttrs, body))
	assert.Len(t, handler.jobs, 2)
}

func TestConsumerAcksPermanentFailure(t *testing.T) {
	handler := &recordingHandler{err: pkgerrors.New(pkgerrors.CodeIntegrity, "order not found")}
	c := newTestConsumer(t, handler)

	assert.False(t, c.process(context.Background(), "m-1", provisioningAttrs, jobMessage(t, payloads.ProvisioningRequestedEvent{OrderID: uuid.New()})))
	assert.Len(t, handler.jobs, 1)
}

func TestConsumerDropsMalformedMessages(t *testing.T) {
	handler := &recordingHandler{}
	c := newTestConsumer(t, handler)

	assert.False(t, c.process(context.Background(), "m-1", provisioningAttrs, []byte("not json")))
	assert.False(t, c.process(context.Background(), "m-2", map[string]string{"event_type": "invoice_paid"}, jobMessage(t, payloads.ProvisioningRequestedEvent{OrderID: uuid.New()})))
	assert.False(t, c.process(context.Background(), "m-3", provisioningAttrs, jobMessage(t, payloads.ProvisioningRequestedEvent{})))
	assert.Empty(t, handler.jobs)
}

func TestConsumerNacksEventClaimedElsewhere(t *testing.T) {
	handler := &recordingHandler{}
	c := newTestConsumer(t, handler)
	job := payloads.ProvisioningRequestedEvent{OrderID: uuid.New()}
	body := jobMessage(t, job)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(body, &envelope))
	eventID, err := envelope.ParsedEventID()
	require.NoError(t, err)
	state, err := c.idempotency.Claim(context.Background(), consumerName, eventID)
	require.NoError(t, err)
	require.Equal(t, idempotency.Acquired, state)

	assert.True(t, c.process(context.Background(), "m-1", provisioningAttrs, body))
	assert.Empty(t, handler.jobs)
}
