package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	orderID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventProvisioningRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.ProvisioningRequestedEvent{OrderID: orderID, Reason: payloads.ProvisioningReasonPayment},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventProvisioningRequested, rows[0].EventType)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	_, err = envelope.ParsedEventID()
	require.NoError(t, err)

	var job payloads.ProvisioningRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &job))
	assert.Equal(t, orderID, job.OrderID)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventInvoicePaid,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   uuid.New(),
			Data:          payloads.InvoicePaidEvent{InvoiceNumber: "INV-1"},
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRequiresTransactionAndKnownType(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventInvoicePaid})
	require.Error(t, err)

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.OutboxEventType("bogus")})
	require.Error(t, err)
}

func TestEmitIfNoPendingSkipsWhileUnpublished(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventProvisioningRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          payloads.ProvisioningRequestedEvent{OrderID: orderID, Reason: payloads.ProvisioningReasonRecovery},
	}

	emitted, err := svc.EmitIfNoPending(context.Background(), conn, event)
	require.NoError(t, err)
	assert.True(t, emitted)

	emitted, err = svc.EmitIfNoPending(context.Background(), conn, event)
	require.NoError(t, err)
	assert.False(t, emitted)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	require.NoError(t, repo.MarkPublishedTx(conn, row.ID))

	emitted, err = svc.EmitIfNoPending(context.Background(), conn, event)
	require.NoError(t, err)
	assert.True(t, emitted)

	count, err := repo.CountForAggregate(enums.EventProvisioningRequested, orderID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestMarkFailedAndTerminal(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	row := models.OutboxEvent{
		EventType:     enums.EventOrderFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, repo.Insert(conn, row))

	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored).Error)

	require.NoError(t, repo.MarkFailedTx(conn, stored.ID, errors.New("publish timeout")))
	require.NoError(t, conn.First(&stored, "id = ?", stored.ID).Error)
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "publish timeout", *stored.LastError)
	assert.Nil(t, stored.PublishedAt)

	require.NoError(t, repo.MarkTerminalTx(conn, stored.ID, errors.New("unsupported")))
	require.NoError(t, conn.First(&stored, "id = ?", stored.ID).Error)
	assert.Equal(t, 2, stored.AttemptCount)
	assert.NotNil(t, stored.PublishedAt)
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	for _, publishedAt := range []*time.Time{&old, &recent, nil} {
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			EventType:     enums.EventInvoicePaid,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   publishedAt,
		}))
	}

	deleted, err := repo.DeletePublishedBefore(conn, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

func TestDLQInsertTruncatesMessage(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	long := make([]byte, maxDLQErrorLen+100)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	eventID := uuid.New()
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventProvisioningRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.DLQReasonMaxAttempts,
		ErrorMessage:  &msg,
	}))

	parked, err := dlq.ListSince(context.Background(), time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, eventID, parked[0].EventID)
	require.NotNil(t, parked[0].ErrorMessage)
	assert.Len(t, *parked[0].ErrorMessage, maxDLQErrorLen)
}

func TestTruncateDLQErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "é"
	got := truncateDLQError(msg)
	assert.Len(t, got, maxDLQErrorLen-1)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "short", truncateDLQError("short"))
}

func TestErrorTextTruncates(t *testing.T) {
	long := errors.New(strings.Repeat("x", maxDLQErrorLen*2))
	text := errorText(long)
	require.NotNil(t, text)
	assert.Len(t, *text, maxDLQErrorLen)
	assert.Nil(t, errorText(nil))
}

func TestEmitUsesRowIDAsEventID(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	fixed := uuid.MustParse("6f1c9e8a-31a4-4f0e-9a7c-1d2b3c4d5e6f")
	svc.newID = func() uuid.UUID { return fixed }

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventInvoiceExpired,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   uuid.New(),
		Data:          payloads.InvoiceClosedEvent{InvoiceNumber: "INV-9"},
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, fixed, row.ID)

	envelope, err := OpenEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, fixed.String(), envelope.EventID)
}

func TestEmitRejectsMissingData(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	})
	require.ErrorIs(t, err, ErrEnvelopeEmpty)
}

func TestOpenEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "valid", raw: `{"version":2,"eventId":"6f1c9e8a-31a4-4f0e-9a7c-1d2b3c4d5e6f","data":{"a":1}}`},
		{name: "legacy version", raw: `{"eventId":"6f1c9e8a-31a4-4f0e-9a7c-1d2b3c4d5e6f","data":{}}`},
		{name: "bad id", raw: `{"eventId":"nope","data":{}}`, wantErr: ErrEnvelopeEventID},
		{name: "nil id", raw: `{"eventId":"00000000-0000-0000-0000-000000000000","data":{}}`, wantErr: ErrEnvelopeEventID},
		{name: "null data", raw: `{"eventId":"6f1c9e8a-31a4-4f0e-9a7c-1d2b3c4d5e6f","data":null}`, wantErr: ErrEnvelopeEmpty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := OpenEnvelope([]byte(tc.raw))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, env.Version)
		})
	}
}
