package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gamehost-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

func parked(failedAt time.Time, msg string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventProvisioningRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.DLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
}

func TestDLQInsertTruncatesErrorMessage(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)

	require.Error(t, repo.InsertTx(nil, parked(time.Now(), "x")))
	require.NoError(t, repo.InsertTx(conn, parked(time.Now().UTC(), strings.Repeat("e", 5000))))

	var row models.OutboxDLQ
	require.NoError(t, conn.First(&row).Error)
	require.NotNil(t, row.ErrorMessage)
	assert.Len(t, *row.ErrorMessage, maxDLQErrorLen)
}

func TestDLQListSinceReturnsNewerRowsOldestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{3 * time.Minute, -time.Minute, time.Minute} {
		require.NoError(t, repo.InsertTx(conn, parked(base.Add(offset), "publish failed")))
	}

	rows, err := repo.ListSince(context.Background(), base, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].FailedAt.Before(rows[1].FailedAt))

	limited, err := repo.ListSince(context.Background(), base.Add(-time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
