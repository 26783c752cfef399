package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

type DLQReportJobParams struct {
	Logger    *logger.Logger
	DLQ       dlqReader
	Lookback  time.Duration
	BatchSize int
}

// NewDLQReportJob surfaces outbox events parked since the previous cycle.
// The first cycle looks back Lookback from start-up.
func NewDLQReportJob(params DLQReportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DLQ == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = time.Hour
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &dlqReportJob{
		logg:     params.Logger,
		dlq:      params.DLQ,
		lookback: lookback,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type dlqReportJob struct {
	logg     *logger.Logger
	dlq      dlqReader
	lookback time.Duration
	batch    int
	now      func() time.Time
	cursor   time.Time
}

func (j *dlqReportJob) Name() string { return "dlq-report" }

func (j *dlqReportJob) Run(ctx context.Context) error {
	if j.cursor.IsZero() {
		j.cursor = j.now().UTC().Add(-j.lookback)
	}
	rows, err := j.dlq.ListSince(ctx, j.cursor, j.batch)
	if err != nil {
		return fmt.Errorf("list dlq: %w", err)
	}
	for _, row := range rows {
		rowCtx := j.logg.WithFields(ctx, map[string]any{
			"dlq_id":         row.ID.String(),
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID.String(),
			"dlq_reason":     row.ErrorReason,
			"attempt_count":  row.AttemptCount,
			"replayable":     row.ErrorReason.Replayable(),
		})
		if row.EventType == enums.EventProvisioningRequested {
			var cause error
			if row.ErrorMessage != nil {
				cause = fmt.Errorf("%s", *row.ErrorMessage)
			}
			j.logg.Error(rowCtx, "paid order parked without provisioning; manual follow-up required", cause)
		} else {
			j.logg.Warn(rowCtx, "outbox event parked in dlq")
		}
		j.cursor = row.FailedAt
	}
	return nil
}
