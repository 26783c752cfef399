package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

const defaultPaymentRefreshAge = 10 * time.Minute

type PaymentRefreshJobParams struct {
	Logger    *logger.Logger
	Billing   paymentRefresher
	MinAge    time.Duration
	BatchSize int
}

// NewPaymentRefreshJob re-queries the gateway for pending transactions whose
// webhook never arrived.
func NewPaymentRefreshJob(params PaymentRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	age := params.MinAge
	if age <= 0 {
		age = defaultPaymentRefreshAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &paymentRefreshJob{logg: params.Logger, billing: params.Billing, age: age, batch: batch}, nil
}

type paymentRefreshJob struct {
	logg    *logger.Logger
	billing paymentRefresher
	age     time.Duration
	batch   int
}

func (j *paymentRefreshJob) Name() string { return "payment-refresh" }

func (j *paymentRefreshJob) Run(ctx context.Context) error {
	applied, err := j.billing.RefreshPendingPayments(ctx, j.age, j.batch)
	if applied > 0 {
		j.logg.Info(j.logg.WithField(ctx, "payments_applied", applied), "applied gateway status for stale payments")
	}
	if err != nil {
		return fmt.Errorf("payment refresh: %w", err)
	}
	return nil
}
