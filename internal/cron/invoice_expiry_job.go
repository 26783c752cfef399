package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

const defaultBatchSize = 100

type InvoiceExpiryJobParams struct {
	Logger    *logger.Logger
	Billing   invoiceExpirer
	BatchSize int
}

// NewInvoiceExpiryJob expires pending invoices past their due date and
// cancels the orders behind them.
func NewInvoiceExpiryJob(params InvoiceExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &invoiceExpiryJob{logg: params.Logger, billing: params.Billing, batch: batch}, nil
}

type invoiceExpiryJob struct {
	logg    *logger.Logger
	billing invoiceExpirer
	batch   int
}

func (j *invoiceExpiryJob) Name() string { return "invoice-expiry" }

func (j *invoiceExpiryJob) Run(ctx context.Context) error {
	expired, err := j.billing.ExpireOverdueInvoices(ctx, j.batch)
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "invoices_expired", expired), "expired overdue invoices")
	}
	if err != nil {
		return fmt.Errorf("invoice expiry: %w", err)
	}
	return nil
}
