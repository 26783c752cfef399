package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

type fakeSweeper struct {
	limit  int
	minAge time.Duration
	n      int
	err    error
}

func (f *fakeSweeper) ExpireOverdueInvoices(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.n, f.err
}

func (f *fakeSweeper) RefreshPendingPayments(_ context.Context, olderThan time.Duration, limit int) (int, error) {
	f.minAge = olderThan
	f.limit = limit
	return f.n, f.err
}

func (f *fakeSweeper) SuspendExpired(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.n, f.err
}

func TestSweepJobsDelegateWithDefaults(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	sweeper := &fakeSweeper{n: 2}

	invoices, err := NewInvoiceExpiryJob(InvoiceExpiryJobParams{Logger: logg, Billing: sweeper})
	if err != nil {
		t.Fatalf("NewInvoiceExpiryJob: %v", err)
	}
	payments, err := NewPaymentRefreshJob(PaymentRefreshJobParams{Logger: logg, Billing: sweeper, BatchSize: 5})
	if err != nil {
		t.Fatalf("NewPaymentRefreshJob: %v", err)
	}
	servers, err := NewServerExpiryJob(ServerExpiryJobParams{Logger: logg, Servers: sweeper, BatchSize: 7})
	if err != nil {
		t.Fatalf("NewServerExpiryJob: %v", err)
	}
	ctx := context.Background()

	if err := invoices.Run(ctx); err != nil {
		t.Fatalf("invoice expiry: %v", err)
	}
	if sweeper.limit != defaultBatchSize {
		t.Fatalf("expected default batch %d, got %d", defaultBatchSize, sweeper.limit)
	}
	if err := payments.Run(ctx); err != nil {
		t.Fatalf("payment refresh: %v", err)
	}
	if sweeper.limit != 5 || sweeper.minAge != defaultPaymentRefreshAge {
		t.Fatalf("unexpected refresh args: limit=%d age=%s", sweeper.limit, sweeper.minAge)
	}
	if err := servers.Run(ctx); err != nil {
		t.Fatalf("server expiry: %v", err)
	}
	if sweeper.limit != 7 {
		t.Fatalf("expected batch 7, got %d", sweeper.limit)
	}
}

func TestSweepJobsWrapErrors(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	boom := errors.New("boom")
	sweeper := &fakeSweeper{n: 1, err: boom}

	jobs := []func() (Job, error){
		func() (Job, error) { return NewInvoiceExpiryJob(InvoiceExpiryJobParams{Logger: logg, Billing: sweeper}) },
		func() (Job, error) { return NewPaymentRefreshJob(PaymentRefreshJobParams{Logger: logg, Billing: sweeper}) },
		func() (Job, error) { return NewServerExpiryJob(ServerExpiryJobParams{Logger: logg, Servers: sweeper}) },
	}
	for _, build := range jobs {
		job, err := build()
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if err := job.Run(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("%s: expected wrapped error, got %v", job.Name(), err)
		}
	}
}

func TestSweepJobsRequireService(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	if _, err := NewInvoiceExpiryJob(InvoiceExpiryJobParams{Logger: logg}); err == nil {
		t.Fatal("expected error without billing service")
	}
	if _, err := NewPaymentRefreshJob(PaymentRefreshJobParams{Logger: logg}); err == nil {
		t.Fatal("expected error without billing service")
	}
	if _, err := NewServerExpiryJob(ServerExpiryJobParams{Logger: logg}); err == nil {
		t.Fatal("expected error without servers service")
	}
}
