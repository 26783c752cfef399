package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type invoiceExpirer interface {
	ExpireOverdueInvoices(ctx context.Context, limit int) (int, error)
}

type paymentRefresher interface {
	RefreshPendingPayments(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type serverSuspender interface {
	SuspendExpired(ctx context.Context, limit int) (int, error)
}

type stuckOrderReader interface {
	FindStuckProvisioning(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	FindInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
}

type pendingEmitter interface {
	EmitIfNoPending(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type dlqReader interface {
	ListSince(ctx context.Context, since time.Time, limit int) ([]models.OutboxDLQ, error)
}
