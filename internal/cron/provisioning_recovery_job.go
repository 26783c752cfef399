package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
)

const defaultProvisioningGrace = 15 * time.Minute

type ProvisioningRecoveryJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Orders      stuckOrderReader
	Outbox      pendingEmitter
	GracePeriod time.Duration
	BatchSize   int
}

// NewProvisioningRecoveryJob re-queues provisioning for paid orders that
// never got a server, covering jobs lost between payment and the worker.
func NewProvisioningRecoveryJob(params ProvisioningRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = defaultProvisioningGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &provisioningRecoveryJob{
		logg:   params.Logger,
		db:     params.DB,
		orders: params.Orders,
		outbox: params.Outbox,
		grace:  grace,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type provisioningRecoveryJob struct {
	logg   *logger.Logger
	db     txRunner
	orders stuckOrderReader
	outbox pendingEmitter
	grace  time.Duration
	batch  int
	now    func() time.Time
}

func (j *provisioningRecoveryJob) Name() string { return "provisioning-recovery" }

func (j *provisioningRecoveryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	stuck, err := j.orders.FindStuckProvisioning(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stuck orders: %w", err)
	}

	var errs error
	requeued := 0
	for _, order := range stuck {
		queued, err := j.requeue(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if queued {
			requeued++
			logCtx := j.logg.WithOrderID(ctx, order.ID.String())
			j.logg.Warn(j.logg.WithField(logCtx, "provision_attempts", order.ProvisionAttempts), "re-queued provisioning for stuck order")
		}
	}
	if len(stuck) > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"stuck_orders": len(stuck),
			"requeued":     requeued,
		}), "provisioning recovery sweep complete")
	}
	return errs
}

func (j *provisioningRecoveryJob) requeue(ctx context.Context, order models.Order) (bool, error) {
	invoice, err := j.orders.FindInvoiceByOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	var queued bool
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.outbox.EmitIfNoPending(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProvisioningRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.ProvisioningRequestedEvent{
				OrderID:   order.ID,
				UserID:    order.UserID,
				InvoiceID: invoice.ID,
				Reason:    payloads.ProvisioningReasonRecovery,
			},
		})
		queued = ok
		return err
	})
	return queued, err
}
