package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/internal/orders"
	"github.com/angelmondragon/gamehost-backend/internal/servers"
	"github.com/angelmondragon/gamehost-backend/pkg/db"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/metrics"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

const (
	defaultMaxAttempts = 5
	maxErrorLength     = 1000
)

// errAlreadyProvisioned unwinds the server transaction when another
// delivery inserted the row first.
var errAlreadyProvisioned = errors.New("server already provisioned for order")

type WorkerParams struct {
	Orders      orders.Repository
	Servers     servers.Repository
	Packages    PackageLookup
	Users       UserLookup
	Backend     Backend
	Outbox      outboxEmitter
	TxRunner    txRunner
	Logger      *logger.Logger
	Metrics     provisioningMetrics
	MaxAttempts int
	JobTimeout  time.Duration
}

// Worker turns a paid order into a running server. Jobs are delivered at
// least once; the unique server-per-order constraint makes replays safe.
type Worker struct {
	orders      orders.Repository
	servers     servers.Repository
	packages    PackageLookup
	users       UserLookup
	backend     Backend
	outbox      outboxEmitter
	tx          txRunner
	logg        *logger.Logger
	metrics     provisioningMetrics
	maxAttempts int
	jobTimeout  time.Duration
	now         func() time.Time
}

func NewWorker(params WorkerParams) (*Worker, error) {
	switch {
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Servers == nil:
		return nil, fmt.Errorf("servers repository required")
	case params.Packages == nil:
		return nil, fmt.Errorf("package lookup required")
	case params.Users == nil:
		return nil, fmt.Errorf("user lookup required")
	case params.Backend == nil:
		return nil, fmt.Errorf("provisioning backend required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Worker{
		orders:      params.Orders,
		servers:     params.Servers,
		packages:    params.Packages,
		users:       params.Users,
		backend:     params.Backend,
		outbox:      params.Outbox,
		tx:          params.TxRunner,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: maxAttempts,
		jobTimeout:  params.JobTimeout,
		now:         time.Now,
	}, nil
}

// ProvisionOrder runs one provisioning job. A nil error means the job is
// finished and can be acked; a retryable error asks for redelivery.
func (w *Worker) ProvisionOrder(ctx context.Context, job payloads.ProvisioningRequestedEvent) error {
	start := w.now()
	ctx = w.logg.WithOrderID(ctx, job.OrderID.String())

	outcome, err := w.provision(ctx, job)
	if w.metrics != nil {
		w.metrics.ObserveProvisioning(outcome, w.now().Sub(start))
	}
	return err
}

func (w *Worker) provision(ctx context.Context, job payloads.ProvisioningRequestedEvent) (string, error) {
	order, err := w.orders.FindByID(ctx, job.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			w.logg.Error(ctx, "provisioning job references a missing order", err)
			return metrics.OutcomeSkipped, pkgerrors.New(pkgerrors.CodeIntegrity, "order not found")
		}
		return metrics.OutcomeRetry, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	if _, err := w.servers.FindByOrderID(ctx, order.ID); err == nil {
		w.logg.Info(ctx, "server already exists for order")
		return metrics.OutcomeDuplicate, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return metrics.OutcomeRetry, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load server")
	}

	switch order.Status {
	case enums.OrderStatusActive:
	case enums.OrderStatusCompleted:
		return metrics.OutcomeDuplicate, nil
	case enums.OrderStatusPending:
		return metrics.OutcomeSkipped, pkgerrors.New(pkgerrors.CodeIntegrity, "provisioning requested for an unpaid order")
	default:
		w.logg.Warn(w.logg.WithField(ctx, "order_status", order.Status), "order no longer provisionable")
		return metrics.OutcomeSkipped, nil
	}

	pkg, err := w.packages.FindByID(ctx, order.PackageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return metrics.OutcomeSkipped, pkgerrors.New(pkgerrors.CodeIntegrity, "order references a missing package")
		}
		return metrics.OutcomeRetry, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load package")
	}
	user, err := w.users.FindByID(ctx, order.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return metrics.OutcomeSkipped, pkgerrors.New(pkgerrors.CodeIntegrity, "order references a missing user")
		}
		return metrics.OutcomeRetry, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	attempts, err := w.orders.IncrementProvisionAttempts(ctx, order.ID)
	if err != nil {
		return metrics.OutcomeRetry, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record provisioning attempt")
	}
	ctx = w.logg.WithField(ctx, "attempt", attempts)

	allocation, err := w.allocate(ctx, user, pkg, order)
	if err != nil {
		return w.handleFailure(ctx, order, attempts, err)
	}

	server, err := w.recordServer(ctx, order, pkg, allocation)
	if err != nil {
		if errors.Is(err, errAlreadyProvisioned) {
			w.releaseOrphan(ctx, allocation)
			return metrics.OutcomeDuplicate, nil
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			w.releaseOrphan(ctx, allocation)
			w.logg.Warn(ctx, "order left active before the server was recorded")
			return metrics.OutcomeSkipped, nil
		}
		// the tx rolled back, so nothing references this allocation
		w.releaseOrphan(ctx, allocation)
		return metrics.OutcomeRetry, err
	}

	w.logg.Info(w.logg.WithFields(ctx, map[string]any{
		"server_id":         server.ID.String(),
		"backend_server_id": allocation.ServerID,
	}), "server provisioned")
	return metrics.OutcomeProvisioned, nil
}

func (w *Worker) allocate(ctx context.Context, user *models.User, pkg *models.Package, order *models.Order) (*pterodactyl.Allocation, error) {
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}
	identityID, err := w.backend.EnsureIdentity(ctx, pterodactyl.NewIdentityRequest(user.Email, user.FullName))
	if err != nil {
		return nil, fmt.Errorf("ensure identity: %w", err)
	}
	allocation, err := w.backend.Allocate(ctx, pterodactyl.AllocateRequest{
		IdentityID: identityID,
		Name:       order.ServerName,
		Capacity: pterodactyl.Capacity{
			MemoryMB:  pkg.RAMMB,
			CPU:       pkg.CPULimit,
			DiskMB:    pkg.DiskMB,
			Databases: pkg.DatabaseLimit,
			Backups:   pkg.BackupSlots,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("allocate server: %w", err)
	}
	return allocation, nil
}

// recordServer inserts the server and completes the order in one transaction.
func (w *Worker) recordServer(ctx context.Context, order *models.Order, pkg *models.Package, allocation *pterodactyl.Allocation) (*models.Server, error) {
	now := w.now().UTC()
	expiresAt := pkg.BillingCycle.AddTo(now)
	backendID := allocation.ServerID
	identifier := allocation.Identifier
	server := models.Server{
		UserID:           order.UserID,
		OrderID:          order.ID,
		PackageID:        pkg.ID,
		BackendServerID:  &backendID,
		ServerIdentifier: &identifier,
		ServerName:       order.ServerName,
		Status:           enums.ServerStatusActive,
		IPAddress:        allocation.IP,
		Port:             allocation.Port,
		RAMMB:            pkg.RAMMB,
		CPULimit:         pkg.CPULimit,
		DiskMB:           pkg.DiskMB,
		ExpiresAt:        &expiresAt,
	}

	err := w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := w.servers.WithTx(tx).Create(ctx, &server); err != nil {
			if db.IsUniqueViolation(err, "order_id") {
				return errAlreadyProvisioned
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert server")
		}
		moved, err := w.orders.WithTx(tx).TransitionStatus(ctx, order.ID, enums.OrderStatusActive, enums.OrderStatusCompleted, map[string]any{"last_error": nil})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete order")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer active")
		}
		return w.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCompletedEvent{
				OrderID:   order.ID,
				UserID:    order.UserID,
				ServerID:  server.ID,
				ExpiresAt: &expiresAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// handleFailure records a backend failure. Below the attempt limit the job
// is retried; at the limit the order fails and the job is acked.
func (w *Worker) handleFailure(ctx context.Context, order *models.Order, attempts int, cause error) (string, error) {
	message := truncate(cause.Error())
	if err := w.orders.RecordProvisionError(ctx, order.ID, message); err != nil {
		w.logg.Error(ctx, "failed to record provisioning error", err)
	}

	if attempts < w.maxAttempts {
		w.logg.Warn(w.logg.WithField(ctx, "error", message), "provisioning attempt failed, will retry")
		return metrics.OutcomeRetry, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "provisioning backend failed")
	}

	err := w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := w.orders.WithTx(tx).TransitionStatus(ctx, order.ID, enums.OrderStatusActive, enums.OrderStatusFailed, nil)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		return w.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderFailedEvent{
				OrderID:  order.ID,
				UserID:   order.UserID,
				Attempts: attempts,
				Error:    message,
			},
		})
	})
	if err != nil {
		return metrics.OutcomeRetry, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order failed")
	}
	w.logg.Error(w.logg.WithField(ctx, "max_attempts", w.maxAttempts), "provisioning attempts exhausted, paid order needs operator attention", cause)
	return metrics.OutcomeFailed, nil
}

// releaseOrphan deletes a panel server that lost the race to be recorded.
func (w *Worker) releaseOrphan(ctx context.Context, allocation *pterodactyl.Allocation) {
	if err := w.backend.Delete(ctx, allocation.ServerID); err != nil {
		w.logg.Error(w.logg.WithField(ctx, "backend_server_id", allocation.ServerID), "failed to delete orphaned server", err)
	}
}

// truncate caps message at maxErrorLength bytes on a rune boundary.
func truncate(message string) string {
	if len(message) <= maxErrorLength {
		return message
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
