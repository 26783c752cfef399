package provisioning

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/internal/orders"
	"github.com/angelmondragon/gamehost-backend/internal/packages"
	"github.com/angelmondragon/gamehost-backend/internal/servers"
	"github.com/angelmondragon/gamehost-backend/internal/users"
	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/db"
	"github.com/angelmondragon/gamehost-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/metrics"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

// flakyBackend wraps the mock and fails the next `failures` allocations.
type flakyBackend struct {
	*pterodactyl.Mock
	mu        sync.Mutex
	failures  int
	allocated int
	deleted   []int64
	onAlloc   func()
}

func (b *flakyBackend) Allocate(ctx context.Context, req pterodactyl.AllocateRequest) (*pterodactyl.Allocation, error) {
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "panel unavailable")
	}
	b.allocated++
	b.mu.Unlock()
	if b.onAlloc != nil {
		b.onAlloc()
	}
	return b.Mock.Allocate(ctx, req)
}

func (b *flakyBackend) Delete(_ context.Context, serverID int64) error {
	b.deleted = append(b.deleted, serverID)
	return nil
}

type outcomeRecorder struct {
	outcomes []string
}

func (r *outcomeRecorder) ObserveProvisioning(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

type fixture struct {
	conn    *gorm.DB
	worker  *Worker
	backend *flakyBackend
	metrics *outcomeRecorder
	user    models.User
	pkg     models.Package
}

func newFixture(t *testing.T, maxAttempts int) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	backend := &flakyBackend{Mock: pterodactyl.NewMock()}
	recorder := &outcomeRecorder{}
	worker, err := NewWorker(WorkerParams{
		Orders:      orders.NewRepository(conn),
		Servers:     servers.NewRepository(conn),
		Packages:    packages.NewRepository(conn),
		Users:       users.NewRepository(conn),
		Backend:     backend,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logg),
		TxRunner:    db.NewFromConn(conn),
		Logger:      logg,
		Metrics:     recorder,
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return fixture{
		conn:    conn,
		worker:  worker,
		backend: backend,
		metrics: recorder,
		user:    dbtest.SeedUser(t, conn, "mika.s@example.com", "Mika Sato"),
		pkg:     dbtest.SeedPackage(t, conn, "10.00"),
	}
}

func (f fixture) paidOrder(t *testing.T) (models.Order, payloads.ProvisioningRequestedEvent) {
	t.Helper()
	order, invoice := dbtest.SeedOrderWithInvoice(t, f.conn, f.user, f.pkg, enums.OrderStatusActive, enums.InvoiceStatusPaid)
	return order, payloads.ProvisioningRequestedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		InvoiceID: invoice.ID,
		Reason:    payloads.ProvisioningReasonPayment,
	}
}

func (f fixture) reloadOrder(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", id).Error)
	return order
}

func (f fixture) countServers(t *testing.T, orderID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.Server{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}

func (f fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestProvisionOrderCreatesServerAndCompletesOrder(t *testing.T) {
	f := newFixture(t, 3)
	order, job := f.paidOrder(t)

	require.NoError(t, f.worker.ProvisionOrder(context.Background(), job))

	got := f.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusCompleted, got.Status)
	assert.Equal(t, 1, got.ProvisionAttempts)
	assert.Nil(t, got.LastError)

	var server models.Server
	require.NoError(t, f.conn.First(&server, "order_id = ?", order.ID).Error)
	assert.Equal(t, enums.ServerStatusActive, server.Status)
	require.NotNil(t, server.IPAddress)
	assert.Equal(t, pterodactyl.MockIP, *server.IPAddress)
	require.NotNil(t, server.Port)
	assert.Equal(t, pterodactyl.MockPort, *server.Port)
	require.NotNil(t, server.ServerIdentifier)
	assert.Regexp(t, `^mock-mikas-\d+$`, *server.ServerIdentifier)
	assert.Equal(t, f.pkg.RAMMB, server.RAMMB)
	require.NotNil(t, server.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 1, 0), *server.ExpiresAt, time.Minute)

	assert.EqualValues(t, 1, f.countEvents(t, enums.EventOrderCompleted))
	assert.Equal(t, []string{metrics.OutcomeProvisioned}, f.metrics.outcomes)
}

func TestProvisionOrderReplayIsNoop(t *testing.T) {
	f := newFixture(t, 3)
	order, job := f.paidOrder(t)

	require.NoError(t, f.worker.ProvisionOrder(context.Background(), job))
	require.NoError(t, f.worker.ProvisionOrder(context.Background(), job))

	assert.EqualValues(t, 1, f.countServers(t, order.ID))
	assert.Equal(t, 1, f.backend.allocated)
	assert.Equal(t, 1, f.reloadOrder(t, order.ID).ProvisionAttempts)
	assert.Equal(t, []string{metrics.OutcomeProvisioned, metrics.OutcomeDuplicate}, f.metrics.outcomes)
}

func TestProvisionOrderRetriesTransientFailure(t *testing.T) {
	f := newFixture(t, 3)
	order, job := f.paidOrder(t)
	f.backend.failures = 1

	err := f.worker.ProvisionOrder(context.Background(), job)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))

	got := f.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusActive, got.Status)
	assert.Equal(t, 1, got.ProvisionAttempts)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "panel unavailable")
	assert.Zero(t, f.countServers(t, order.ID))

	require.NoError(t, f.worker.ProvisionOrder(context.Background(), job))
	got = f.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProvisionAttempts)
	assert.EqualValues(t, 1, f.countServers(t, order.ID))
}

func TestProvisionOrderFailsAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, 2)
	order, job := f.paidOrder(t)
	f.backend.failures = 10

	err := f.worker.ProvisionOrder(context.Background(), job)
	assert.True(t, pkgerrors.IsRetryable(err))

	require.NoError(t, f.worker.ProvisionOrder(context.Background(), job))

	got := f.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusFailed, got.Status)
	assert.Equal(t, 2, got.ProvisionAttempts)
	require.NotNil(t, got.LastError)
	assert.Zero(t, f.countServers(t, order.ID))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventOrderFailed))
	assert.Equal(t, []string{metrics.OutcomeRetry, metrics.OutcomeFailed}, f.metrics.outcomes)

	// A late redelivery after failure does nothing.
	require.NoError(t, f.worker.ProvisionOrder(context.Background(), job))
	assert.Equal(t, 2, f.reloadOrder(t, order.ID).ProvisionAttempts)
}

func TestProvisionOrderMissingOrderIsPermanent(t *testing.T) {
	f := newFixture(t, 3)

	err := f.worker.ProvisionOrder(context.Background(), payloads.ProvisioningRequestedEvent{OrderID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrity))
	assert.False(t, pkgerrors.IsRetryable(err))
	assert.Zero(t, f.backend.allocated)
}

func TestProvisionOrderLosesRaceToConcurrentDelivery(t *testing.T) {
	f := newFixture(t, 3)
	order, job := f.paidOrder(t)
	f.backend.onAlloc = func() {
		rival := models.Server{
			UserID:     order.UserID,
			OrderID:    order.ID,
			PackageID:  f.pkg.ID,
			ServerName: order.ServerName,
			Status:     enums.ServerStatusActive,
			RAMMB:      f.pkg.RAMMB,
			CPULimit:   f.pkg.CPULimit,
			DiskMB:     f.pkg.DiskMB,
		}
		require.NoError(t, f.conn.Create(&rival).Error)
	}

	require.NoError(t, f.worker.ProvisionOrder(context.Background(), job))
	assert.EqualValues(t, 1, f.countServers(t, order.ID))
	assert.Len(t, f.backend.deleted, 1)
	assert.Zero(t, f.countEvents(t, enums.EventOrderCompleted))
	assert.Equal(t, []string{metrics.OutcomeDuplicate}, f.metrics.outcomes)
}

func TestProvisionOrderReleasesAllocationWhenRecordFails(t *testing.T) {
	f := newFixture(t, 3)
	order, job := f.paidOrder(t)
	f.backend.onAlloc = func() {
		require.NoError(t, f.conn.Exec("ALTER TABLE servers RENAME TO servers_offline").Error)
	}

	err := f.worker.ProvisionOrder(context.Background(), job)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Len(t, f.backend.deleted, 1)
	assert.Equal(t, []string{metrics.OutcomeRetry}, f.metrics.outcomes)

	f.backend.onAlloc = nil
	require.NoError(t, f.conn.Exec("ALTER TABLE servers_offline RENAME TO servers").Error)
	require.NoError(t, f.worker.ProvisionOrder(context.Background(), job))
	assert.Equal(t, enums.OrderStatusCompleted, f.reloadOrder(t, order.ID).Status)
	assert.EqualValues(t, 1, f.countServers(t, order.ID))
	assert.Len(t, f.backend.deleted, 1)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxErrorLength-1) + "ü"
	got := truncate(msg)
	assert.Len(t, got, maxErrorLength-1)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "short", truncate("short"))
}

func TestProvisionOrderSkipsCancelledOrder(t *testing.T) {
	f := newFixture(t, 3)
	order, _ := dbtest.SeedOrderWithInvoice(t, f.conn, f.user, f.pkg, enums.OrderStatusCancelled, enums.InvoiceStatusCancelled)

	err := f.worker.ProvisionOrder(context.Background(), payloads.ProvisioningRequestedEvent{OrderID: order.ID})
	require.NoError(t, err)
	assert.Zero(t, f.backend.allocated)
	assert.Zero(t, f.countServers(t, order.ID))
}

func TestNewWorkerValidatesDependencies(t *testing.T) {
	_, err := NewWorker(WorkerParams{})
	require.Error(t, err)
}

func TestNewBackendHonoursMockMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.Provisioning.MockMode = true
	backend, err := NewBackend(context.Background(), cfg, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	assert.IsType(t, &pterodactyl.Mock{}, backend)

	cfg.Provisioning.MockMode = false
	_, err = NewBackend(context.Background(), cfg, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	assert.Error(t, err)
}
