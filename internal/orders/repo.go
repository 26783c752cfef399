package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

const orderRowSelect = `orders.*, packages.name AS package_name,
	invoices.id AS invoice_id, invoices.invoice_number AS invoice_number,
	invoices.amount AS invoice_amount, invoices.due_date AS invoice_due_date,
	invoices.status AS invoice_status`

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("orders").
		Select(orderRowSelect).
		Joins("JOIN packages ON packages.id = orders.package_id").
		Joins("LEFT JOIN invoices ON invoices.order_id = orders.id")
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]orderRow, error) {
	var rows []orderRow
	err := r.baseQuery(ctx).
		Where("orders.user_id = ?", userID).
		Order("orders.created_at DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) FindForUser(ctx context.Context, userID, orderID uuid.UUID) (*orderRow, error) {
	var rows []orderRow
	err := r.baseQuery(ctx).
		Where("orders.id = ? AND orders.user_id = ?", orderID, userID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": r.now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementProvisionAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"provision_attempts": gorm.Expr("provision_attempts + 1"),
			"updated_at":         r.now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var attempts int
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Pluck("provision_attempts", &attempts).Error
	return attempts, err
}

func (r *repository) RecordProvisionError(ctx context.Context, id uuid.UUID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error": message,
			"updated_at": r.now().UTC(),
		}).Error
}

func (r *repository) FindStuckProvisioning(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("orders.*").
		Joins("JOIN invoices ON invoices.order_id = orders.id AND invoices.status = ?", enums.InvoiceStatusPaid).
		Joins("LEFT JOIN servers ON servers.order_id = orders.id").
		Where("orders.status = ? AND servers.id IS NULL", enums.OrderStatusActive).
		Where("orders.updated_at < ?", before).
		Order("orders.updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
