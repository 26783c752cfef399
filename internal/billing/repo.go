package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository builds the billing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) FindInvoiceByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("invoice_number = ?", number).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) invoiceQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("invoices").
		Select("invoices.*, orders.server_name AS server_name, packages.name AS package_name").
		Joins("JOIN orders ON orders.id = invoices.order_id").
		Joins("JOIN packages ON packages.id = orders.package_id")
}

func (r *repository) FindInvoiceForUser(ctx context.Context, userID, invoiceID uuid.UUID) (*invoiceRow, error) {
	var rows []invoiceRow
	err := r.invoiceQuery(ctx).
		Where("invoices.id = ? AND invoices.user_id = ?", invoiceID, userID).
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

func (r *repository) ListInvoicesForUser(ctx context.Context, userID uuid.UUID) ([]invoiceRow, error) {
	var rows []invoiceRow
	err := r.invoiceQuery(ctx).
		Where("invoices.user_id = ?", userID).
		Order("invoices.created_at DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) TransitionInvoice(ctx context.Context, id uuid.UUID, from, to enums.InvoiceStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": r.now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindTransaction(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", externalID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = r.now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListOverdueInvoices(ctx context.Context, now time.Time, limit int) ([]models.Invoice, error) {
	var rows []models.Invoice
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", enums.InvoiceStatusPending, now).
		Order("due_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListStalePendingTransactions(ctx context.Context, gateway enums.PaymentGateway, before time.Time, limit int) ([]staleTransaction, error) {
	var rows []staleTransaction
	err := r.db.WithContext(ctx).
		Table("payment_transactions").
		Select("payment_transactions.*, invoices.invoice_number AS invoice_number").
		Joins("JOIN invoices ON invoices.id = payment_transactions.invoice_id").
		Where("payment_transactions.status = ?", enums.PaymentStatusPending).
		Where("payment_transactions.payment_gateway = ?", gateway).
		Where("payment_transactions.created_at < ?", before).
		Where("invoices.status = ?", enums.InvoiceStatusPending).
		Order("payment_transactions.created_at ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
