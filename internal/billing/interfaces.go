package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/midtrans"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
)

// Gateway is the payment provider surface billing depends on.
type Gateway interface {
	Charge(ctx context.Context, req midtrans.ChargeRequest) (*midtrans.TransactionResponse, error)
	Status(ctx context.Context, reference string) (*midtrans.TransactionResponse, error)
}

// Repository persists invoices and payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindInvoiceByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error)
	FindInvoiceForUser(ctx context.Context, userID, invoiceID uuid.UUID) (*invoiceRow, error)
	ListInvoicesForUser(ctx context.Context, userID uuid.UUID) ([]invoiceRow, error)
	// TransitionInvoice is a compare-and-set on status.
	TransitionInvoice(ctx context.Context, id uuid.UUID, from, to enums.InvoiceStatus, extra map[string]any) (bool, error)
	FindTransaction(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListOverdueInvoices(ctx context.Context, now time.Time, limit int) ([]models.Invoice, error)
	ListStalePendingTransactions(ctx context.Context, gateway enums.PaymentGateway, before time.Time, limit int) ([]staleTransaction, error)
}

// UserLookup resolves the payer for gateway customer details.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter = outbox.Emitter

type paymentMetrics interface {
	IncPaymentOutcome(gateway, status string)
}
