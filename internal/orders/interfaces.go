package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]orderRow, error)
	FindForUser(ctx context.Context, userID, orderID uuid.UUID) (*orderRow, error)
	// TransitionStatus is a compare-and-set; it reports whether the row moved.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error)
	IncrementProvisionAttempts(ctx context.Context, id uuid.UUID) (int, error)
	RecordProvisionError(ctx context.Context, id uuid.UUID, message string) error
	// FindStuckProvisioning lists active orders with a paid invoice and no
	// server whose last update is older than before.
	FindStuckProvisioning(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

// PackageLookup resolves catalog packages.
type PackageLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Package, error)
}

// UserLookup resolves the ordering account.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
