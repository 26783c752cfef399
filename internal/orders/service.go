package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

// maxInvoiceNumberAttempts bounds regeneration after an invoice number collision.
const maxInvoiceNumberAttempts = 3

// Service creates orders and serves the customer's order history.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
}

type service struct {
	repo     Repository
	packages PackageLookup
	users    UserLookup
	tx       txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order manager with the required dependencies.
func NewService(repo Repository, packages PackageLookup, users UserLookup, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if packages == nil {
		return nil, fmt.Errorf("package lookup required")
	}
	if users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		packages: packages,
		users:    users,
		tx:       tx,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// CreateOrder opens an order and its invoice in one transaction. The invoice
// amount is copied from the order total, which is copied from the package.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	name := strings.TrimSpace(input.ServerName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "server name is required").
			WithDetails(map[string]string{"server_name": "is required"})
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.PackageID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package id is required")
	}

	if _, err := s.users.FindByID(ctx, input.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	pkg, err := s.packages.FindByID(ctx, input.PackageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load package")
	}
	if !pkg.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
	}

	var (
		order   models.Order
		invoice models.Invoice
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		order = models.Order{
			UserID:     input.UserID,
			PackageID:  pkg.ID,
			ServerName: name,
			TotalPrice: pkg.Price,
			Status:     enums.OrderStatusPending,
		}
		if err := repo.CreateOrder(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		created, err := s.createInvoice(ctx, tx, order, now)
		if err != nil {
			return err
		}
		invoice = *created
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithInvoiceNumber(logCtx, invoice.InvoiceNumber)
	s.logg.Info(logCtx, "order created")

	dto := toDTO(order, &invoice, pkg.Name)
	return &dto, nil
}

// createInvoice inserts the invoice under a savepoint so a number collision
// can be retried without aborting the outer transaction.
func (s *service) createInvoice(ctx context.Context, tx *gorm.DB, order models.Order, now time.Time) (*models.Invoice, error) {
	var lastErr error
	for attempt := 1; attempt <= maxInvoiceNumberAttempts; attempt++ {
		invoice := models.Invoice{
			OrderID:       order.ID,
			UserID:        order.UserID,
			InvoiceNumber: NewInvoiceNumber(now),
			Amount:        order.TotalPrice,
			DueDate:       now.Add(InvoiceDueWindow),
			Status:        enums.InvoiceStatusPending,
		}
		err := tx.Transaction(func(sp *gorm.DB) error {
			return s.repo.WithTx(sp).CreateInvoice(ctx, &invoice)
		})
		if err == nil {
			return &invoice, nil
		}
		if !db.IsUniqueViolation(err, "invoice_number") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
		}
		lastErr = err
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "invoice number collision, regenerating")
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a unique invoice number")
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDTO())
	}
	return out, nil
}

func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	row, err := s.repo.FindForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	dto := row.toDTO()
	return &dto, nil
}
