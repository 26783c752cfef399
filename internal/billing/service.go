package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/internal/orders"
	"github.com/angelmondragon/gamehost-backend/pkg/db"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/midtrans"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

// ErrUnknownReference marks a notification for an invoice number we never issued.
var ErrUnknownReference = pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment reference")

// ErrAmountMismatch marks a success report whose gross amount differs from the
// invoice amount. Nothing is applied.
var ErrAmountMismatch = pkgerrors.New(pkgerrors.CodeConflict, "gross amount does not match invoice amount")

// Service collects payments and reconciles gateway notifications.
type Service interface {
	InitiatePayment(ctx context.Context, userID, invoiceID uuid.UUID) (*PaymentDTO, error)
	SimulatePayment(ctx context.Context, userID, invoiceID uuid.UUID) (*PaymentDTO, error)
	ApplyGatewayNotification(ctx context.Context, n GatewayNotification) (*ApplyResult, error)
	ListInvoices(ctx context.Context, userID uuid.UUID) ([]InvoiceDTO, error)
	GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (*InvoiceDTO, error)
	ExpireOverdueInvoices(ctx context.Context, limit int) (int, error)
	RefreshPendingPayments(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type ServiceParams struct {
	Repo            Repository
	Orders          orders.Repository
	Users           UserLookup
	Gateway         Gateway
	Outbox          outboxEmitter
	TxRunner        txRunner
	Logger          *logger.Logger
	Metrics         paymentMetrics
	AllowSimulation bool
}

type service struct {
	repo            Repository
	orders          orders.Repository
	users           UserLookup
	gateway         Gateway
	outbox          outboxEmitter
	tx              txRunner
	logg            *logger.Logger
	metrics         paymentMetrics
	allowSimulation bool
	now             func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("billing repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("user lookup required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:            params.Repo,
		orders:          params.Orders,
		users:           params.Users,
		gateway:         params.Gateway,
		outbox:          params.Outbox,
		tx:              params.TxRunner,
		logg:            params.Logger,
		metrics:         params.Metrics,
		allowSimulation: params.AllowSimulation,
		now:             time.Now,
	}, nil
}

// loadPayable returns the caller's invoice if a payment may still be collected.
func (s *service) loadPayable(ctx context.Context, userID, invoiceID uuid.UUID) (*invoiceRow, error) {
	row, err := s.repo.FindInvoiceForUser(ctx, userID, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	switch row.Status {
	case enums.InvoiceStatusPaid:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice already paid")
	case enums.InvoiceStatusPending:
		return row, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("invoice is %s and cannot be paid", row.Status))
	}
}

// InitiatePayment opens a gateway transaction for the invoice. Invoice and
// order state only change once the gateway confirms.
func (s *service) InitiatePayment(ctx context.Context, userID, invoiceID uuid.UUID) (*PaymentDTO, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	invoice, err := s.loadPayable(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payer")
	}

	first, last := pterodactyl.SplitName(user.FullName)
	resp, err := s.gateway.Charge(ctx, midtrans.ChargeRequest{
		OrderID:     invoice.InvoiceNumber,
		GrossAmount: invoice.Amount,
		Customer:    midtrans.CustomerDetails{FirstName: first, LastName: last, Email: user.Email},
		Items: []midtrans.ItemDetail{{
			ID:       invoice.OrderID.String(),
			Name:     truncateName(fmt.Sprintf("%s - %s", invoice.PackageName, invoice.ServerName)),
			Price:    invoice.Amount,
			Quantity: 1,
		}},
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no transaction id")
	}

	status := midtrans.MapStatus(resp.TransactionStatus, resp.FraudStatus)
	txn := models.PaymentTransaction{
		InvoiceID:     invoice.ID,
		TransactionID: resp.TransactionID,
		Gateway:       enums.PaymentGatewayMidtrans,
		Amount:        invoice.Amount,
		Status:        enums.PaymentStatusPending,
		PaymentType:   optionalString(resp.PaymentType),
		RawResponse:   resp.Raw,
	}
	if err := s.repo.CreateTransaction(ctx, &txn); err != nil && !db.IsUniqueViolation(err, "transaction_id") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment transaction")
	}

	logCtx := s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber)
	s.logg.Info(s.logg.WithField(logCtx, "transaction_id", resp.TransactionID), "payment initiated")

	out := &PaymentDTO{
		InvoiceID:       invoice.ID,
		InvoiceNumber:   invoice.InvoiceNumber,
		TransactionID:   resp.TransactionID,
		Status:          enums.PaymentStatusPending,
		InvoiceStatus:   invoice.Status,
		Amount:          invoice.Amount,
		PaymentType:     resp.PaymentType,
		GatewayResponse: resp.Raw,
	}
	// Some channels settle synchronously; apply them through the same path as webhooks.
	if status != enums.PaymentStatusPending {
		result, err := s.ApplyGatewayNotification(ctx, GatewayNotification{
			Gateway:           enums.PaymentGatewayMidtrans,
			Reference:         invoice.InvoiceNumber,
			ExternalID:        resp.TransactionID,
			TransactionStatus: resp.TransactionStatus,
			FraudStatus:       resp.FraudStatus,
			PaymentType:       resp.PaymentType,
			Raw:               resp.Raw,
		})
		if err != nil {
			return nil, err
		}
		out.Status = result.PaymentStatus
		out.InvoiceStatus = result.InvoiceStatus
	}
	return out, nil
}

// SimulatePayment settles the invoice without a gateway, through the same
// guarded transition as a real settlement notification.
func (s *service) SimulatePayment(ctx context.Context, userID, invoiceID uuid.UUID) (*PaymentDTO, error) {
	if !s.allowSimulation {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment simulation disabled")
	}
	invoice, err := s.loadPayable(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	externalID := fmt.Sprintf("SIM-%d", s.now().UnixMilli())
	amount := invoice.Amount
	result, err := s.ApplyGatewayNotification(ctx, GatewayNotification{
		Gateway:           enums.PaymentGatewaySimulation,
		Reference:         invoice.InvoiceNumber,
		ExternalID:        externalID,
		TransactionStatus: "settlement",
		PaymentType:       string(enums.PaymentGatewaySimulation),
		GrossAmount:       &amount,
	})
	if err != nil {
		return nil, err
	}
	return &PaymentDTO{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		TransactionID: externalID,
		Status:        result.PaymentStatus,
		InvoiceStatus: result.InvoiceStatus,
		Amount:        invoice.Amount,
		PaymentType:   string(enums.PaymentGatewaySimulation),
	}, nil
}

func (s *service) ListInvoices(ctx context.Context, userID uuid.UUID) ([]InvoiceDTO, error) {
	rows, err := s.repo.ListInvoicesForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}
	out := make([]InvoiceDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDTO())
	}
	return out, nil
}

func (s *service) GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	row, err := s.repo.FindInvoiceForUser(ctx, userID, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	dto := row.toDTO()
	return &dto, nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// Midtrans rejects item names longer than 50 characters.
func truncateName(name string) string {
	const limit = 50
	if utf8.RuneCountInString(name) <= limit {
		return name
	}
	runes := []rune(name)
	return string(runes[:limit])
}
