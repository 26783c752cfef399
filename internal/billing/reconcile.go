package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/internal/orders"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/midtrans"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
)

// ApplyGatewayNotification reconciles a gateway status report with the
// invoice and order it references. Replays converge on the same state and
// queue at most one provisioning job.
func (s *service) ApplyGatewayNotification(ctx context.Context, n GatewayNotification) (*ApplyResult, error) {
	if n.Reference == "" || n.ExternalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification reference and transaction id are required")
	}
	if n.Gateway == "" {
		n.Gateway = enums.PaymentGatewayMidtrans
	}
	status := midtrans.MapStatus(n.TransactionStatus, n.FraudStatus)
	ctx = s.logg.WithInvoiceNumber(ctx, n.Reference)

	var result *ApplyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.applyNotification(ctx, tx, n, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncPaymentOutcome(string(n.Gateway), string(result.PaymentStatus))
	}
	return result, nil
}

func (s *service) applyNotification(ctx context.Context, tx *gorm.DB, n GatewayNotification, status enums.PaymentStatus) (*ApplyResult, error) {
	repo := s.repo.WithTx(tx)
	orderRepo := s.orders.WithTx(tx)

	invoice, err := repo.FindInvoiceByNumber(ctx, n.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownReference
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}

	effective, err := s.upsertTransaction(ctx, repo, invoice, n, status)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{
		InvoiceID:     invoice.ID,
		OrderID:       invoice.OrderID,
		PaymentStatus: effective,
		InvoiceStatus: invoice.Status,
	}

	switch effective {
	case enums.PaymentStatusSuccess:
		return result, s.settle(ctx, tx, repo, orderRepo, invoice, n, result)
	case enums.PaymentStatusFailed:
		return result, s.closeInvoice(ctx, tx, repo, orderRepo, invoice, enums.InvoiceStatusCancelled, "payment "+n.TransactionStatus, result)
	default:
		return result, nil
	}
}

// upsertTransaction records the gateway report and returns the status the
// invoice should act on. A final status is never overwritten.
func (s *service) upsertTransaction(ctx context.Context, repo Repository, invoice *models.Invoice, n GatewayNotification, status enums.PaymentStatus) (enums.PaymentStatus, error) {
	existing, err := repo.FindTransaction(ctx, n.ExternalID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
	}

	if existing == nil {
		amount := invoice.Amount
		if n.GrossAmount != nil {
			amount = *n.GrossAmount
		}
		txn := models.PaymentTransaction{
			InvoiceID:     invoice.ID,
			TransactionID: n.ExternalID,
			Gateway:       n.Gateway,
			Amount:        amount,
			Status:        status,
			PaymentType:   optionalString(n.PaymentType),
			RawResponse:   n.Raw,
		}
		if err := repo.CreateTransaction(ctx, &txn); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment transaction")
		}
		return status, nil
	}

	if existing.InvoiceID != invoice.ID {
		return "", pkgerrors.New(pkgerrors.CodeIntegrity, "transaction belongs to a different invoice")
	}
	if !existing.Status.Accepts(status) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"transaction_id": n.ExternalID,
			"stored_status":  existing.Status,
			"reported":       status,
		}), "ignoring status change on settled transaction")
		return existing.Status, nil
	}

	updates := map[string]any{"status": status}
	if pt := optionalString(n.PaymentType); pt != nil {
		updates["payment_type"] = *pt
	}
	if len(n.Raw) > 0 {
		updates["raw_response"] = n.Raw
	}
	if err := repo.UpdateTransaction(ctx, existing.ID, updates); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment transaction")
	}
	return status, nil
}

func (s *service) settle(ctx context.Context, tx *gorm.DB, repo Repository, orderRepo orders.Repository, invoice *models.Invoice, n GatewayNotification, result *ApplyResult) error {
	switch invoice.Status {
	case enums.InvoiceStatusPaid:
		return nil
	case enums.InvoiceStatusCancelled, enums.InvoiceStatusExpired:
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"transaction_id": n.ExternalID,
			"invoice_status": invoice.Status,
		}), "payment settled for a closed invoice, manual refund required")
		return nil
	}
	if n.GrossAmount != nil && !n.GrossAmount.Equal(invoice.Amount) {
		return fmt.Errorf("%w: gross %s, invoice %s", ErrAmountMismatch, n.GrossAmount.StringFixed(2), invoice.Amount.StringFixed(2))
	}

	paidAt := s.now().UTC()
	method := n.PaymentType
	if method == "" {
		method = string(n.Gateway)
	}
	moved, err := repo.TransitionInvoice(ctx, invoice.ID, enums.InvoiceStatusPending, enums.InvoiceStatusPaid, map[string]any{
		"paid_at":           paidAt,
		"payment_method":    method,
		"payment_reference": n.ExternalID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark invoice paid")
	}
	if !moved {
		// A concurrent delivery settled it first.
		return nil
	}
	result.InvoiceStatus = enums.InvoiceStatusPaid
	result.Transitioned = true

	order, err := s.activateOrder(ctx, orderRepo, invoice.OrderID)
	if err != nil {
		return err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvoicePaid,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Data: payloads.InvoicePaidEvent{
			InvoiceID:        invoice.ID,
			InvoiceNumber:    invoice.InvoiceNumber,
			OrderID:          invoice.OrderID,
			UserID:           invoice.UserID,
			Amount:           invoice.Amount,
			PaymentMethod:    method,
			PaymentReference: n.ExternalID,
			PaidAt:           paidAt,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit invoice paid")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProvisioningRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.ProvisioningRequestedEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			InvoiceID: invoice.ID,
			Reason:    payloads.ProvisioningReasonPayment,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue provisioning")
	}
	result.ProvisioningQueued = true

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "invoice paid, provisioning queued")
	return nil
}

// activateOrder moves the order pending->active. An order already past
// pending is accepted only when it is on the provisioning path.
func (s *service) activateOrder(ctx context.Context, orderRepo orders.Repository, orderID uuid.UUID) (*models.Order, error) {
	moved, err := orderRepo.TransitionStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusActive, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate order")
	}
	order, err := orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "invoice references a missing order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !moved && order.Status != enums.OrderStatusActive && order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, fmt.Sprintf("paid invoice for order in status %s", order.Status))
	}
	return order, nil
}

// closeInvoice cancels or expires a pending invoice together with its order.
func (s *service) closeInvoice(ctx context.Context, tx *gorm.DB, repo Repository, orderRepo orders.Repository, invoice *models.Invoice, to enums.InvoiceStatus, reason string, result *ApplyResult) error {
	moved, err := repo.TransitionInvoice(ctx, invoice.ID, enums.InvoiceStatusPending, to, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close invoice")
	}
	if !moved {
		return nil
	}
	if result != nil {
		result.InvoiceStatus = to
		result.Transitioned = true
	}
	if _, err := orderRepo.TransitionStatus(ctx, invoice.OrderID, enums.OrderStatusPending, enums.OrderStatusCancelled, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}

	eventType := enums.EventInvoiceCancelled
	if to == enums.InvoiceStatusExpired {
		eventType = enums.EventInvoiceExpired
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Data: payloads.InvoiceClosedEvent{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			OrderID:       invoice.OrderID,
			UserID:        invoice.UserID,
			Status:        to,
			Reason:        reason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit invoice closed")
	}
	s.logg.Info(s.logg.WithField(ctx, "invoice_status", to), "invoice closed")
	return nil
}

// ExpireOverdueInvoices closes pending invoices whose due date has passed.
func (s *service) ExpireOverdueInvoices(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()
	invoices, err := s.repo.ListOverdueInvoices(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue invoices")
	}
	expired := 0
	var errs error
	for i := range invoices {
		invoice := invoices[i]
		result := &ApplyResult{}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.closeInvoice(s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber), tx, s.repo.WithTx(tx), s.orders.WithTx(tx), &invoice, enums.InvoiceStatusExpired, "past due date", result)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", invoice.InvoiceNumber, err))
			continue
		}
		if result.Transitioned {
			expired++
		}
	}
	return expired, errs
}

// RefreshPendingPayments asks the gateway for the current status of pending
// transactions older than olderThan and applies any change. It covers
// notifications that never arrived.
func (s *service) RefreshPendingPayments(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if s.gateway == nil {
		return 0, nil
	}
	before := s.now().UTC().Add(-olderThan)
	stale, err := s.repo.ListStalePendingTransactions(ctx, enums.PaymentGatewayMidtrans, before, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending transactions")
	}
	changed := 0
	var errs error
	for _, txn := range stale {
		resp, err := s.gateway.Status(ctx, txn.TransactionID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("status %s: %w", txn.TransactionID, err))
			continue
		}
		if midtrans.MapStatus(resp.TransactionStatus, resp.FraudStatus) == enums.PaymentStatusPending {
			continue
		}
		n := GatewayNotification{
			Gateway:           enums.PaymentGatewayMidtrans,
			Reference:         txn.InvoiceNumber,
			ExternalID:        txn.TransactionID,
			TransactionStatus: resp.TransactionStatus,
			FraudStatus:       resp.FraudStatus,
			PaymentType:       resp.PaymentType,
			Raw:               resp.Raw,
		}
		if resp.GrossAmount != "" {
			if amount, perr := decimal.NewFromString(resp.GrossAmount); perr == nil {
				n.GrossAmount = &amount
			}
		}
		if _, err := s.ApplyGatewayNotification(ctx, n); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("apply %s: %w", txn.TransactionID, err))
			continue
		}
		changed++
	}
	return changed, errs
}
