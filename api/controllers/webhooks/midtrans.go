package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/api/responses"
	"github.com/angelmondragon/gamehost-backend/internal/billing"
	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/midtrans"
)

const maxWebhookBody = 64 << 10

type notificationApplier interface {
	ApplyGatewayNotification(ctx context.Context, n billing.GatewayNotification) (*billing.ApplyResult, error)
}

type rejectionMetrics interface {
	IncWebhookRejected(reason string)
}

// MidtransWebhook verifies and applies a Midtrans HTTP notification. Any
// non-2xx answer makes Midtrans redeliver, so notifications for references we
// never issued, or whose amount does not match the invoice, are acknowledged
// and dropped.
func MidtransWebhook(svc notificationApplier, cfg config.MidtransConfig, metrics rejectionMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reject := func(reason string, err error) {
			if metrics != nil {
				metrics.IncWebhookRejected(reason)
			}
			responses.WriteError(ctx, logg, w, err)
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			reject("read", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read notification"))
			return
		}
		n, err := midtrans.ParseNotification(body)
		if err != nil {
			reject("malformed", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(logg.WithInvoiceNumber(ctx, n.OrderID), map[string]any{
				"transaction_id":     n.TransactionID,
				"transaction_status": n.TransactionStatus,
			})
		}
		if cfg.VerifySignature && !midtrans.VerifySignature(n, cfg.ServerKey) {
			reject("signature", pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid notification signature"))
			return
		}

		notification, err := toGatewayNotification(n)
		if err != nil {
			reject("gross_amount", err)
			return
		}

		result, err := svc.ApplyGatewayNotification(ctx, notification)
		switch {
		case errors.Is(err, billing.ErrUnknownReference):
			drop(ctx, w, logg, metrics, "unknown_reference", "midtrans notification for unknown invoice acknowledged", err)
			return
		case errors.Is(err, billing.ErrAmountMismatch):
			drop(ctx, w, logg, metrics, "amount_mismatch", "midtrans notification with mismatched amount acknowledged", err)
			return
		case err != nil:
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"payment_status": result.PaymentStatus,
				"invoice_status": result.InvoiceStatus,
				"transitioned":   result.Transitioned,
			}), "midtrans notification applied")
		}
		responses.WriteSuccess(w, result)
	}
}

// drop acknowledges a notification that will never apply so the gateway stops
// redelivering it.
func drop(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, metrics rejectionMetrics, reason, msg string, err error) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{"reason": reason, "error": err.Error()}), msg)
	}
	if metrics != nil {
		metrics.IncWebhookRejected(reason)
	}
	responses.WriteSuccess(w, map[string]string{"status": "ignored"})
}

func toGatewayNotification(n midtrans.Notification) (billing.GatewayNotification, error) {
	out := billing.GatewayNotification{
		Gateway:           enums.PaymentGatewayMidtrans,
		Reference:         n.OrderID,
		ExternalID:        n.TransactionID,
		TransactionStatus: n.TransactionStatus,
		FraudStatus:       n.FraudStatus,
		PaymentType:       n.PaymentType,
		Raw:               n.Raw,
	}
	if raw := strings.TrimSpace(n.GrossAmount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gross_amount")
		}
		out.GrossAmount = &amount
	}
	return out, nil
}
