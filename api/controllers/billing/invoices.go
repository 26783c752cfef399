package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gamehost-backend/api/middleware"
	"github.com/angelmondragon/gamehost-backend/api/responses"
	"github.com/angelmondragon/gamehost-backend/api/validators"
	internalbilling "github.com/angelmondragon/gamehost-backend/internal/billing"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

// InvoiceService is the customer-facing slice of billing.Service.
type InvoiceService interface {
	ListInvoices(ctx context.Context, userID uuid.UUID) ([]internalbilling.InvoiceDTO, error)
	GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (*internalbilling.InvoiceDTO, error)
	InitiatePayment(ctx context.Context, userID, invoiceID uuid.UUID) (*internalbilling.PaymentDTO, error)
	SimulatePayment(ctx context.Context, userID, invoiceID uuid.UUID) (*internalbilling.PaymentDTO, error)
}

func InvoiceList(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListInvoices(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func InvoiceDetail(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return withInvoice(logg, func(w http.ResponseWriter, r *http.Request, userID, invoiceID uuid.UUID) {
		invoice, err := svc.GetInvoice(r.Context(), userID, invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	})
}

// PaymentCreate opens a gateway charge for a pending invoice.
func PaymentCreate(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return withInvoice(logg, func(w http.ResponseWriter, r *http.Request, userID, invoiceID uuid.UUID) {
		payment, err := svc.InitiatePayment(r.Context(), userID, invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	})
}

// PaymentSimulate settles the invoice without a gateway. The service refuses
// unless simulation is enabled.
func PaymentSimulate(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return withInvoice(logg, func(w http.ResponseWriter, r *http.Request, userID, invoiceID uuid.UUID) {
		payment, err := svc.SimulatePayment(r.Context(), userID, invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	})
}

func withInvoice(logg *logger.Logger, fn func(http.ResponseWriter, *http.Request, uuid.UUID, uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fn(w, r, userID, invoiceID)
	}
}
