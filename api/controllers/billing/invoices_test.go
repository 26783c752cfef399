package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gamehost-backend/api/middleware"
	internalbilling "github.com/angelmondragon/gamehost-backend/internal/billing"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
)

type stubInvoiceService struct {
	user, invoice uuid.UUID
	simulateErr   error
}

func (s *stubInvoiceService) ListInvoices(_ context.Context, userID uuid.UUID) ([]internalbilling.InvoiceDTO, error) {
	s.user = userID
	return []internalbilling.InvoiceDTO{}, nil
}

func (s *stubInvoiceService) GetInvoice(_ context.Context, userID, invoiceID uuid.UUID) (*internalbilling.InvoiceDTO, error) {
	s.user, s.invoice = userID, invoiceID
	return &internalbilling.InvoiceDTO{ID: invoiceID}, nil
}

func (s *stubInvoiceService) InitiatePayment(_ context.Context, userID, invoiceID uuid.UUID) (*internalbilling.PaymentDTO, error) {
	s.user, s.invoice = userID, invoiceID
	return &internalbilling.PaymentDTO{InvoiceID: invoiceID, Status: enums.PaymentStatusPending}, nil
}

func (s *stubInvoiceService) SimulatePayment(_ context.Context, _, invoiceID uuid.UUID) (*internalbilling.PaymentDTO, error) {
	if s.simulateErr != nil {
		return nil, s.simulateErr
	}
	return &internalbilling.PaymentDTO{InvoiceID: invoiceID, Status: enums.PaymentStatusSuccess}, nil
}

func invoiceRequest(userID uuid.UUID, invoiceID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("invoiceId", invoiceID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(middleware.WithUserID(ctx, userID.String()))
}

func TestPaymentCreateScopesToCaller(t *testing.T) {
	svc := &stubInvoiceService{}
	userID, invoiceID := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	PaymentCreate(svc, nil).ServeHTTP(rec, invoiceRequest(userID, invoiceID.String()))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, userID, svc.user)
	assert.Equal(t, invoiceID, svc.invoice)
}

func TestPaymentSimulateSurfacesDisabledError(t *testing.T) {
	svc := &stubInvoiceService{simulateErr: pkgerrors.New(pkgerrors.CodeForbidden, "payment simulation disabled")}

	rec := httptest.NewRecorder()
	PaymentSimulate(svc, nil).ServeHTTP(rec, invoiceRequest(uuid.New(), uuid.NewString()))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvoiceDetailRejectsBadID(t *testing.T) {
	rec := httptest.NewRecorder()
	InvoiceDetail(&stubInvoiceService{}, nil).ServeHTTP(rec, invoiceRequest(uuid.New(), "INV-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvoiceListRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	InvoiceList(&stubInvoiceService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
