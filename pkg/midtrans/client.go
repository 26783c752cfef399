package midtrans

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

const (
	chargePath      = "/v2/charge"
	defaultTimeout  = 15 * time.Second
	maxResponseBody = 1 << 20
)

var (
	errServerKeyRequired = errors.New("midtrans server key is required")
	errLoggerRequired    = errors.New("midtrans logger is required")
)

// DefaultEnabledPayments mirrors the channels offered at checkout.
var DefaultEnabledPayments = []string{"credit_card", "gopay", "shopeepay", "bank_transfer"}

// Client talks to the Midtrans Core API with basic auth on the server key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	serverKey  string
	logger     *logger.Logger
}

// NewClient validates the credentials and builds a Core API client.
func NewClient(ctx context.Context, cfg config.MidtransConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" {
		return nil, errServerKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL(), "/"),
		serverKey:  serverKey,
		logger:     logg,
	}
	logg.Info(logg.WithField(ctx, "production", cfg.IsProduction), "midtrans client initialized")
	return c, nil
}

// ServerKey returns the key used for webhook signature checks.
func (c *Client) ServerKey() string {
	if c == nil {
		return ""
	}
	return c.serverKey
}

// CustomerDetails identifies the payer.
type CustomerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ItemDetail is one invoice line.
type ItemDetail struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// ChargeRequest creates a transaction for an invoice. OrderID carries the
// invoice number and comes back unchanged in notifications.
type ChargeRequest struct {
	OrderID         string
	GrossAmount     decimal.Decimal
	Customer        CustomerDetails
	Items           []ItemDetail
	PaymentType     string
	EnabledPayments []string
}

type transactionDetails struct {
	OrderID     string      `json:"order_id"`
	GrossAmount json.Number `json:"gross_amount"`
}

type itemDetailWire struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
}

type chargePayload struct {
	PaymentType        string             `json:"payment_type,omitempty"`
	TransactionDetails transactionDetails `json:"transaction_details"`
	CustomerDetails    CustomerDetails    `json:"customer_details"`
	ItemDetails        []itemDetailWire   `json:"item_details,omitempty"`
	EnabledPayments    []string           `json:"enabled_payments,omitempty"`
}

// TransactionResponse is the subset of the charge/status response we persist.
type TransactionResponse struct {
	StatusCode        string          `json:"status_code"`
	StatusMessage     string          `json:"status_message"`
	TransactionID     string          `json:"transaction_id"`
	OrderID           string          `json:"order_id"`
	GrossAmount       string          `json:"gross_amount"`
	PaymentType       string          `json:"payment_type"`
	TransactionStatus string          `json:"transaction_status"`
	FraudStatus       string          `json:"fraud_status"`
	TransactionTime   string          `json:"transaction_time"`
	Raw               json.RawMessage `json:"-"`
}

// Charge creates a remote transaction.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*TransactionResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "midtrans order id is required")
	}
	if !req.GrossAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "midtrans gross amount must be positive")
	}
	enabled := req.EnabledPayments
	if len(enabled) == 0 && req.PaymentType == "" {
		enabled = DefaultEnabledPayments
	}
	payload := chargePayload{
		PaymentType: req.PaymentType,
		TransactionDetails: transactionDetails{
			OrderID:     req.OrderID,
			GrossAmount: json.Number(req.GrossAmount.String()),
		},
		CustomerDetails: req.Customer,
		EnabledPayments: enabled,
	}
	for _, item := range req.Items {
		payload.ItemDetails = append(payload.ItemDetails, itemDetailWire{
			ID:       item.ID,
			Name:     item.Name,
			Price:    json.Number(item.Price.String()),
			Quantity: item.Quantity,
		})
	}

	c.log(ctx, "request", "charge", map[string]any{"order_id": req.OrderID, "gross_amount": req.GrossAmount.String()})
	resp, err := c.do(ctx, http.MethodPost, chargePath, payload)
	if err != nil {
		c.log(ctx, "error", "charge", map[string]any{"order_id": req.OrderID, "error": err.Error()})
		return nil, err
	}
	c.log(ctx, "response", "charge", map[string]any{
		"order_id":           resp.OrderID,
		"transaction_id":     resp.TransactionID,
		"transaction_status": resp.TransactionStatus,
	})
	return resp, nil
}

// Status fetches the current state of a transaction by order id or transaction id.
func (c *Client) Status(ctx context.Context, reference string) (*TransactionResponse, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "midtrans reference is required")
	}
	path := fmt.Sprintf("/v2/%s/status", url.PathEscape(reference))
	c.log(ctx, "request", "status", map[string]any{"reference": reference})
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		c.log(ctx, "error", "status", map[string]any{"reference": reference, "error": err.Error()})
		return nil, err
	}
	c.log(ctx, "response", "status", map[string]any{
		"reference":          reference,
		"transaction_status": resp.TransactionStatus,
	})
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*TransactionResponse, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode midtrans request")
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build midtrans request")
	}
	httpReq.SetBasicAuth(c.serverKey, "")
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "midtrans request failed")
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read midtrans response")
	}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return nil, mapHTTPError(httpResp.StatusCode, raw)
	}

	var out TransactionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode midtrans response")
	}
	// Midtrans reports business failures with HTTP 200 and a 4xx/5xx status_code.
	if code := statusCodeInt(out.StatusCode); code >= http.StatusBadRequest {
		return nil, mapHTTPError(code, raw)
	}
	out.Raw = json.RawMessage(raw)
	return &out, nil
}

func mapHTTPError(status int, body []byte) error {
	cause := pkgerrors.NewUpstreamError("midtrans", status, body)
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "midtrans rejected credentials").WithRetryable(false)
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "midtrans transaction not found")
	case status == http.StatusConflict || status == http.StatusNotAcceptable:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "midtrans transaction already exists")
	case status >= http.StatusInternalServerError:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "midtrans unavailable")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "midtrans request rejected").WithRetryable(false)
	}
}

func statusCodeInt(code string) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(code), "%d", &n); err != nil {
		return 0
	}
	return n
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("midtrans %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("midtrans %s", phase))
	}
}
