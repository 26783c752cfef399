package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// GatewayNotification is a normalized payment status report. Reference is
// the invoice number the transaction was created with.
type GatewayNotification struct {
	Gateway           enums.PaymentGateway
	Reference         string
	ExternalID        string
	TransactionStatus string
	FraudStatus       string
	PaymentType       string
	GrossAmount       *decimal.Decimal
	Raw               json.RawMessage
}

// ApplyResult describes what a notification changed.
type ApplyResult struct {
	InvoiceID          uuid.UUID           `json:"invoice_id"`
	OrderID            uuid.UUID           `json:"order_id"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
	InvoiceStatus      enums.InvoiceStatus `json:"invoice_status"`
	Transitioned       bool                `json:"transitioned"`
	ProvisioningQueued bool                `json:"provisioning_queued"`
}

// PaymentDTO is returned when a payment is initiated or simulated.
type PaymentDTO struct {
	InvoiceID       uuid.UUID           `json:"invoice_id"`
	InvoiceNumber   string              `json:"invoice_number"`
	TransactionID   string              `json:"transaction_id"`
	Status          enums.PaymentStatus `json:"status"`
	InvoiceStatus   enums.InvoiceStatus `json:"invoice_status"`
	Amount          decimal.Decimal     `json:"amount"`
	PaymentType     string              `json:"payment_type,omitempty"`
	GatewayResponse json.RawMessage     `json:"gateway_response,omitempty"`
}

// InvoiceDTO is the invoice view returned to customers.
type InvoiceDTO struct {
	ID               uuid.UUID           `json:"id"`
	OrderID          uuid.UUID           `json:"order_id"`
	InvoiceNumber    string              `json:"invoice_number"`
	Amount           decimal.Decimal     `json:"amount"`
	DueDate          time.Time           `json:"due_date"`
	Status           enums.InvoiceStatus `json:"status"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	PaymentMethod    *string             `json:"payment_method,omitempty"`
	PaymentReference *string             `json:"payment_reference,omitempty"`
	ServerName       string              `json:"server_name"`
	PackageName      string              `json:"package_name"`
	CreatedAt        time.Time           `json:"created_at"`
}

type invoiceRow struct {
	models.Invoice
	ServerName  string `gorm:"column:server_name"`
	PackageName string `gorm:"column:package_name"`
}

type staleTransaction struct {
	models.PaymentTransaction
	InvoiceNumber string `gorm:"column:invoice_number"`
}

func (r invoiceRow) toDTO() InvoiceDTO {
	return InvoiceDTO{
		ID:               r.ID,
		OrderID:          r.OrderID,
		InvoiceNumber:    r.InvoiceNumber,
		Amount:           r.Amount,
		DueDate:          r.DueDate,
		Status:           r.Status,
		PaidAt:           r.PaidAt,
		PaymentMethod:    r.PaymentMethod,
		PaymentReference: r.PaymentReference,
		ServerName:       r.ServerName,
		PackageName:      r.PackageName,
		CreatedAt:        r.CreatedAt,
	}
}
