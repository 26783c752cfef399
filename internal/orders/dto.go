package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// CreateOrderInput is the validated request to buy a package.
type CreateOrderInput struct {
	UserID     uuid.UUID
	PackageID  uuid.UUID
	ServerName string
}

// InvoiceSummary is the invoice attached to an order response.
type InvoiceSummary struct {
	ID            uuid.UUID           `json:"id"`
	InvoiceNumber string              `json:"invoice_number"`
	Amount        decimal.Decimal     `json:"amount"`
	DueDate       time.Time           `json:"due_date"`
	Status        enums.InvoiceStatus `json:"status"`
}

// OrderDTO is the order shape returned to clients.
type OrderDTO struct {
	ID                uuid.UUID         `json:"id"`
	PackageID         uuid.UUID         `json:"package_id"`
	PackageName       string            `json:"package_name,omitempty"`
	ServerName        string            `json:"server_name"`
	TotalPrice        decimal.Decimal   `json:"total_price"`
	Status            enums.OrderStatus `json:"status"`
	ProvisionAttempts int               `json:"provision_attempts"`
	LastError         *string           `json:"last_error,omitempty"`
	Invoice           *InvoiceSummary   `json:"invoice,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// orderRow is the joined read model for order listings.
type orderRow struct {
	models.Order
	PackageName   string               `gorm:"column:package_name"`
	InvoiceID     *uuid.UUID           `gorm:"column:invoice_id"`
	InvoiceNumber *string              `gorm:"column:invoice_number"`
	InvoiceAmount decimal.NullDecimal  `gorm:"column:invoice_amount"`
	InvoiceDue    *time.Time           `gorm:"column:invoice_due_date"`
	InvoiceStatus *enums.InvoiceStatus `gorm:"column:invoice_status"`
}

func toDTO(order models.Order, invoice *models.Invoice, packageName string) OrderDTO {
	dto := OrderDTO{
		ID:                order.ID,
		PackageID:         order.PackageID,
		PackageName:       packageName,
		ServerName:        order.ServerName,
		TotalPrice:        order.TotalPrice,
		Status:            order.Status,
		ProvisionAttempts: order.ProvisionAttempts,
		LastError:         order.LastError,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
	if invoice != nil {
		dto.Invoice = &InvoiceSummary{
			ID:            invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			Amount:        invoice.Amount,
			DueDate:       invoice.DueDate,
			Status:        invoice.Status,
		}
	}
	return dto
}

func (r orderRow) toDTO() OrderDTO {
	var invoice *models.Invoice
	if r.InvoiceID != nil {
		invoice = &models.Invoice{ID: *r.InvoiceID}
		if r.InvoiceNumber != nil {
			invoice.InvoiceNumber = *r.InvoiceNumber
		}
		if r.InvoiceAmount.Valid {
			invoice.Amount = r.InvoiceAmount.Decimal
		}
		if r.InvoiceDue != nil {
			invoice.DueDate = *r.InvoiceDue
		}
		if r.InvoiceStatus != nil {
			invoice.Status = *r.InvoiceStatus
		}
	}
	return toDTO(r.Order, invoice, r.PackageName)
}
