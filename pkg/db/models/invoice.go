package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// Invoice is the payment obligation created alongside an order.
type Invoice struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	InvoiceNumber    string              `gorm:"column:invoice_number;not null;uniqueIndex"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	DueDate          time.Time           `gorm:"column:due_date;not null"`
	Status           enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'pending'"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	PaymentMethod    *string             `gorm:"column:payment_method"`
	PaymentReference *string             `gorm:"column:payment_reference"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
