package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// PaymentTransaction records one gateway interaction for an invoice. The
// external TransactionID is the idempotency key for webhook delivery.
type PaymentTransaction struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID     uuid.UUID            `gorm:"column:invoice_id;type:uuid;not null"`
	TransactionID string               `gorm:"column:transaction_id;not null;uniqueIndex"`
	Gateway       enums.PaymentGateway `gorm:"column:payment_gateway;not null"`
	Amount        decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	Status        enums.PaymentStatus  `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	PaymentType   *string              `gorm:"column:payment_type"`
	RawResponse   json.RawMessage      `gorm:"column:raw_response;type:jsonb"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
