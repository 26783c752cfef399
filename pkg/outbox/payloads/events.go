package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// ProvisioningReason records why a provisioning job was queued.
type ProvisioningReason string

const (
	ProvisioningReasonPayment  ProvisioningReason = "payment"
	ProvisioningReasonRecovery ProvisioningReason = "recovery"
)

// ProvisioningRequestedEvent is the provisioning job. It is consumed with
// at-least-once delivery, so handlers must be idempotent on OrderID.
type ProvisioningRequestedEvent struct {
	OrderID   uuid.UUID          `json:"order_id"`
	UserID    uuid.UUID          `json:"user_id"`
	InvoiceID uuid.UUID          `json:"invoice_id"`
	Reason    ProvisioningReason `json:"reason"`
}

// InvoicePaidEvent is emitted once per invoice when payment settles.
type InvoicePaidEvent struct {
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	InvoiceNumber    string          `json:"invoice_number"`
	OrderID          uuid.UUID       `json:"order_id"`
	UserID           uuid.UUID       `json:"user_id"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference"`
	PaidAt           time.Time       `json:"paid_at"`
}

// InvoiceClosedEvent covers cancelled and expired invoices.
type InvoiceClosedEvent struct {
	InvoiceID     uuid.UUID           `json:"invoice_id"`
	InvoiceNumber string              `json:"invoice_number"`
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	Status        enums.InvoiceStatus `json:"status"`
	Reason        string              `json:"reason,omitempty"`
}

// OrderCompletedEvent reports a provisioned server.
type OrderCompletedEvent struct {
	OrderID   uuid.UUID  `json:"order_id"`
	UserID    uuid.UUID  `json:"user_id"`
	ServerID  uuid.UUID  `json:"server_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// OrderFailedEvent surfaces a provisioning failure for operators.
type OrderFailedEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	UserID   uuid.UUID `json:"user_id"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
}

// ServerStatusChangedEvent reports suspend/unsuspend actions.
type ServerStatusChangedEvent struct {
	ServerID uuid.UUID          `json:"server_id"`
	OrderID  uuid.UUID          `json:"order_id"`
	UserID   uuid.UUID          `json:"user_id"`
	Status   enums.ServerStatus `json:"status"`
	Reason   string             `json:"reason,omitempty"`
}
