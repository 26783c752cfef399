package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

var errNotificationIncomplete = errors.New("midtrans notification missing order_id or transaction_status")

// Notification is the HTTP notification body Midtrans posts on status changes.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	SignatureKey      string `json:"signature_key"`
	TransactionTime   string `json:"transaction_time"`

	Raw json.RawMessage `json:"-"`
}

// ParseNotification decodes a webhook body, keeping the raw bytes for auditing.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, err
	}
	if strings.TrimSpace(n.OrderID) == "" || strings.TrimSpace(n.TransactionStatus) == "" {
		return Notification{}, errNotificationIncomplete
	}
	n.Raw = append(json.RawMessage(nil), body...)
	return n, nil
}

// Signature computes sha512(order_id + status_code + gross_amount + server_key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature reports whether the notification was signed with serverKey.
func VerifySignature(n Notification, serverKey string) bool {
	if serverKey == "" || n.SignatureKey == "" {
		return false
	}
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) == 1
}

// MapStatus folds Midtrans transaction and fraud statuses into a payment outcome.
// Unrecognized combinations stay pending so nothing is marked paid by accident.
func MapStatus(transactionStatus, fraudStatus string) enums.PaymentStatus {
	tx := strings.ToLower(strings.TrimSpace(transactionStatus))
	fraud := strings.ToLower(strings.TrimSpace(fraudStatus))
	switch tx {
	case "capture", "settlement":
		if fraud == "" || fraud == "accept" {
			return enums.PaymentStatusSuccess
		}
		return enums.PaymentStatusPending
	case "pending":
		return enums.PaymentStatusPending
	case "deny", "cancel", "expire":
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}
