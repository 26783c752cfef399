package enums

import "fmt"

// PaymentStatus is a gateway transaction outcome after normalization. Midtrans
// reports many more states; see midtrans.MapStatus for the folding.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return true
	}
	return false
}

// IsFinal reports whether the gateway has settled the transaction either way.
func (p PaymentStatus) IsFinal() bool {
	return p == PaymentStatusSuccess || p == PaymentStatusFailed
}

// Accepts reports whether a stored status may be overwritten by next. Settled
// transactions never move; pending may move anywhere.
func (p PaymentStatus) Accepts(next PaymentStatus) bool {
	if !next.IsValid() {
		return false
	}
	return !p.IsFinal() || p == next
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	if s := PaymentStatus(value); s.IsValid() {
		return s, nil
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
