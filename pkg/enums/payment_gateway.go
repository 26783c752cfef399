package enums

// PaymentGateway names the system that processed a payment transaction.
type PaymentGateway string

const (
	PaymentGatewayMidtrans   PaymentGateway = "midtrans"
	PaymentGatewaySimulation PaymentGateway = "simulation"
)

// String implements fmt.Stringer.
func (g PaymentGateway) String() string {
	return string(g)
}
