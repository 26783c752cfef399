package enums

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending: {OrderStatusActive, OrderStatusCancelled},
		OrderStatusActive:  {OrderStatusCompleted, OrderStatusFailed},
	}
	for _, from := range validOrderStatuses {
		for _, to := range validOrderStatuses {
			want := false
			for _, candidate := range allowed[from] {
				if candidate == to {
					want = true
				}
			}
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	next, err := OrderStatusPending.TransitionTo(OrderStatusActive)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusActive, next)

	_, err = OrderStatusCompleted.TransitionTo(OrderStatusActive)
	require.Error(t, err)

	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusActive.IsTerminal())
}

func TestInvoiceStatusTransitions(t *testing.T) {
	assert.True(t, InvoiceStatusPending.CanTransitionTo(InvoiceStatusPaid))
	assert.True(t, InvoiceStatusPending.CanTransitionTo(InvoiceStatusCancelled))
	assert.True(t, InvoiceStatusPending.CanTransitionTo(InvoiceStatusExpired))
	assert.False(t, InvoiceStatusPaid.CanTransitionTo(InvoiceStatusPaid))
	assert.False(t, InvoiceStatusPaid.CanTransitionTo(InvoiceStatusCancelled))
	assert.False(t, InvoiceStatusCancelled.CanTransitionTo(InvoiceStatusPaid))

	assert.True(t, InvoiceStatusPending.IsPayable())
	assert.False(t, InvoiceStatusExpired.IsPayable())

	_, err := InvoiceStatusExpired.TransitionTo(InvoiceStatusPaid)
	require.Error(t, err)
}

func TestServerStatusTransitions(t *testing.T) {
	assert.True(t, ServerStatusActive.CanTransitionTo(ServerStatusSuspended))
	assert.True(t, ServerStatusSuspended.CanTransitionTo(ServerStatusActive))
	assert.False(t, ServerStatusFailed.CanTransitionTo(ServerStatusActive))
}

func TestParseHelpers(t *testing.T) {
	status, err := ParseOrderStatus("active")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusActive, status)

	_, err = ParseOrderStatus("shipped")
	require.Error(t, err)

	cycle, err := ParseBillingCycle("quarterly")
	require.NoError(t, err)
	assert.Equal(t, BillingCycleQuarterly, cycle)

	_, err = ParsePaymentStatus("settlement")
	require.Error(t, err)

	_, err = ParseOutboxEventType(string(EventProvisioningRequested))
	require.NoError(t, err)
}

func TestBillingCycleAddTo(t *testing.T) {
	start := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.February, 15, 10, 0, 0, 0, time.UTC), BillingCycleMonthly.AddTo(start))
	assert.Equal(t, time.Date(2026, time.April, 15, 10, 0, 0, 0, time.UTC), BillingCycleQuarterly.AddTo(start))
	assert.Equal(t, time.Date(2027, time.January, 15, 10, 0, 0, 0, time.UTC), BillingCycleYearly.AddTo(start))
	assert.Equal(t, BillingCycleMonthly.AddTo(start), BillingCycle("weekly").AddTo(start))
}

func TestDLQReason(t *testing.T) {
	reason, err := ParseDLQReason("max_attempts")
	require.NoError(t, err)
	assert.True(t, reason.Replayable())
	assert.False(t, DLQReasonNonRetryable.Replayable())

	_, err = ParseDLQReason("gave_up")
	require.Error(t, err)
}

func TestPaymentStatusAccepts(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentStatusPending, PaymentStatusSuccess, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusPending, true},
		{PaymentStatusSuccess, PaymentStatusSuccess, true},
		{PaymentStatusSuccess, PaymentStatusFailed, false},
		{PaymentStatusFailed, PaymentStatusPending, false},
		{PaymentStatusPending, PaymentStatus("settlement"), false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.from.Accepts(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
