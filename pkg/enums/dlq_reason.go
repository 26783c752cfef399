package enums

import "fmt"

// DLQReason records why the outbox publisher parked an event.
type DLQReason string

const (
	// DLQReasonMaxAttempts means every publish attempt failed with a transient error.
	DLQReasonMaxAttempts DLQReason = "max_attempts"
	// DLQReasonNonRetryable means the event could never be published as stored.
	DLQReasonNonRetryable DLQReason = "non_retryable"
)

func (r DLQReason) String() string { return string(r) }

func (r DLQReason) IsValid() bool {
	switch r {
	case DLQReasonMaxAttempts, DLQReasonNonRetryable:
		return true
	}
	return false
}

// Replayable reports whether re-inserting the event into the outbox could succeed.
func (r DLQReason) Replayable() bool {
	return r == DLQReasonMaxAttempts
}

func ParseDLQReason(value string) (DLQReason, error) {
	r := DLQReason(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid dlq reason %q", value)
	}
	return r, nil
}
