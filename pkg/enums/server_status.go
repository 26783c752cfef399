package enums

import "fmt"

// ServerStatus tracks a provisioned game server.
type ServerStatus string

const (
	ServerStatusProvisioning ServerStatus = "provisioning"
	ServerStatusActive       ServerStatus = "active"
	ServerStatusSuspended    ServerStatus = "suspended"
	ServerStatusFailed       ServerStatus = "failed"
)

var validServerStatuses = []ServerStatus{
	ServerStatusProvisioning,
	ServerStatusActive,
	ServerStatusSuspended,
	ServerStatusFailed,
}

var serverTransitions = map[ServerStatus][]ServerStatus{
	ServerStatusProvisioning: {ServerStatusActive, ServerStatusFailed},
	ServerStatusActive:       {ServerStatusSuspended},
	ServerStatusSuspended:    {ServerStatusActive},
}

// String implements fmt.Stringer.
func (s ServerStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ServerStatus.
func (s ServerStatus) IsValid() bool {
	for _, candidate := range validServerStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s ServerStatus) CanTransitionTo(next ServerStatus) bool {
	for _, candidate := range serverTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseServerStatus converts raw input into a ServerStatus.
func ParseServerStatus(value string) (ServerStatus, error) {
	for _, candidate := range validServerStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid server status %q", value)
}
