package enums

import "fmt"

// PayoutStatus tracks a settlement payout record.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	switch p {
	case PayoutStatusPending, PayoutStatusCompleted, PayoutStatusFailed:
		return true
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	status := PayoutStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payout status %q", value)
	}
	return status, nil
}
