package enums

import "fmt"

// CashPaymentStatus tracks the cash-to-courier payment on a delivery leg.
type CashPaymentStatus string

const (
	CashPaymentStatusNotDue               CashPaymentStatus = "not_due"
	CashPaymentStatusAwaitingConfirmation CashPaymentStatus = "awaiting_confirmation"
	CashPaymentStatusConfirmed            CashPaymentStatus = "confirmed"
)

// String implements fmt.Stringer.
func (c CashPaymentStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CashPaymentStatus.
func (c CashPaymentStatus) IsValid() bool {
	switch c {
	case CashPaymentStatusNotDue, CashPaymentStatusAwaitingConfirmation, CashPaymentStatusConfirmed:
		return true
	}
	return false
}

// ParseCashPaymentStatus converts raw input into a CashPaymentStatus.
func ParseCashPaymentStatus(value string) (CashPaymentStatus, error) {
	status := CashPaymentStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid cash payment status %q", value)
	}
	return status, nil
}
