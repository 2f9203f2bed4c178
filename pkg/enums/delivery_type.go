package enums

import "fmt"

// DeliveryType distinguishes the two courier legs of a repair job.
type DeliveryType string

const (
	DeliveryTypePickup DeliveryType = "pickup"
	DeliveryTypeReturn DeliveryType = "return"
)

// String implements fmt.Stringer.
func (d DeliveryType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryType.
func (d DeliveryType) IsValid() bool {
	return d == DeliveryTypePickup || d == DeliveryTypeReturn
}

// ParseDeliveryType converts raw input into a DeliveryType.
func ParseDeliveryType(value string) (DeliveryType, error) {
	switch DeliveryType(value) {
	case DeliveryTypePickup:
		return DeliveryTypePickup, nil
	case DeliveryTypeReturn:
		return DeliveryTypeReturn, nil
	}
	return "", fmt.Errorf("invalid delivery type %q", value)
}
