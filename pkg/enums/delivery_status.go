package enums

import "fmt"

// DeliveryStatus is the internal courier status vocabulary. Every provider
// integration maps its own vocabulary onto this set.
type DeliveryStatus string

const (
	DeliveryStatusPending       DeliveryStatus = "pending"
	DeliveryStatusAssigned      DeliveryStatus = "assigned"
	DeliveryStatusDriverOnWay   DeliveryStatus = "driver_on_way"
	DeliveryStatusDriverArrived DeliveryStatus = "driver_arrived"
	DeliveryStatusPickedUp      DeliveryStatus = "picked_up"
	DeliveryStatusInTransit     DeliveryStatus = "in_transit"
	DeliveryStatusDelivered     DeliveryStatus = "delivered"
	DeliveryStatusFailed        DeliveryStatus = "failed"
	DeliveryStatusCancelled     DeliveryStatus = "cancelled"
	DeliveryStatusReturned      DeliveryStatus = "returned"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusAssigned,
	DeliveryStatusDriverOnWay,
	DeliveryStatusDriverArrived,
	DeliveryStatusPickedUp,
	DeliveryStatusInTransit,
	DeliveryStatusDelivered,
	DeliveryStatusFailed,
	DeliveryStatusCancelled,
	DeliveryStatusReturned,
}

// deliveryStatusRank orders the forward progression of a shipment. Terminal
// outcomes share the highest rank so they never regress to transit states.
var deliveryStatusRank = map[DeliveryStatus]int{
	DeliveryStatusPending:       0,
	DeliveryStatusAssigned:      1,
	DeliveryStatusDriverOnWay:   2,
	DeliveryStatusDriverArrived: 3,
	DeliveryStatusPickedUp:      4,
	DeliveryStatusInTransit:     5,
	DeliveryStatusDelivered:     6,
	DeliveryStatusFailed:        6,
	DeliveryStatusCancelled:     6,
	DeliveryStatusReturned:      6,
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the shipment has reached a final outcome.
func (d DeliveryStatus) IsTerminal() bool {
	switch d {
	case DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusCancelled, DeliveryStatusReturned:
		return true
	}
	return false
}

// Cancellable reports whether the platform may still cancel the shipment.
// Once a courier has reached or passed pickup, cancellation is refused.
func (d DeliveryStatus) Cancellable() bool {
	switch d {
	case DeliveryStatusPending, DeliveryStatusAssigned, DeliveryStatusDriverOnWay:
		return true
	}
	return false
}

// AdvancesFrom reports whether moving from current to d is forward progress
// or an allowed terminal outcome. Equal statuses are not an advance.
func (d DeliveryStatus) AdvancesFrom(current DeliveryStatus) bool {
	if current.IsTerminal() {
		return false
	}
	return deliveryStatusRank[d] > deliveryStatusRank[current]
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
