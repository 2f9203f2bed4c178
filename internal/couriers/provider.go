package couriers

import (
	"context"
	"fmt"
	"time"

	"github.com/dcastano/repairhub-backend/pkg/enums"
	"github.com/dcastano/repairhub-backend/pkg/types"
)

// BookingRequest describes one shipment leg handed to a courier provider.
type BookingRequest struct {
	// Reference is our delivery id, echoed back by provider webhooks.
	Reference       string
	PickupAddress   types.Address
	PickupContact   types.Contact
	DropoffAddress  types.Address
	DropoffContact  types.Contact
	ScheduledPickup *time.Time
}

// Booking is the provider-side result of arranging a shipment.
type Booking struct {
	ProviderOrderID    string
	EstimatedCostCents int64
	TrackingReference  string
	Status             enums.DeliveryStatus
}

// Provider abstracts a courier integration. Implementations own their
// provider's API shape and status vocabulary; everything downstream works
// in the internal DeliveryStatus set.
type Provider interface {
	Name() enums.CourierProvider
	Book(ctx context.Context, req BookingRequest) (*Booking, error)
	Cancel(ctx context.Context, providerOrderID string) error
	// MapStatus translates the provider's raw status. The second return
	// is false for unknown values; callers keep the current status and
	// log rather than guessing.
	MapStatus(raw string) (enums.DeliveryStatus, bool)
	// ConfirmsCashOnDelivery reports whether a driver-confirmed cash
	// collection from this provider can be trusted without manual review.
	ConfirmsCashOnDelivery() bool
}

// Registry resolves providers by name.
type Registry struct {
	providers map[enums.CourierProvider]Provider
}

// NewRegistry indexes the given providers.
func NewRegistry(providers ...Provider) *Registry {
	indexed := make(map[enums.CourierProvider]Provider, len(providers))
	for _, p := range providers {
		indexed[p.Name()] = p
	}
	return &Registry{providers: indexed}
}

// Get returns the provider registered under the given name.
func (r *Registry) Get(name enums.CourierProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("courier provider %q not configured", name)
	}
	return p, nil
}
