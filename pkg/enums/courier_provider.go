package enums

import "fmt"

// CourierProvider names a wired courier integration.
type CourierProvider string

const (
	CourierProviderWheely CourierProvider = "wheely"
	CourierProviderShipra CourierProvider = "shipra"
)

// String implements fmt.Stringer.
func (c CourierProvider) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CourierProvider.
func (c CourierProvider) IsValid() bool {
	return c == CourierProviderWheely || c == CourierProviderShipra
}

// ParseCourierProvider converts raw input into a CourierProvider.
func ParseCourierProvider(value string) (CourierProvider, error) {
	provider := CourierProvider(value)
	if !provider.IsValid() {
		return "", fmt.Errorf("unknown courier provider %q", value)
	}
	return provider, nil
}
