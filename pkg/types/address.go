package types

import "strings"

// Address is the physical location payload shared by delivery legs.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// Contact identifies the person a courier interacts with at an address.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// OneLine flattens the address for courier APIs that take a single string.
func (a Address) OneLine() string {
	parts := []string{a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.Country}
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// IsZero reports whether no address fields are populated.
func (a Address) IsZero() bool {
	return a.Line1 == "" && a.City == "" && a.Country == ""
}
