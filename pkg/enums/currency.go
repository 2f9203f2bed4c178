package enums

// Currency is the ISO currency code of a monetary amount.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the value is a supported Currency.
func (c Currency) IsValid() bool {
	return c == CurrencyUSD || c == CurrencyEUR
}
