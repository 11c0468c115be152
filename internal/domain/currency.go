package domain

// Known ISO 4217 currency codes seen on private-banking statements.
var knownCurrencies = map[string]bool{
	"CHF": true, "USD": true, "EUR": true, "GBP": true, "JPY": true,
	"AUD": true, "CAD": true, "CNY": true, "SGD": true, "HKD": true,
	"NZD": true, "SEK": true, "NOK": true, "DKK": true, "ZAR": true,
	"AED": true, "SAR": true, "INR": true, "MXN": true, "BRL": true,
	"PLN": true, "CZK": true, "HUF": true, "TRY": true, "ILS": true,
}

// IsKnownCurrency reports whether code is a recognised ISO currency code.
func IsKnownCurrency(code string) bool {
	return knownCurrencies[code]
}
