package types

import (
	"fmt"
	"strings"
)

// CurrencyKey identifies a price currency, e.g. "fiat-EUR" or "token-ETH"
type CurrencyKey string

// Currency kinds
const (
	KindFiat  = "fiat"
	KindToken = "token"
)

// QuoteCurrency is the currency every exchange rate is expressed in
const QuoteCurrency = "USD"

// currencyTable is the single list of supported currencies. The fallback rate is the
// USD price used when the live rate source cannot be reached.
var currencyTable = []struct {
	key      CurrencyKey
	fallback string
}{
	{"fiat-CNY", "0.14"},
	{"fiat-EUR", "1.1"},
	{"fiat-GBP", "1.27"},
	{"fiat-JPY", "0.0092"},
	{"fiat-KRW", "0.00085"},
	{"fiat-SGD", "0.74"},
	{"fiat-USD", "1"},
	{"token-DAI", "1"},
	{"token-ETH", "200"},
}

// SupportedCurrencies returns the supported currency keys in table order
func SupportedCurrencies() []CurrencyKey {
	keys := make([]CurrencyKey, len(currencyTable))
	for i, c := range currencyTable {
		keys[i] = c.key
	}
	return keys
}

// FallbackRates returns a fresh copy of the static USD rate table
func FallbackRates() map[CurrencyKey]string {
	rates := make(map[CurrencyKey]string, len(currencyTable))
	for _, c := range currencyTable {
		rates[c.key] = c.fallback
	}
	return rates
}

// ParseCurrencyKey parses and checks a currency key against the supported set
func ParseCurrencyKey(s string) (CurrencyKey, error) {
	key := CurrencyKey(strings.TrimSpace(s))
	if !key.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, s)
	}
	return key, nil
}

// Kind returns "fiat" or "token"
func (c CurrencyKey) Kind() string {
	kind, _, _ := strings.Cut(string(c), "-")
	return kind
}

// Code returns the ticker part of the key, e.g. "ETH"
func (c CurrencyKey) Code() string {
	_, code, _ := strings.Cut(string(c), "-")
	return code
}

// IsQuote reports whether the currency is the quote currency itself
func (c CurrencyKey) IsQuote() bool {
	return c.Code() == QuoteCurrency
}

// Valid reports whether the key is in the supported set
func (c CurrencyKey) Valid() bool {
	for _, entry := range currencyTable {
		if entry.key == c {
			return true
		}
	}
	return false
}
