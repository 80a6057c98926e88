package query

import (
	"context"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dshills/marketplace-discovery/internal/rates"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

// Price fields
const (
	PriceAmountField   = "price.amount"
	PriceCurrencyField = "price.currency"

	// SortScriptVersion changes whenever priceSortScript changes
	SortScriptVersion = "1.0.0"
)

// Sort orders
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// sortableFields and sortOrders are the whitelist for explicit sorts
var (
	sortableFields = map[string]bool{PriceAmountField: true}
	sortOrders     = map[string]bool{OrderAsc: true, OrderDesc: true}
)

// priceSortScript converts a document price to USD. Documents whose amount did not
// index as a number, or whose currency has no rate, get params.sentinel so they
// land at the back of the list in either direction.
const priceSortScript = `if (doc['price.amount'].size() == 0 || doc['price.currency'].size() == 0) {
  return params.sentinel;
}
String currency = doc['price.currency'].value;
if (!params.rates.containsKey(currency)) {
  return params.sentinel;
}
try {
  return doc['price.amount'].value * Double.parseDouble(params.rates.get(currency));
} catch (NumberFormatException e) {
  return params.sentinel;
}`

// RateProvider supplies the USD exchange rates used by currency sorts
type RateProvider interface {
	Rates(ctx context.Context, currencies []types.CurrencyKey) rates.Table
}

// SortResolver turns a requested sort into a sort clause
type SortResolver struct {
	rates RateProvider
	log   *zap.Logger
}

// NewSortResolver creates a SortResolver reading rates from provider
func NewSortResolver(provider RateProvider, log *zap.Logger) *SortResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &SortResolver{rates: provider, log: log}
}

// Resolve returns the sort clause for field and order, or nil for relevance order.
// Combinations outside the whitelist never fail the request; they are logged and
// fall back to relevance.
func (r *SortResolver) Resolve(ctx context.Context, field, order string) *ScriptSort {
	if !sortableFields[field] || !sortOrders[order] {
		if field != "" || order != "" {
			r.log.Warn("sort rejected, using relevance order",
				zap.String("event", "sort.rejected"),
				zap.String("sort", field),
				zap.String("order", order))
		}
		return nil
	}

	table := r.rates.Rates(ctx, types.SupportedCurrencies())
	return PriceSort(table, order)
}

// PriceSort builds the currency-normalized price sort for the given rates
func PriceSort(table rates.Table, order string) *ScriptSort {
	params := make(map[string]any, len(table))
	for currency, rate := range table {
		params[string(currency)] = rate
	}
	return &ScriptSort{
		Type:  "number",
		Order: order,
		Script: Script{
			Source: priceSortScript,
			Params: map[string]any{
				"rates":    params,
				"sentinel": SortSentinel(order),
			},
		},
	}
}

// SortSentinel is the value given to unpriceable documents: the largest double when
// ascending, zero when descending.
func SortSentinel(order string) float64 {
	if order == OrderDesc {
		return 0
	}
	return math.MaxFloat64
}

// ConvertedPrice is the Go form of priceSortScript
func ConvertedPrice(price types.Price, table rates.Table, order string) float64 {
	sentinel := SortSentinel(order)

	amount, err := decimal.NewFromString(strings.TrimSpace(price.Amount))
	if err != nil {
		return sentinel
	}
	raw, ok := table[price.Currency]
	if !ok {
		return sentinel
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return sentinel
	}

	usd, _ := amount.Mul(rate).Float64()
	return usd
}
