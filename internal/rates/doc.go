// Package rates resolves fiat and token exchange rates to USD.
//
// Rates are read from a live key-value store (Redis in production) where the key
// "{CODE}-USD_price" holds a decimal string:
//
//	ETH-USD_price = "2034.17"
//	EUR-USD_price = "1.09"
//
// # Usage
//
//	source := rates.NewRedisSource(rates.RedisConfig{Addr: "localhost:6379"})
//	defer source.Close()
//
//	provider := rates.NewProvider(source, logger)
//	table := provider.Rates(ctx, types.SupportedCurrencies())
//
// # Degradation
//
// Rates never fail the caller:
//   - USD resolves to "1" without touching the store
//   - A missing or malformed key is left out of the table (rate unknown)
//   - A lookup that fails to reach the store takes its rate from the static
//     fallback table in pkg/types
//   - When every lookup fails, the whole fallback table is returned
//
// Each of these is logged with a stable "event" field (rates.missing,
// rates.malformed, rates.fallback) so degraded answers are
// visible in the logs.
package rates
