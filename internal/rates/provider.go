package rates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/marketplace-discovery/pkg/types"
)

// DefaultLookupTimeout bounds a single rate lookup
const DefaultLookupTimeout = 2 * time.Second

// Table maps a currency to its USD rate as a decimal string. A currency absent from
// the table has an unknown rate, which is not the same as a zero rate.
type Table map[types.CurrencyKey]string

// Provider resolves USD exchange rates from a live Source
type Provider struct {
	source  Source
	log     *zap.Logger
	timeout time.Duration
}

// Option configures a Provider
type Option func(*Provider)

// WithLookupTimeout sets the timeout applied to each lookup
func WithLookupTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewProvider creates a Provider reading from source
func NewProvider(source Source, log *zap.Logger, opts ...Option) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Provider{
		source:  source,
		log:     log,
		timeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// lookup is the outcome of one source read
type lookup struct {
	currency types.CurrencyKey
	value    string
	err      error
}

// Rates returns the USD rates of currencies. USD itself resolves to "1" without a
// lookup; every other currency is looked up concurrently. Missing or malformed
// values are left out of the table. A lookup that fails to reach the source takes
// its static fallback rate; when no lookup reaches the source at all, the whole
// fallback table is returned, so callers never fail on a rates outage.
func (p *Provider) Rates(ctx context.Context, currencies []types.CurrencyKey) Table {
	table := make(Table, len(currencies))

	pending := make([]types.CurrencyKey, 0, len(currencies))
	seen := make(map[types.CurrencyKey]bool, len(currencies))
	for _, c := range currencies {
		if seen[c] {
			continue
		}
		seen[c] = true
		if c.IsQuote() {
			table[c] = "1"
			continue
		}
		pending = append(pending, c)
	}

	if len(pending) == 0 {
		return table
	}

	results := make([]lookup, len(pending))
	var g errgroup.Group
	for i, c := range pending {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			value, err := p.source.Get(lctx, Key(c))
			results[i] = lookup{currency: c, value: value, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var failures []lookup
	for _, r := range results {
		switch {
		case errors.Is(r.err, ErrNotFound):
			p.log.Warn("exchange rate missing",
				zap.String("event", "rates.missing"),
				zap.String("currency", string(r.currency)),
				zap.String("key", Key(r.currency)))
		case r.err != nil:
			failures = append(failures, r)
		default:
			value, ok := parseRate(r.value)
			if !ok {
				p.log.Warn("exchange rate malformed",
					zap.String("event", "rates.malformed"),
					zap.String("currency", string(r.currency)),
					zap.String("value", r.value))
				continue
			}
			table[r.currency] = value
		}
	}

	if len(failures) == len(pending) {
		errs := make([]error, len(failures))
		for i, f := range failures {
			errs[i] = f.err
		}
		p.log.Warn("rate source unreachable, using fallback rates",
			zap.String("event", "rates.fallback"),
			zap.Int("currencies", len(pending)),
			zap.Error(errors.Join(errs...)))
		return Fallback()
	}

	fallback := types.FallbackRates()
	for _, f := range failures {
		rate, ok := fallback[f.currency]
		if !ok {
			continue
		}
		table[f.currency] = rate
		p.log.Warn("exchange rate lookup failed, using fallback rate",
			zap.String("event", "rates.fallback"),
			zap.String("currency", string(f.currency)),
			zap.String("rate", rate),
			zap.Error(f.err))
	}

	return table
}

// Fallback returns the static rate table covering every supported currency
func Fallback() Table {
	return Table(types.FallbackRates())
}

// parseRate accepts positive decimal strings
func parseRate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return "", false
	}
	return raw, true
}
