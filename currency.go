package assetflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jffcastro/assetflow/date"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Rates holds live rates by currency, in foreign units per reporting unit.
type Rates map[string]decimal.Decimal

// Rate returns the rate of currency, if a usable one is known.
func (r Rates) Rate(currency string) (decimal.Decimal, bool) {
	v, ok := r[currency]
	return v, ok && v.IsPositive()
}

// ToReportingCurrency converts amount into the reporting currency. The rate
// is expressed in units of amount's currency per reporting unit, so that
// 100 USD at 1.10 is 90.909... EUR. No rounding is applied.
func ToReportingCurrency(amount Money, reporting string, rate decimal.Decimal) (Money, error) {
	if amount.Currency() == reporting || amount.Currency() == "" {
		return M(amount.Decimal(), reporting), nil
	}
	if !rate.IsPositive() {
		return Money{}, fmt.Errorf("cannot convert %s %s with rate %s", amount.Decimal(), amount.Currency(), rate)
	}
	return amount.in(reporting, rate), nil
}

// RateSource fetches exchange rates against the reporting currency,
// typically over the network.
type RateSource interface {
	LiveRate(ctx context.Context, currency string) (decimal.Decimal, error)
	HistoricalRate(ctx context.Context, currency string, on date.Date) (decimal.Decimal, error)
}

// RateOrigin tells where a resolved historical rate came from.
type RateOrigin int

const (
	RateCached       RateOrigin = iota // found in the rate cache
	RateFetched                        // fetched from the rate source, and cached
	RateLiveFallback                   // historical rate unavailable, live rate used
)

func (o RateOrigin) String() string {
	switch o {
	case RateCached:
		return "cached"
	case RateFetched:
		return "fetched"
	case RateLiveFallback:
		return "live-fallback"
	default:
		return "unknown"
	}
}

// RateQuote is a rate resolved for a currency and a day.
type RateQuote struct {
	Currency string
	On       date.Date
	Rate     decimal.Decimal
	Origin   RateOrigin
}

// Approximate reports whether the quote is not the rate of its day.
func (q RateQuote) Approximate() bool { return q.Origin == RateLiveFallback }

// RateCache stores historical rates by currency and day, and live rates
// with an expiration. Both stores are independent: a live rate is never
// returned as a historical one.
type RateCache struct {
	mu         sync.RWMutex
	historical map[string]*date.History[decimal.Decimal]
	live       *cache.Cache
}

// NewRateCache returns an empty cache, live rates expire after liveTTL.
func NewRateCache(liveTTL time.Duration) *RateCache {
	return &RateCache{
		historical: make(map[string]*date.History[decimal.Decimal]),
		live:       cache.New(liveTTL, 2*liveTTL),
	}
}

// Historical returns the rate of currency pinned on day on.
func (c *RateCache) Historical(currency string, on date.Date) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.historical[currency]
	if !ok {
		return decimal.Zero, false
	}
	return h.Get(on)
}

// SetHistorical records the rate of currency on day on.
func (c *RateCache) SetHistorical(currency string, on date.Date, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.historical[currency]
	if !ok {
		h = new(date.History[decimal.Decimal])
		c.historical[currency] = h
	}
	h.Append(on, rate)
}

// Live returns the cached live rate of currency, if not expired.
func (c *RateCache) Live(currency string) (decimal.Decimal, bool) {
	v, ok := c.live.Get(currency)
	if !ok {
		return decimal.Zero, false
	}
	return v.(decimal.Decimal), true
}

// SetLive caches the live rate of currency.
func (c *RateCache) SetLive(currency string, rate decimal.Decimal) {
	c.live.Set(currency, rate, cache.DefaultExpiration)
}

// currencies returns the currencies with historical rates, sorted.
func (c *RateCache) currencies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.historical))
}

// history calls yield for each historical rate of currency, chronologically.
func (c *RateCache) history(currency string, yield func(date.Date, decimal.Decimal)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h, ok := c.historical[currency]; ok {
		for on, rate := range h.Values() {
			yield(on, rate)
		}
	}
}

// CurrencyConverter converts foreign amounts into the reporting currency and
// resolves the rates to use.
type CurrencyConverter struct {
	reporting string
	cache     *RateCache
	source    RateSource // nil when offline
	timeout   time.Duration
	log       logrus.FieldLogger
}

// DefaultRateTimeout bounds a single rate lookup.
const DefaultRateTimeout = 5 * time.Second

// NewCurrencyConverter creates a converter into the reporting currency.
// source may be nil, then only cached rates are available.
func NewCurrencyConverter(reporting string, rates *RateCache, source RateSource, log logrus.FieldLogger) (*CurrencyConverter, error) {
	if err := ValidateCurrency(reporting); err != nil {
		return nil, fmt.Errorf("invalid reporting currency: %w", err)
	}
	if rates == nil {
		rates = NewRateCache(time.Hour)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CurrencyConverter{reporting: reporting, cache: rates, source: source, timeout: DefaultRateTimeout, log: log}, nil
}

// WithTimeout sets the maximum duration of a single rate lookup.
func (c *CurrencyConverter) WithTimeout(d time.Duration) *CurrencyConverter {
	c.timeout = d
	return c
}

// Reporting returns the reporting currency.
func (c *CurrencyConverter) Reporting() string { return c.reporting }

// Cache returns the underlying rate cache.
func (c *CurrencyConverter) Cache() *RateCache { return c.cache }

// ToReportingCurrency converts amount using rate.
func (c *CurrencyConverter) ToReportingCurrency(amount Money, rate decimal.Decimal) (Money, error) {
	return ToReportingCurrency(amount, c.reporting, rate)
}

// RateForDate returns the cached rate of currency on day on. On a miss the
// caller decides whether to fetch it or to use the live rate.
func (c *CurrencyConverter) RateForDate(currency string, on date.Date) (decimal.Decimal, bool) {
	if currency == c.reporting {
		return decimal.NewFromInt(1), true
	}
	return c.cache.Historical(currency, on)
}

// LiveRate returns the current rate of currency, from the cache when fresh.
func (c *CurrencyConverter) LiveRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	if currency == c.reporting {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := c.cache.Live(currency); ok {
		return rate, nil
	}
	if c.source == nil {
		return decimal.Zero, fmt.Errorf("no live %s rate: no rate source", currency)
	}
	rate, err := c.fetch(ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return c.source.LiveRate(ctx, currency)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("live %s rate: %w", currency, err)
	}
	c.cache.SetLive(currency, rate)
	return rate, nil
}

// LiveRates resolves the live rate of every currency. Failures are returned
// and the currency is left out.
func (c *CurrencyConverter) LiveRates(ctx context.Context, currencies []string) (Rates, error) {
	rates := make(Rates, len(currencies))
	var errs error
	for _, cur := range currencies {
		rate, err := c.LiveRate(ctx, cur)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		rates[cur] = rate
	}
	return rates, errs
}

// ResolveHistorical returns the rate of currency on day on: from the cache,
// else fetched and cached, else the live rate. The last case is logged and
// returned as a MissingRateWarning. An error means no rate at all could be
// obtained.
func (c *CurrencyConverter) ResolveHistorical(ctx context.Context, currency string, on date.Date) (RateQuote, *MissingRateWarning, error) {
	quote := RateQuote{Currency: currency, On: on}
	if rate, ok := c.RateForDate(currency, on); ok {
		quote.Rate, quote.Origin = rate, RateCached
		return quote, nil, nil
	}

	var fetchErr error
	if c.source != nil {
		rate, err := c.fetch(ctx, func(ctx context.Context) (decimal.Decimal, error) {
			return c.source.HistoricalRate(ctx, currency, on)
		})
		if err == nil {
			c.cache.SetHistorical(currency, on, rate)
			quote.Rate, quote.Origin = rate, RateFetched
			return quote, nil, nil
		}
		fetchErr = err
	} else {
		fetchErr = errors.New("no rate source")
	}

	live, err := c.LiveRate(ctx, currency)
	if err != nil {
		return quote, nil, fmt.Errorf("no %s rate for %s: %w", currency, on, errors.Join(fetchErr, err))
	}
	warn := &MissingRateWarning{Currency: currency, On: on, Fallback: live, Err: fetchErr}
	c.log.WithFields(logrus.Fields{
		"currency": currency,
		"date":     on.String(),
		"fallback": live.String(),
	}).WithError(fetchErr).Warn("historical rate unavailable, using live rate")
	quote.Rate, quote.Origin = live, RateLiveFallback
	return quote, warn, nil
}

// fetch runs f bounded by the converter timeout, even if f ignores ctx.
func (c *CurrencyConverter) fetch(ctx context.Context, f func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		rate decimal.Decimal
		err  error
	}
	done := make(chan result, 1)
	go func() {
		rate, err := f(ctx)
		done <- result{rate, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && !r.rate.IsPositive() {
			r.err = fmt.Errorf("invalid rate %s", r.rate)
		}
		return r.rate, r.err
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}
