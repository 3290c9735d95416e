// Package pricing resolves the USD value of one unit of a payment token at
// a past instant. Lookups degrade through precision tiers and finally to a
// conservative hardcoded default; they never fail the caller.
package pricing

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/attova/subledger/internal/ledger"
	"github.com/attova/subledger/internal/metrics"
	"github.com/attova/subledger/pkg/pricefeed"
)

// Source is the historical/spot price provider consumed by the Oracle.
// *pricefeed.Client satisfies it.
type Source interface {
	HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval string) ([]pricefeed.Sample, error)
	SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// conservativeDefaults are the last-resort prices used when every tier is
// exhausted. Deliberately low: an undervalued payment grants fewer
// entitlement days, never more.
var conservativeDefaults = map[ledger.Token]decimal.Decimal{
	ledger.TokenWETH: decimal.NewFromInt(1000),
	ledger.TokenPOL:  decimal.RequireFromString("0.10"),
}

var one = decimal.NewFromInt(1)

type tier struct {
	name     string
	window   time.Duration
	interval string
}

var tiers = []tier{
	{name: "5m", window: 5 * time.Minute, interval: pricefeed.IntervalFiveMinute},
	{name: "1h", window: time.Hour, interval: pricefeed.IntervalHourly},
}

// Oracle resolves point-in-time token prices with tiered fallback and a
// shared cache. Safe for concurrent use.
type Oracle struct {
	source Source
	cache  *Cache
}

// NewOracle creates an Oracle. A nil cache gets the default cache.
func NewOracle(source Source, cache *Cache) *Oracle {
	if cache == nil {
		cache = NewCache(0, 0)
	}
	return &Oracle{source: source, cache: cache}
}

// PriceAt returns the USD price of one unit of token at the given instant.
// Stablecoins short-circuit to 1. Provider failures fall through the
// tiers; full exhaustion yields the conservative default, counted in
// metrics so operators notice.
func (o *Oracle) PriceAt(ctx context.Context, token ledger.Token, at time.Time, sourceID string) decimal.Decimal {
	if token.Stable() {
		return one
	}

	key := keyFor(token, sourceID, at)
	if price, ok := o.cache.get(key); ok {
		metrics.PriceCacheHits.Inc()
		return price
	}

	if price, ok := o.lookup(ctx, token, at); ok {
		o.cache.put(key, price)
		return price
	}

	metrics.PriceDefaults.WithLabelValues(string(token)).Inc()
	fallback := defaultPrice(token)
	log.Warn().
		Str("token", string(token)).
		Str("source", sourceID).
		Time("at", at).
		Str("price", fallback.String()).
		Msg("Price lookup exhausted all tiers; using conservative default")
	return fallback
}

func (o *Oracle) lookup(ctx context.Context, token ledger.Token, at time.Time) (decimal.Decimal, bool) {
	for _, t := range tiers {
		samples, err := o.source.HistoricalPrices(ctx, string(token), at.Add(-t.window), at.Add(t.window), t.interval)
		if err != nil {
			metrics.PriceTierFallbacks.WithLabelValues(t.name).Inc()
			log.Debug().
				Err(err).
				Str("token", string(token)).
				Str("tier", t.name).
				Msg("Price tier query failed; falling through")
			continue
		}
		if price, ok := closestSample(samples, at); ok {
			return price, true
		}
		metrics.PriceTierFallbacks.WithLabelValues(t.name).Inc()
	}

	price, err := o.source.SpotPrice(ctx, string(token))
	if err != nil {
		return decimal.Decimal{}, false
	}
	metrics.PriceTierFallbacks.WithLabelValues("spot").Inc()
	log.Warn().
		Str("token", string(token)).
		Time("at", at).
		Msg("Historical tiers empty; using live spot price for past instant")
	return price, true
}

// closestSample picks the sample whose timestamp is nearest the target
// instant, ties broken by the earlier sample.
func closestSample(samples []pricefeed.Sample, at time.Time) (decimal.Decimal, bool) {
	best := -1
	var bestDiff time.Duration
	for i, s := range samples {
		diff := s.At.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff || (diff == bestDiff && s.At.Before(samples[best].At)) {
			best = i
			bestDiff = diff
		}
	}
	if best < 0 {
		return decimal.Decimal{}, false
	}
	return samples[best].Price, true
}

func defaultPrice(token ledger.Token) decimal.Decimal {
	if price, ok := conservativeDefaults[token]; ok {
		return price
	}
	return one
}
