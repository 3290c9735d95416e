package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attova/subledger/internal/ledger"
	"github.com/attova/subledger/pkg/pricefeed"
)

type fakeSource struct {
	historical  map[string][]pricefeed.Sample // keyed by interval
	historyErr  error
	spot        decimal.Decimal
	spotErr     error
	historyCall int
	spotCalls   int
}

func (f *fakeSource) HistoricalPrices(_ context.Context, _ string, _, _ time.Time, interval string) ([]pricefeed.Sample, error) {
	f.historyCall++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.historical[interval], nil
}

func (f *fakeSource) SpotPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	f.spotCalls++
	return f.spot, f.spotErr
}

var at = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestPriceAtStablecoinShortCircuits(t *testing.T) {
	source := &fakeSource{}
	oracle := NewOracle(source, NewCache(16, time.Hour))

	for _, token := range []ledger.Token{ledger.TokenUSDC, ledger.TokenUSDT, ledger.TokenDAI, ledger.TokenFiat} {
		price := oracle.PriceAt(context.Background(), token, at, "ethereum")
		assert.True(t, price.Equal(decimal.NewFromInt(1)), "token %s", token)
	}
	assert.Zero(t, source.historyCall, "stablecoins must not hit the provider")
	assert.Zero(t, source.spotCalls)
}

func TestPriceAtUsesFineTier(t *testing.T) {
	source := &fakeSource{
		historical: map[string][]pricefeed.Sample{
			pricefeed.IntervalFiveMinute: {
				{At: at.Add(-2 * time.Minute), Price: decimal.NewFromInt(2500)},
				{At: at.Add(4 * time.Minute), Price: decimal.NewFromInt(2600)},
			},
		},
	}
	oracle := NewOracle(source, NewCache(16, time.Hour))

	price := oracle.PriceAt(context.Background(), ledger.TokenWETH, at, "ethereum")
	assert.True(t, price.Equal(decimal.NewFromInt(2500)), "closest sample wins, got %s", price)
}

// An empty fine tier falls through to the hourly tier, not to the spot
// price and not to an error.
func TestPriceAtFallsBackToHourlyTier(t *testing.T) {
	source := &fakeSource{
		historical: map[string][]pricefeed.Sample{
			pricefeed.IntervalFiveMinute: {},
			pricefeed.IntervalHourly: {
				{At: at.Add(-30 * time.Minute), Price: decimal.NewFromInt(2450)},
			},
		},
		spot: decimal.NewFromInt(9999),
	}
	oracle := NewOracle(source, NewCache(16, time.Hour))

	price := oracle.PriceAt(context.Background(), ledger.TokenWETH, at, "ethereum")
	assert.True(t, price.Equal(decimal.NewFromInt(2450)), "got %s", price)
	assert.Zero(t, source.spotCalls, "spot must not be consulted when a historical tier has data")
}

func TestPriceAtFallsBackToSpot(t *testing.T) {
	source := &fakeSource{
		historical: map[string][]pricefeed.Sample{},
		spot:       decimal.NewFromInt(2700),
	}
	oracle := NewOracle(source, NewCache(16, time.Hour))

	price := oracle.PriceAt(context.Background(), ledger.TokenWETH, at, "ethereum")
	assert.True(t, price.Equal(decimal.NewFromInt(2700)), "got %s", price)
	assert.Equal(t, 1, source.spotCalls)
}

func TestPriceAtExhaustionUsesConservativeDefault(t *testing.T) {
	source := &fakeSource{
		historyErr: errors.New("provider down"),
		spotErr:    errors.New("provider down"),
	}
	oracle := NewOracle(source, NewCache(16, time.Hour))

	price := oracle.PriceAt(context.Background(), ledger.TokenWETH, at, "ethereum")
	assert.True(t, price.Equal(decimal.NewFromInt(1000)), "got %s", price)

	price = oracle.PriceAt(context.Background(), ledger.TokenPOL, at, "polygon")
	assert.True(t, price.Equal(decimal.RequireFromString("0.10")), "got %s", price)
}

func TestPriceAtCachesByHourBucket(t *testing.T) {
	source := &fakeSource{
		historical: map[string][]pricefeed.Sample{
			pricefeed.IntervalFiveMinute: {{At: at, Price: decimal.NewFromInt(2500)}},
		},
	}
	oracle := NewOracle(source, NewCache(16, time.Hour))

	first := oracle.PriceAt(context.Background(), ledger.TokenWETH, at, "ethereum")
	// Same hour bucket: served from cache without another provider call.
	second := oracle.PriceAt(context.Background(), ledger.TokenWETH, at.Add(20*time.Minute), "ethereum")

	require.True(t, first.Equal(second))
	assert.Equal(t, 1, source.historyCall, "second lookup in the same hour must be a cache hit")

	// Different source id is a distinct cache entry.
	oracle.PriceAt(context.Background(), ledger.TokenWETH, at, "base")
	assert.Equal(t, 2, source.historyCall)
}

func TestClosestSample(t *testing.T) {
	early := pricefeed.Sample{At: at.Add(-3 * time.Minute), Price: decimal.NewFromInt(1)}
	late := pricefeed.Sample{At: at.Add(3 * time.Minute), Price: decimal.NewFromInt(2)}
	nearer := pricefeed.Sample{At: at.Add(time.Minute), Price: decimal.NewFromInt(3)}

	tests := []struct {
		name    string
		samples []pricefeed.Sample
		want    decimal.Decimal
		ok      bool
	}{
		{"empty", nil, decimal.Decimal{}, false},
		{"single", []pricefeed.Sample{early}, decimal.NewFromInt(1), true},
		{"nearest wins", []pricefeed.Sample{early, nearer, late}, decimal.NewFromInt(3), true},
		{"tie broken by earlier sample", []pricefeed.Sample{late, early}, decimal.NewFromInt(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := closestSample(tt.samples, at)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			}
		})
	}
}
