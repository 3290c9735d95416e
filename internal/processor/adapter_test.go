package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attova/subledger/internal/ledger"
)

var periodEndTime = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

type fakeBilling struct {
	customers   []Customer
	subs        map[string][]SubscriptionRecord
	searchErr   error
	listErr     error
	listedCalls []string
}

func (f *fakeBilling) SearchCustomersByAccountKey(_ context.Context, _ string) ([]Customer, error) {
	return f.customers, f.searchErr
}

func (f *fakeBilling) ListActiveSubscriptions(_ context.Context, customerID string) ([]SubscriptionRecord, error) {
	f.listedCalls = append(f.listedCalls, customerID)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subs[customerID], nil
}

func newTestAdapter(billing BillingAPI) *Adapter {
	return NewAdapter(billing, decimal.RequireFromString("4.99"), decimal.NewFromInt(30))
}

func TestCollectNoCustomers(t *testing.T) {
	adapter := newTestAdapter(&fakeBilling{})

	events, err := adapter.Collect(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Nil(t, events, "no customer record must yield an empty list, not an error")
}

func TestCollectNoActiveSubscriptions(t *testing.T) {
	billing := &fakeBilling{
		customers: []Customer{{ID: "cus_1"}},
		subs:      map[string][]SubscriptionRecord{},
	}
	adapter := newTestAdapter(billing)

	events, err := adapter.Collect(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestCollectSynthesizesOneEventPerCustomer(t *testing.T) {
	billing := &fakeBilling{
		customers: []Customer{{ID: "cus_1"}},
		subs: map[string][]SubscriptionRecord{
			"cus_1": {{ID: "sub_1", Status: "active", CurrentPeriodEnd: periodEndTime}},
		},
	}
	adapter := newTestAdapter(billing)

	events, err := adapter.Collect(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "sub_1", ev.SettlementRef)
	assert.Equal(t, SourceID, ev.SourceID)
	assert.Equal(t, ledger.TokenFiat, ev.Token)
	assert.Equal(t, ledger.KindPayment, ev.Kind)
	assert.True(t, ev.NormalizedValue.Equal(decimal.RequireFromString("4.99")))
	assert.True(t, ev.EntitlementDays.Equal(decimal.NewFromInt(30)))

	// Reducing the synthesized event alone must land expiry exactly on the
	// subscription's current period end.
	status := ledger.Reduce(events, periodEndTime.Add(-time.Hour))
	require.True(t, status.IsActive)
	assert.Equal(t, periodEndTime, *status.ExpiresAt)
}

// An account can map to several processor customers over its lifetime;
// every record contributes.
func TestCollectMergesMultipleCustomers(t *testing.T) {
	billing := &fakeBilling{
		customers: []Customer{{ID: "cus_1"}, {ID: "cus_2"}},
		subs: map[string][]SubscriptionRecord{
			"cus_1": {{ID: "sub_1", Status: "active", CurrentPeriodEnd: periodEndTime}},
			"cus_2": {{ID: "sub_2", Status: "active", CurrentPeriodEnd: periodEndTime.Add(48 * time.Hour)}},
		},
	}
	adapter := newTestAdapter(billing)

	events, err := adapter.Collect(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, []string{"cus_1", "cus_2"}, billing.listedCalls)
}

// A billing record with no resolvable period end must not synthesize an
// event: anchored at the zero time it would inflate totals with a phantom
// ancient payment.
func TestCollectSkipsRecordsWithoutPeriodEnd(t *testing.T) {
	billing := &fakeBilling{
		customers: []Customer{{ID: "cus_1"}},
		subs: map[string][]SubscriptionRecord{
			"cus_1": {{ID: "sub_zero", Status: "active"}},
		},
	}
	adapter := newTestAdapter(billing)

	events, err := adapter.Collect(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestCollectSearchError(t *testing.T) {
	adapter := newTestAdapter(&fakeBilling{searchErr: errors.New("stripe unavailable")})

	_, err := adapter.Collect(context.Background(), "0xabc")
	assert.Error(t, err)
}

func TestRepresentative(t *testing.T) {
	stale := SubscriptionRecord{ID: "sub_stale", CurrentPeriodEnd: periodEndTime.Add(-30 * 24 * time.Hour)}
	current := SubscriptionRecord{ID: "sub_current", CurrentPeriodEnd: periodEndTime}
	future := SubscriptionRecord{ID: "sub_future", CurrentPeriodEnd: periodEndTime.Add(30 * 24 * time.Hour)}

	tests := []struct {
		name   string
		subs   []SubscriptionRecord
		wantID string
		ok     bool
	}{
		{"empty", nil, "", false},
		{"single", []SubscriptionRecord{current}, "sub_current", true},
		{"latest period end wins", []SubscriptionRecord{stale, future, current}, "sub_future", true},
		{"duplicates keep first", []SubscriptionRecord{current, {ID: "sub_dup", CurrentPeriodEnd: periodEndTime}}, "sub_current", true},
		{"zero period end alone yields nothing", []SubscriptionRecord{{ID: "sub_zero"}}, "", false},
		{"zero period end never outranks a real one", []SubscriptionRecord{{ID: "sub_zero"}, current}, "sub_current", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Representative(tt.subs)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.wantID, got.ID)
			}
		})
	}
}
