// Package processor synthesizes payment events from the centralized
// payment processor's recurring-billing records.
package processor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	interrors "github.com/attova/subledger/internal/errors"
	"github.com/attova/subledger/internal/ledger"
)

// SourceID identifies processor-sourced events in the ledger.
const SourceID = "stripe"

// Customer is one processor-side customer record.
type Customer struct {
	ID string
}

// SubscriptionRecord is one recurring-billing record in an active state.
type SubscriptionRecord struct {
	ID               string
	Status           string
	Created          time.Time
	CurrentPeriodEnd time.Time
}

// BillingAPI is the slice of the processor API the adapter needs.
type BillingAPI interface {
	SearchCustomersByAccountKey(ctx context.Context, accountKey string) ([]Customer, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]SubscriptionRecord, error)
}

// Adapter converts processor billing records into ledger events.
type Adapter struct {
	billing       BillingAPI
	monthlyPrice  decimal.Decimal
	daysPerPeriod decimal.Decimal
}

// NewAdapter creates an Adapter.
func NewAdapter(billing BillingAPI, monthlyPrice, daysPerPeriod decimal.Decimal) *Adapter {
	return &Adapter{billing: billing, monthlyPrice: monthlyPrice, daysPerPeriod: daysPerPeriod}
}

// Collect returns one synthesized payment event per customer record that
// holds an active subscription. An account can map to several customer
// records over its lifetime, so all of them are searched and merged. No
// customer or no active subscription yields an empty list, not an error.
//
// The synthesized event uses the fixed monthly price and period length
// rather than replaying historical invoices. That is a deliberate
// approximation: the current billing period fully determines entitlement,
// and cent-accurate history reconstruction is not attempted.
func (a *Adapter) Collect(ctx context.Context, accountKey string) ([]ledger.PaymentEvent, error) {
	customers, err := a.billing.SearchCustomersByAccountKey(ctx, accountKey)
	if err != nil {
		return nil, interrors.WrapAPIError("search_customers", SourceID, err, 0)
	}
	if len(customers) == 0 {
		return nil, nil
	}

	var events []ledger.PaymentEvent
	for _, customer := range customers {
		subs, err := a.billing.ListActiveSubscriptions(ctx, customer.ID)
		if err != nil {
			return events, interrors.WrapAPIError("list_subscriptions", SourceID, err, 0)
		}
		rep, ok := Representative(subs)
		if !ok {
			continue
		}
		if len(subs) > 1 {
			log.Debug().
				Str("customer", customer.ID).
				Int("candidates", len(subs)).
				Str("chosen", rep.ID).
				Msg("Multiple active subscriptions; latest-expiring one wins")
		}
		events = append(events, a.synthesize(rep))
	}
	return events, nil
}

// Representative picks the subscription whose current billing period ends
// furthest in the future. Billing systems can hold stale or duplicate
// subscription objects for one customer; the latest-expiring record is
// treated as the truth. A record without a period end has no entitlement
// window to synthesize from and is skipped; anchoring it at the zero time
// would inflate totals with a phantom ancient event.
func Representative(subs []SubscriptionRecord) (SubscriptionRecord, bool) {
	best := -1
	for i, sub := range subs {
		if sub.CurrentPeriodEnd.IsZero() {
			continue
		}
		if best == -1 || sub.CurrentPeriodEnd.After(subs[best].CurrentPeriodEnd) {
			best = i
		}
	}
	if best < 0 {
		return SubscriptionRecord{}, false
	}
	return subs[best], true
}

func (a *Adapter) synthesize(sub SubscriptionRecord) ledger.PaymentEvent {
	periodStart := sub.CurrentPeriodEnd.Add(-a.periodLength())
	return ledger.PaymentEvent{
		SettlementRef:   sub.ID,
		OccurredAt:      periodStart,
		NativeAmount:    a.monthlyPrice,
		Token:           ledger.TokenFiat,
		NormalizedValue: a.monthlyPrice,
		EntitlementDays: a.daysPerPeriod,
		SourceID:        SourceID,
		Kind:            ledger.KindPayment,
	}
}

func (a *Adapter) periodLength() time.Duration {
	hours, _ := a.daysPerPeriod.Mul(decimal.NewFromInt(24)).Float64()
	return time.Duration(hours * float64(time.Hour))
}
