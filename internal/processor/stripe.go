package processor

import (
	"context"
	"fmt"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeBilling implements BillingAPI against the Stripe API. Customers
// are tagged with the account key in metadata at checkout time; search
// finds every customer record ever created for the key.
type StripeBilling struct {
	api *client.API
}

// NewStripeBilling creates a Stripe-backed BillingAPI.
func NewStripeBilling(apiKey string) *StripeBilling {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeBilling{api: api}
}

// SearchCustomersByAccountKey finds all customer records tagged with the
// account key.
func (s *StripeBilling) SearchCustomersByAccountKey(ctx context.Context, accountKey string) ([]Customer, error) {
	params := &stripelib.CustomerSearchParams{
		SearchParams: stripelib.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("metadata['account_key']:'%s'", accountKey),
		},
	}

	var customers []Customer
	iter := s.api.Customers.Search(params)
	for iter.Next() {
		customers = append(customers, Customer{ID: iter.Customer().ID})
	}
	return customers, iter.Err()
}

// ListActiveSubscriptions lists the customer's subscriptions in active
// billing state.
func (s *StripeBilling) ListActiveSubscriptions(ctx context.Context, customerID string) ([]SubscriptionRecord, error) {
	params := &stripelib.SubscriptionListParams{
		Customer: stripelib.String(customerID),
		Status:   stripelib.String(string(stripelib.SubscriptionStatusActive)),
	}
	params.Context = ctx

	var records []SubscriptionRecord
	iter := s.api.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		records = append(records, SubscriptionRecord{
			ID:               sub.ID,
			Status:           string(sub.Status),
			Created:          time.Unix(sub.Created, 0).UTC(),
			CurrentPeriodEnd: periodEnd(sub),
		})
	}
	return records, iter.Err()
}

// periodEnd returns the latest current-period end across the
// subscription's items, where the API reports billing periods.
func periodEnd(sub *stripelib.Subscription) time.Time {
	var latest int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > latest {
				latest = item.CurrentPeriodEnd
			}
		}
	}
	if latest == 0 {
		return time.Time{}
	}
	return time.Unix(latest, 0).UTC()
}
