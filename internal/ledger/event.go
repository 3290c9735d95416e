// Package ledger holds the payment event model and the pure reduction
// logic that turns raw payment history into a subscription status. Nothing
// in this package performs I/O; statuses are derived fresh on every call
// and never persisted.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies the direction of value movement for an event.
type Kind string

const (
	KindPayment Kind = "payment"
	KindRefund  Kind = "refund"
)

// Token identifies an accepted payment token. TokenFiat is the synthetic
// symbol used for events synthesized from the payment processor.
type Token string

const (
	TokenUSDC Token = "USDC"
	TokenUSDT Token = "USDT"
	TokenDAI  Token = "DAI"
	TokenWETH Token = "WETH"
	TokenPOL  Token = "POL"
	TokenFiat Token = "FIAT"
)

// Stable reports whether the token is pegged 1:1 to the normalized
// currency, making price lookups unnecessary.
func (t Token) Stable() bool {
	switch t {
	case TokenUSDC, TokenUSDT, TokenDAI, TokenFiat:
		return true
	default:
		return false
	}
}

// PaymentEvent is an immutable fact about value moving between the account
// and the payment-receiving party. SettlementRef is unique within a source
// and is the dedup key; OccurredAt is the authoritative ordering key.
type PaymentEvent struct {
	SettlementRef   string          `json:"settlementRef"`
	OccurredAt      time.Time       `json:"occurredAt"`
	NativeAmount    decimal.Decimal `json:"nativeAmount"`
	Token           Token           `json:"token"`
	NormalizedValue decimal.Decimal `json:"normalizedValue"`
	EntitlementDays decimal.Decimal `json:"entitlementDays"`
	SourceID        string          `json:"sourceId"`
	Kind            Kind            `json:"kind"`
}

// SubscriptionStatus is the derived entitlement state for one account.
// It is recomputed from scratch on every check and never stored.
type SubscriptionStatus struct {
	IsActive           bool            `json:"isActive"`
	ExpiresAt          *time.Time      `json:"expiresAt"`
	DaysRemaining      int             `json:"daysRemaining"`
	TotalDaysPurchased decimal.Decimal `json:"totalDaysPurchased"`
	TotalPaid          decimal.Decimal `json:"totalPaid"`
	Events             []PaymentEvent  `json:"events"`
}

// Dedupe drops events that repeat a (SourceID, SettlementRef) pair,
// keeping the first occurrence. Collectors already guarantee this for a
// single fetch; Dedupe protects the reducer when branches are combined or
// a fetch is repeated.
func Dedupe(events []PaymentEvent) []PaymentEvent {
	if len(events) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(events))
	out := make([]PaymentEvent, 0, len(events))
	for _, ev := range events {
		key := ev.SourceID + "\x00" + ev.SettlementRef
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}
