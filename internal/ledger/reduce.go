package ledger

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const hoursPerDay = 24

// Reduce folds a list of payment events into a subscription status as of
// now. The entire accumulated entitlement is anchored to the first event's
// timestamp: expiry is first-event time plus the net day total, not a
// chronological walk that re-anchors on each payment. A late refund can
// therefore move expiry retroactively. This matches the externally-visible
// entitlement dates users already have; do not change the anchoring
// without a product decision.
func Reduce(events []PaymentEvent, now time.Time) SubscriptionStatus {
	if len(events) == 0 {
		return SubscriptionStatus{
			TotalDaysPurchased: decimal.Zero,
			TotalPaid:          decimal.Zero,
		}
	}

	sorted := make([]PaymentEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	totalDays := decimal.Zero
	totalPaid := decimal.Zero
	for _, ev := range sorted {
		totalDays = totalDays.Add(ev.EntitlementDays)
		if ev.Kind == KindRefund {
			totalPaid = totalPaid.Sub(ev.NormalizedValue)
		} else {
			totalPaid = totalPaid.Add(ev.NormalizedValue)
		}
	}

	expiresAt := sorted[0].OccurredAt.Add(daysToDuration(totalDays))
	status := SubscriptionStatus{
		ExpiresAt:          &expiresAt,
		TotalDaysPurchased: totalDays,
		TotalPaid:          totalPaid,
		Events:             sorted,
	}
	if now.Before(expiresAt) {
		status.IsActive = true
		status.DaysRemaining = ceilDays(expiresAt.Sub(now))
	}
	return status
}

// Merge combines two independently reduced statuses covering disjoint
// payment histories. Active wins over inactive, the later expiry wins, and
// totals are summed because the sources are complementary, not
// alternatives. An inactive merge still carries the summed history so
// callers can show "paid before but lapsed".
func Merge(a, b SubscriptionStatus, now time.Time) SubscriptionStatus {
	merged := SubscriptionStatus{
		IsActive:           a.IsActive || b.IsActive,
		ExpiresAt:          laterExpiry(a.ExpiresAt, b.ExpiresAt),
		TotalDaysPurchased: a.TotalDaysPurchased.Add(b.TotalDaysPurchased),
		TotalPaid:          a.TotalPaid.Add(b.TotalPaid),
	}

	if len(a.Events)+len(b.Events) > 0 {
		events := make([]PaymentEvent, 0, len(a.Events)+len(b.Events))
		events = append(events, a.Events...)
		events = append(events, b.Events...)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		})
		merged.Events = events
	}

	if merged.IsActive && merged.ExpiresAt != nil && now.Before(*merged.ExpiresAt) {
		merged.DaysRemaining = ceilDays(merged.ExpiresAt.Sub(now))
	}
	return merged
}

// laterExpiry picks the later of two expiry instants. A nil expiry loses
// to any non-nil one.
func laterExpiry(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

func daysToDuration(days decimal.Decimal) time.Duration {
	hours, _ := days.Mul(decimal.NewFromInt(hoursPerDay)).Float64()
	return time.Duration(hours * float64(time.Hour))
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / hoursPerDay))
}
