// Package resolver merges the on-chain and processor payment histories
// into one authoritative subscription status. It is the engine's only
// public entry point.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/attova/subledger/internal/collector"
	interrors "github.com/attova/subledger/internal/errors"
	"github.com/attova/subledger/internal/ledger"
	"github.com/attova/subledger/internal/metrics"
	"github.com/attova/subledger/internal/processor"
)

// Timeouts bound each collection branch independently. The network branch
// fans out across many chains, so it gets the longer budget.
type Timeouts struct {
	Network   time.Duration
	Processor time.Duration
}

// DefaultTimeouts are used where a caller passes zero values.
var DefaultTimeouts = Timeouts{
	Network:   45 * time.Second,
	Processor: 10 * time.Second,
}

// branchResult is one source branch's outcome: either events to reduce or
// a degraded marker explaining why the branch contributed nothing extra.
type branchResult struct {
	events   []ledger.PaymentEvent
	degraded bool
	reason   string
}

// Resolver runs both collection branches concurrently and reduces their
// events into a merged status.
type Resolver struct {
	collector *collector.Collector
	adapter   *processor.Adapter
	timeouts  Timeouts
	now       func() time.Time
}

// New creates a Resolver.
func New(c *collector.Collector, a *processor.Adapter, timeouts Timeouts) *Resolver {
	if timeouts.Network <= 0 {
		timeouts.Network = DefaultTimeouts.Network
	}
	if timeouts.Processor <= 0 {
		timeouts.Processor = DefaultTimeouts.Processor
	}
	return &Resolver{collector: c, adapter: a, timeouts: timeouts, now: time.Now}
}

// CheckSubscription reconstructs the account's subscription status from
// scratch. Each branch is reduced independently, then merged: active wins
// over inactive, the later expiry wins, totals are summed. A failed or
// slow branch degrades to an empty event set; only programmer misuse
// (empty account key) returns an error.
func (r *Resolver) CheckSubscription(ctx context.Context, accountKey string) (ledger.SubscriptionStatus, error) {
	accountKey = strings.TrimSpace(accountKey)
	if accountKey == "" {
		return ledger.SubscriptionStatus{}, interrors.NewSourceError(interrors.ErrorTypeValidation, "check_subscription", "", interrors.ErrInvalidInput)
	}

	start := time.Now()
	defer func() {
		metrics.CheckDuration.Observe(time.Since(start).Seconds())
	}()

	var chainBranch, procBranch branchResult
	var g errgroup.Group
	g.Go(func() error {
		chainBranch = r.collectChain(ctx, accountKey)
		return nil
	})
	g.Go(func() error {
		procBranch = r.collectProcessor(ctx, accountKey)
		return nil
	})
	_ = g.Wait() // branches never return errors; they degrade

	now := r.now()
	chainStatus := ledger.Reduce(ledger.Dedupe(chainBranch.events), now)
	procStatus := ledger.Reduce(ledger.Dedupe(procBranch.events), now)
	merged := ledger.Merge(chainStatus, procStatus, now)

	outcome := "inactive"
	if merged.IsActive {
		outcome = "active"
	}
	metrics.ChecksTotal.WithLabelValues(outcome).Inc()

	log.Info().
		Str("account", accountKey).
		Bool("active", merged.IsActive).
		Int("events", len(merged.Events)).
		Bool("chainDegraded", chainBranch.degraded).
		Bool("processorDegraded", procBranch.degraded).
		Dur("elapsed", time.Since(start)).
		Msg("Subscription check complete")

	return merged, nil
}

func (r *Resolver) collectChain(ctx context.Context, account string) branchResult {
	cctx, cancel := context.WithTimeout(ctx, r.timeouts.Network)
	defer cancel()

	events := r.collector.CollectAll(cctx, account)
	if err := cctx.Err(); err != nil {
		log.Warn().
			Err(err).
			Str("account", account).
			Msg("Network branch hit its timeout; partial events only")
		return branchResult{events: events, degraded: true, reason: err.Error()}
	}
	return branchResult{events: events}
}

func (r *Resolver) collectProcessor(ctx context.Context, accountKey string) branchResult {
	pctx, cancel := context.WithTimeout(ctx, r.timeouts.Processor)
	defer cancel()

	events, err := r.adapter.Collect(pctx, accountKey)
	if err != nil {
		metrics.SourceFailures.WithLabelValues(processor.SourceID).Inc()
		log.Warn().
			Err(err).
			Str("account", accountKey).
			Msg("Processor branch degraded; treating as empty")
		return branchResult{events: events, degraded: true, reason: err.Error()}
	}
	return branchResult{events: events}
}
