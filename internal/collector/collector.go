// Package collector retrieves payment and refund events from on-chain
// settlement networks. Collection is stateless: re-running it for the same
// account yields the same event set aside from newly confirmed
// transactions.
package collector

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	interrors "github.com/attova/subledger/internal/errors"
	"github.com/attova/subledger/internal/ledger"
	"github.com/attova/subledger/internal/metrics"
	"github.com/attova/subledger/internal/pricing"
	"github.com/attova/subledger/pkg/chainscan"
)

// ChainReader lists token transfers touching an address and resolves
// block timestamps for one network. *chainscan.Client satisfies it.
type ChainReader interface {
	TokenTransfers(ctx context.Context, address, contract string) ([]chainscan.TokenTransfer, error)
	BlockTimestamp(ctx context.Context, blockNumber int64) (time.Time, error)
}

// TokenContract binds a payment token to its contract on one network.
type TokenContract struct {
	Token    ledger.Token
	Address  string
	Decimals int
}

// Network is one settlement network the collector queries.
type Network struct {
	Name   string
	Tokens []TokenContract
	Reader ChainReader
}

// Settings carries the pricing constants shared by all networks.
type Settings struct {
	ReceivingAddress string
	MonthlyPriceUSD  decimal.Decimal
	DaysPerPeriod    decimal.Decimal
	MinPaymentUSD    decimal.Decimal
}

// Collector gathers payment events across all configured networks.
type Collector struct {
	networks []Network
	oracle   *pricing.Oracle
	settings Settings
}

// New creates a Collector.
func New(networks []Network, oracle *pricing.Oracle, settings Settings) *Collector {
	return &Collector{networks: networks, oracle: oracle, settings: settings}
}

// CollectAll queries every network concurrently and returns whatever was
// gathered. A failed network logs, increments the failure counter, and
// contributes the events it managed to collect before failing; it never
// aborts the other networks.
func (c *Collector) CollectAll(ctx context.Context, account string) []ledger.PaymentEvent {
	type networkResult struct {
		network string
		events  []ledger.PaymentEvent
		err     error
	}

	resultChan := make(chan networkResult, len(c.networks))
	var wg sync.WaitGroup

	for _, network := range c.networks {
		wg.Add(1)
		go func(n Network) {
			defer wg.Done()
			events, err := c.Collect(ctx, n, account)
			resultChan <- networkResult{network: n.Name, events: events, err: err}
		}(network)
	}
	wg.Wait()
	close(resultChan)

	var all []ledger.PaymentEvent
	for res := range resultChan {
		if res.err != nil {
			metrics.SourceFailures.WithLabelValues(res.network).Inc()
			log.Error().
				Err(res.err).
				Str("network", res.network).
				Msg("Network collection failed; keeping partial results")
		}
		all = append(all, res.events...)
	}
	return all
}

// Collect retrieves all payment events for the account on one network:
// one transfer query per token contract, indexed on the account address.
// The receiving address is shared by every customer, so its history can
// outgrow an explorer's result cap and silently lose rows, refunds
// included; the account's own history stays small. Direction is
// classified in-process: account-to-receiver rows are payments,
// receiver-to-account rows are refunds, everything else is ignored.
// Partial results are returned alongside any error.
func (c *Collector) Collect(ctx context.Context, network Network, account string) ([]ledger.PaymentEvent, error) {
	var events []ledger.PaymentEvent
	var errs []error
	seen := make(map[string]struct{})

	for _, tc := range network.Tokens {
		transfers, err := network.Reader.TokenTransfers(ctx, account, tc.Address)
		if err != nil {
			errs = append(errs, interrors.WrapAPIError("token_transfers", network.Name, err, 0))
			continue
		}
		events = append(events, c.convert(ctx, network, tc, transfers, account, seen)...)
	}

	return events, errors.Join(errs...)
}

// convert turns raw transfers into payment events: classify the direction
// against the receiving address, resolve the block timestamp, price the
// native amount at that instant, drop dust below the minimum threshold,
// and compute signed entitlement days. The seen set guarantees a transfer
// reported more than once never double-emits.
func (c *Collector) convert(ctx context.Context, network Network, tc TokenContract, transfers []chainscan.TokenTransfer, account string, seen map[string]struct{}) []ledger.PaymentEvent {
	var out []ledger.PaymentEvent
	for _, tr := range transfers {
		var kind ledger.Kind
		switch {
		case strings.EqualFold(tr.From, account) && strings.EqualFold(tr.To, c.settings.ReceivingAddress):
			kind = ledger.KindPayment
		case strings.EqualFold(tr.From, c.settings.ReceivingAddress) && strings.EqualFold(tr.To, account):
			kind = ledger.KindRefund
		default:
			continue
		}

		if tr.Value.IsZero() {
			continue
		}
		if _, dup := seen[tr.Hash]; dup {
			continue
		}
		seen[tr.Hash] = struct{}{}

		occurredAt, err := network.Reader.BlockTimestamp(ctx, tr.BlockNumber)
		if err != nil {
			log.Warn().
				Err(err).
				Str("network", network.Name).
				Str("hash", tr.Hash).
				Int64("block", tr.BlockNumber).
				Msg("Skipping transfer without a resolvable block timestamp")
			continue
		}

		native := tr.Value.Shift(-int32(tc.Decimals))
		price := c.oracle.PriceAt(ctx, tc.Token, occurredAt, network.Name)
		normalized := native.Mul(price)

		if normalized.LessThan(c.settings.MinPaymentUSD) {
			log.Debug().
				Str("network", network.Name).
				Str("hash", tr.Hash).
				Str("normalized", normalized.String()).
				Msg("Dropping dust transfer below minimum payment threshold")
			continue
		}

		days := normalized.Div(c.settings.MonthlyPriceUSD).Mul(c.settings.DaysPerPeriod)
		if kind == ledger.KindRefund {
			days = days.Neg()
		}

		out = append(out, ledger.PaymentEvent{
			SettlementRef:   tr.Hash,
			OccurredAt:      occurredAt,
			NativeAmount:    native,
			Token:           tc.Token,
			NormalizedValue: normalized,
			EntitlementDays: days,
			SourceID:        network.Name,
			Kind:            kind,
		})
	}
	return out
}
