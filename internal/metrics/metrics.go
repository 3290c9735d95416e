// Package metrics exposes Prometheus collectors for the reconciliation
// engine. Degraded reads (price tier fallbacks, conservative defaults,
// source failures) must be visible to operators because they are never
// surfaced to callers as errors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PriceTierFallbacks counts historical price lookups that fell through a
	// precision tier ("5m", "1h") or hit the live spot price ("spot").
	PriceTierFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subledger",
		Subsystem: "pricing",
		Name:      "tier_fallbacks_total",
		Help:      "Historical price lookups that fell through a precision tier.",
	}, []string{"tier"})

	// PriceDefaults counts lookups that exhausted every tier and resolved to
	// the hardcoded conservative default.
	PriceDefaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subledger",
		Subsystem: "pricing",
		Name:      "conservative_defaults_total",
		Help:      "Price lookups resolved with the hardcoded conservative default.",
	}, []string{"token"})

	// PriceCacheHits counts price resolutions served from the cache.
	PriceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subledger",
		Subsystem: "pricing",
		Name:      "cache_hits_total",
		Help:      "Price lookups served from the in-memory cache.",
	})

	// SourceFailures counts payment sources that contributed nothing to a
	// check because of an error or timeout.
	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subledger",
		Subsystem: "collector",
		Name:      "source_failures_total",
		Help:      "Payment sources that contributed zero events due to failure.",
	}, []string{"source"})

	// CheckDuration tracks end-to-end subscription check latency.
	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "subledger",
		Subsystem: "resolver",
		Name:      "check_duration_seconds",
		Help:      "Subscription check duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// ChecksTotal counts subscription checks by outcome.
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subledger",
		Subsystem: "resolver",
		Name:      "checks_total",
		Help:      "Subscription checks by outcome (active/inactive).",
	}, []string{"outcome"})
)
