package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "modforge"

// Metrics holds all ModForge metric instruments.
type Metrics struct {
	EventsProcessed metric.Int64Counter
	Decisions       metric.Int64Counter
	DecisionSeconds metric.Float64Histogram
	LMCalls         metric.Int64Counter
	LMCostUSD       metric.Float64Histogram
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	BudgetBlocks    metric.Int64Counter
	TrustBypasses   metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsProcessed, err = meter.Int64Counter("modforge.events.processed",
		metric.WithDescription("Number of platform events processed"))
	if err != nil {
		return nil, err
	}

	m.Decisions, err = meter.Int64Counter("modforge.decisions",
		metric.WithDescription("Number of moderation decisions by action and layer"))
	if err != nil {
		return nil, err
	}

	m.DecisionSeconds, err = meter.Float64Histogram("modforge.decision.duration_seconds",
		metric.WithDescription("End-to-end decision latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.LMCalls, err = meter.Int64Counter("modforge.lm.calls",
		metric.WithDescription("Number of language model calls by provider"))
	if err != nil {
		return nil, err
	}

	m.LMCostUSD, err = meter.Float64Histogram("modforge.lm.cost_usd",
		metric.WithDescription("Per-call language model cost in USD"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("modforge.cache.hits",
		metric.WithDescription("Cache hits by key kind"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("modforge.cache.misses",
		metric.WithDescription("Cache misses by key kind"))
	if err != nil {
		return nil, err
	}

	m.BudgetBlocks, err = meter.Int64Counter("modforge.budget.blocks",
		metric.WithDescription("LM calls blocked by the spend limit"))
	if err != nil {
		return nil, err
	}

	m.TrustBypasses, err = meter.Int64Counter("modforge.trust.bypasses",
		metric.WithDescription("Evaluations skipped for community-trusted users"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
