// Package cost defines LM pricing and spend record types.
package cost

import "time"

// Price is the per-million-token price for one model.
type Price struct {
	InputUSD  float64
	OutputUSD float64
}

// DefaultPrices is the built-in per-model price table (USD per 1M tokens).
var DefaultPrices = map[string]Price{
	"claude-3-5-haiku-20241022":  {InputUSD: 0.80, OutputUSD: 4.00},
	"claude-sonnet-4-20250514":   {InputUSD: 3.00, OutputUSD: 15.00},
	"gpt-4o-mini":                {InputUSD: 0.15, OutputUSD: 0.60},
	"gpt-4o":                     {InputUSD: 2.50, OutputUSD: 10.00},
}

// fallbackPrice is used for unknown models so spend is never undercounted.
var fallbackPrice = Price{InputUSD: 3.00, OutputUSD: 15.00}

// Compute returns the USD cost of one call against the price table.
func Compute(prices map[string]Price, model string, tokensIn, tokensOut int) float64 {
	p, ok := prices[model]
	if !ok {
		p = fallbackPrice
	}
	return float64(tokensIn)/1e6*p.InputUSD + float64(tokensOut)/1e6*p.OutputUSD
}

// Record is one LM spend entry persisted for reporting.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	CostUSD   float64   `json:"cost_usd"`
}

// Summary holds aggregate spend for a reporting window.
type Summary struct {
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalTokensIn  int64   `json:"total_tokens_in"`
	TotalTokensOut int64   `json:"total_tokens_out"`
	CallCount      int     `json:"call_count"`
}

// ProviderSummary breaks down spend by provider.
type ProviderSummary struct {
	Provider string `json:"provider"`
	Summary
}
