package messagequeue

// BudgetAlertPayload is the schema for notify.budget messages.
type BudgetAlertPayload struct {
	Scope      string  `json:"scope"` // "daily" | "monthly"
	Percent    int     `json:"percent"`
	SpentUSD   float64 `json:"spent_usd"`
	LimitUSD   float64 `json:"limit_usd"`
	PeriodKey  string  `json:"period_key"`
	Subreddit  string  `json:"subreddit,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}
