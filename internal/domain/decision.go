package domain

import "time"

// ConditionResult is the resolution result for one declared condition,
// including which rule set scope answered and which rule matched.
type ConditionResult struct {
	ConditionCode string       `json:"conditionCode"`
	RuleSetID     string       `json:"ruleSetId,omitempty"`
	Scope         RuleSetScope `json:"scope,omitempty"`
	RuleID        string       `json:"ruleId,omitempty"`
	RuleName      string       `json:"ruleName,omitempty"`
	Matched       bool         `json:"matched"`
	Outcome       *Outcome     `json:"outcome,omitempty"`
	ProcessMs     int64        `json:"processMs"`
}

// AggregateOutcome is the worst-case combination of per-condition outcomes.
type AggregateOutcome struct {
	Eligibility          Eligibility `json:"eligibility"`
	HealthClass          string      `json:"healthClass,omitempty"`
	TableRating          int         `json:"tableRating,omitempty"`
	FlatExtraPerThousand float64     `json:"flatExtraPerThousand,omitempty"`
	FlatExtraYears       int         `json:"flatExtraYears,omitempty"`
	Reasons              []string    `json:"reasons,omitempty"`
	Concerns             []string    `json:"concerns,omitempty"`
}

// Decision is the stored record of one underwriting request: the aggregate
// outcome, the premium if one was priced, and the per-condition trail.
type Decision struct {
	ID        string    `json:"id"`
	CarrierID string    `json:"carrierId"`
	ProductID string    `json:"productId"`
	Age       int       `json:"age"`
	Gender    Gender    `json:"gender"`
	Timestamp time.Time `json:"timestamp"`

	Outcome          AggregateOutcome  `json:"outcome"`
	ConditionResults []ConditionResult `json:"conditionResults"`

	MonthlyPremium float64 `json:"monthlyPremium,omitempty"`
	PremiumStatus  string  `json:"premiumStatus"` // priced, rate_not_available, not_applicable

	Metadata DecisionMetadata `json:"metadata"`
}

// Premium status values for Decision.PremiumStatus.
const (
	PremiumPriced        = "priced"
	PremiumNotAvailable  = "rate_not_available"
	PremiumNotApplicable = "not_applicable"
)

// DecisionMetadata carries processing information for observability.
type DecisionMetadata struct {
	TraceID             string `json:"traceId"`
	ResolveMs           int64  `json:"resolveMs"`
	PremiumMs           int64  `json:"premiumMs"`
	TotalMs             int64  `json:"totalMs"`
	ConditionsEvaluated int    `json:"conditionsEvaluated"`
	EngineVersion       string `json:"engineVersion"`
}
