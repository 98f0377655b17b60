package domain

import (
	"sort"
	"time"
)

// RuleSetScope is the specificity of a rule set. Resolution falls back from
// condition scope to product scope to carrier scope.
type RuleSetScope string

const (
	ScopeCondition RuleSetScope = "condition"
	ScopeProduct   RuleSetScope = "product"
	ScopeCarrier   RuleSetScope = "carrier"
)

// ReviewStatus is the approval workflow state of a rule set.
type ReviewStatus string

const (
	StatusDraft         ReviewStatus = "draft"
	StatusPendingReview ReviewStatus = "pending_review"
	StatusApproved      ReviewStatus = "approved"
	StatusRejected      ReviewStatus = "rejected"
)

// Gender is an applicant gender as carriers rate it.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderAny    Gender = "any" // rule filter wildcard
)

// Eligibility is the underwriting disposition of an outcome.
type Eligibility string

const (
	EligibilityAccept  Eligibility = "accept"
	EligibilityDecline Eligibility = "decline"
	EligibilityRefer   Eligibility = "refer"
)

// severity orders eligibilities for worst-case aggregation.
var severity = map[Eligibility]int{
	EligibilityAccept:  0,
	EligibilityRefer:   1,
	EligibilityDecline: 2,
}

// WorseEligibility returns the more severe of a and b.
func WorseEligibility(a, b Eligibility) Eligibility {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Outcome is the underwriting decision attached to a matching rule.
type Outcome struct {
	Eligibility          Eligibility `json:"eligibility"`
	HealthClass          string      `json:"healthClass,omitempty"`
	TableRating          int         `json:"tableRating,omitempty"`
	FlatExtraPerThousand float64     `json:"flatExtraPerThousand,omitempty"`
	FlatExtraYears       int         `json:"flatExtraYears,omitempty"`
	Reason               string      `json:"reason"`
	Concerns             []string    `json:"concerns,omitempty"`
}

// Rule is one ordered entry of a rule set. Gender and age band are cheap
// pre-filters checked before the predicate tree is evaluated.
type Rule struct {
	ID          string     `json:"id"`
	RuleSetID   string     `json:"ruleSetId"`
	Priority    int        `json:"priority"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	AgeMin      *int       `json:"ageMin,omitempty"` // inclusive, nil = unbounded
	AgeMax      *int       `json:"ageMax,omitempty"` // inclusive, nil = unbounded
	Gender      Gender     `json:"gender"`
	Predicate   *Predicate `json:"predicate,omitempty"` // nil matches unconditionally
	Outcome     Outcome    `json:"outcome"`
}

// RuleSet is a named, ordered group of rules scoped to a carrier, optionally
// narrowed to a product and a health condition. Review status transitions
// only through the lifecycle state machine.
type RuleSet struct {
	ID            string       `json:"id"`
	Scope         RuleSetScope `json:"scope"`
	CarrierID     string       `json:"carrierId"`
	ProductID     string       `json:"productId,omitempty"`     // empty when scope = carrier
	ConditionCode string       `json:"conditionCode,omitempty"` // set only when scope = condition
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	ReviewStatus  ReviewStatus `json:"reviewStatus"`
	Active        bool         `json:"active"`
	Rules         []*Rule      `json:"rules"`
	ApprovedBy    string       `json:"approvedBy,omitempty"`
	ApprovedAt    *time.Time   `json:"approvedAt,omitempty"`
	RejectReason  string       `json:"rejectReason,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Live reports whether the rule set participates in resolution and coverage:
// approved and active. Draft, pending and rejected sets are invisible to
// runtime resolution regardless of the active flag.
func (rs *RuleSet) Live() bool {
	return rs.ReviewStatus == StatusApproved && rs.Active
}

// Key identifies the uniqueness slot of a rule set: at most one live set may
// exist per key. ProductID and ConditionCode are empty for wider scopes.
func (rs *RuleSet) Key() RuleSetKey {
	return RuleSetKey{
		CarrierID:     rs.CarrierID,
		ProductID:     rs.ProductID,
		ConditionCode: rs.ConditionCode,
	}
}

// RuleSetKey is the (carrier, product-or-empty, condition-or-empty) triple.
type RuleSetKey struct {
	CarrierID     string
	ProductID     string
	ConditionCode string
}

// SortRules orders rules by ascending priority, ties broken by ID so the
// evaluation order is deterministic.
func SortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
