package domain

import "sort"

// ConditionSet is a set of condition codes.
type ConditionSet map[string]struct{}

// Add inserts a code into the set.
func (s ConditionSet) Add(code string) {
	s[code] = struct{}{}
}

// Contains reports membership.
func (s ConditionSet) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// Sorted returns the codes in ascending order.
func (s ConditionSet) Sorted() []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// CoverageKey identifies one coverage bucket: a carrier's product, or the
// carrier-wide bucket when ProductID is empty.
type CoverageKey struct {
	CarrierID string `json:"carrierId"`
	ProductID string `json:"productId,omitempty"`
}

// CoverageMap is derived state: for each (carrier, product-or-empty) pair,
// the condition codes that have a live condition-scoped rule set. It is
// recomputed on demand and never persisted.
type CoverageMap map[CoverageKey]ConditionSet

// CoverageReport is the API-facing view of a coverage computation.
type CoverageReport struct {
	TotalConditions int                     `json:"totalConditions"`
	Products        []ProductCoverage       `json:"products"`
	Carriers        map[string]CarrierStats `json:"carriers"`
}

// ProductCoverage summarizes configuration progress for one coverage bucket.
type ProductCoverage struct {
	CarrierID       string   `json:"carrierId"`
	ProductID       string   `json:"productId,omitempty"`
	ConditionCodes  []string `json:"conditionCodes"`
	ConfiguredCount int      `json:"configuredCount"`
	Percent         int      `json:"percent"`
}

// CarrierStats is the carrier-level rollup: the deduplicated union of the
// carrier's per-product condition sets.
type CarrierStats struct {
	ConfiguredCount int `json:"configuredCount"`
	Percent         int `json:"percent"`
}
