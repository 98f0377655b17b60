// Package coverage derives configuration progress from the live rule
// sets: which (carrier, product, condition) triples have an approved,
// active rule set.
package coverage

import (
	"math"
	"sort"

	"github.com/opensource-insurance/harrier/internal/domain"
)

// Compute folds the live condition-scoped rule sets into a coverage map.
// It is a pure function of its inputs; nothing is persisted and repeated
// runs over the same input yield identical output.
func Compute(sets []*domain.RuleSet) domain.CoverageMap {
	covered := make(domain.CoverageMap)
	for _, rs := range sets {
		if rs.Scope != domain.ScopeCondition || !rs.Live() || rs.ConditionCode == "" {
			continue
		}
		key := domain.CoverageKey{CarrierID: rs.CarrierID, ProductID: rs.ProductID}
		set, ok := covered[key]
		if !ok {
			set = make(domain.ConditionSet)
			covered[key] = set
		}
		set.Add(rs.ConditionCode)
	}
	return covered
}

// Report renders a coverage map against the full condition catalog:
// per-product condition listings with percentages and per-carrier union
// stats. The carrier view unions its products' sets rather than summing
// counts, since the same condition may be configured per product.
func Report(covered domain.CoverageMap, catalog *domain.Catalog) *domain.CoverageReport {
	report := &domain.CoverageReport{
		TotalConditions: catalog.Len(),
		Carriers:        make(map[string]domain.CarrierStats),
	}

	carrierUnion := make(map[string]domain.ConditionSet)
	for key, set := range covered {
		report.Products = append(report.Products, domain.ProductCoverage{
			CarrierID:       key.CarrierID,
			ProductID:       key.ProductID,
			ConditionCodes:  set.Sorted(),
			ConfiguredCount: len(set),
			Percent:         percent(len(set), report.TotalConditions),
		})

		union, ok := carrierUnion[key.CarrierID]
		if !ok {
			union = make(domain.ConditionSet)
			carrierUnion[key.CarrierID] = union
		}
		for code := range set {
			union.Add(code)
		}
	}

	sort.Slice(report.Products, func(i, j int) bool {
		if report.Products[i].CarrierID != report.Products[j].CarrierID {
			return report.Products[i].CarrierID < report.Products[j].CarrierID
		}
		return report.Products[i].ProductID < report.Products[j].ProductID
	})

	for carrierID, union := range carrierUnion {
		report.Carriers[carrierID] = domain.CarrierStats{
			ConfiguredCount: len(union),
			Percent:         percent(len(union), report.TotalConditions),
		}
	}
	return report
}

// percent rounds to the nearest integer for display.
func percent(configured, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(configured) / float64(total) * 100))
}
