// Package generator batch-derives candidate rules from structured
// condition and product metadata. Generated rule sets always land in
// draft and pass through the same review workflow as hand-authored ones.
package generator

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/opensource-insurance/harrier/internal/domain"
)

// namespace seeds the name-based IDs so repeated generation over the same
// metadata produces the same rule set and rule IDs, letting re-runs
// upsert instead of duplicating.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("harrier/generator"))

func deterministicID(parts ...string) string {
	name := ""
	for _, part := range parts {
		name += part + "\x00"
	}
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// KnockoutStrategy configures knockout generation for one carrier.
type KnockoutStrategy struct {
	CarrierID string

	// NumberThresholds maps "conditionCode.fieldKey" to the value above
	// which the applicant is declined.
	NumberThresholds map[string]float64

	// FlagKnockouts declines applicants who answer yes to any required
	// flag follow-up.
	FlagKnockouts bool
}

// GenerateKnockoutRuleSets derives one draft condition-scoped rule set per
// condition that yields at least one knockout rule. Output order and IDs
// are deterministic for a given input.
func GenerateKnockoutRuleSets(conditions []*domain.HealthCondition, strategy KnockoutStrategy) ([]*domain.RuleSet, error) {
	if strategy.CarrierID == "" {
		return nil, &domain.ValidationError{Detail: "knockout strategy requires a carrier id"}
	}

	sorted := make([]*domain.HealthCondition, len(conditions))
	copy(sorted, conditions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	var sets []*domain.RuleSet
	for _, cond := range sorted {
		rules := knockoutRules(cond, strategy)
		if len(rules) == 0 {
			continue
		}
		rs := &domain.RuleSet{
			ID:            deterministicID("knockout", strategy.CarrierID, cond.Code),
			Scope:         domain.ScopeCondition,
			CarrierID:     strategy.CarrierID,
			ConditionCode: cond.Code,
			Name:          fmt.Sprintf("%s knockouts", cond.Name),
			Description:   fmt.Sprintf("Generated knockout rules for %s", cond.Name),
			ReviewStatus:  domain.StatusDraft,
			Active:        true,
		}
		for _, rule := range rules {
			rule.RuleSetID = rs.ID
		}
		rs.Rules = rules
		sets = append(sets, rs)
	}
	return sets, nil
}

func knockoutRules(cond *domain.HealthCondition, strategy KnockoutStrategy) []*domain.Rule {
	var rules []*domain.Rule
	priority := 10

	for _, field := range cond.FollowUps {
		switch field.Type {
		case domain.FieldNumber:
			threshold, ok := strategy.NumberThresholds[cond.Code+"."+field.Key]
			if !ok {
				continue
			}
			rules = append(rules, &domain.Rule{
				ID:        deterministicID("knockout-rule", strategy.CarrierID, cond.Code, field.Key),
				Priority:  priority,
				Name:      fmt.Sprintf("%s above %v", field.Key, threshold),
				Gender:    domain.GenderAny,
				Predicate: domain.Leaf(field.Key, domain.OpGt, threshold),
				Outcome: domain.Outcome{
					Eligibility: domain.EligibilityDecline,
					Reason:      fmt.Sprintf("%s: %s exceeds %v", cond.Name, field.Prompt, threshold),
				},
			})
			priority += 10

		case domain.FieldFlag:
			if !strategy.FlagKnockouts || !field.Required {
				continue
			}
			rules = append(rules, &domain.Rule{
				ID:        deterministicID("knockout-rule", strategy.CarrierID, cond.Code, field.Key),
				Priority:  priority,
				Name:      fmt.Sprintf("%s flagged", field.Key),
				Gender:    domain.GenderAny,
				Predicate: domain.Leaf(field.Key, domain.OpEq, true),
				Outcome: domain.Outcome{
					Eligibility: domain.EligibilityDecline,
					Reason:      fmt.Sprintf("%s: %s", cond.Name, field.Prompt),
				},
			})
			priority += 10
		}
	}
	return rules
}

// AgeStrategy configures issue-age rule generation.
type AgeStrategy struct {
	CarrierID string

	// Eligibility for out-of-band applicants; defaults to decline.
	Eligibility domain.Eligibility
}

// GenerateAgeRuleSets derives one draft product-scoped rule set per
// product, declining applicants outside the product's issue-age window.
// Products with no configured window are skipped.
func GenerateAgeRuleSets(products []*domain.Product, strategy AgeStrategy) ([]*domain.RuleSet, error) {
	if strategy.CarrierID == "" {
		return nil, &domain.ValidationError{Detail: "age strategy requires a carrier id"}
	}
	eligibility := strategy.Eligibility
	if eligibility == "" {
		eligibility = domain.EligibilityDecline
	}

	sorted := make([]*domain.Product, len(products))
	copy(sorted, products)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var sets []*domain.RuleSet
	for _, product := range sorted {
		if product.CarrierID != strategy.CarrierID {
			continue
		}
		if product.MaxIssueAge <= product.MinIssueAge {
			continue
		}

		rs := &domain.RuleSet{
			ID:           deterministicID("age", strategy.CarrierID, product.ID),
			Scope:        domain.ScopeProduct,
			CarrierID:    strategy.CarrierID,
			ProductID:    product.ID,
			Name:         fmt.Sprintf("%s issue ages", product.Name),
			Description:  fmt.Sprintf("Generated issue-age rules for %s (%d-%d)", product.Name, product.MinIssueAge, product.MaxIssueAge),
			ReviewStatus: domain.StatusDraft,
			Active:       true,
		}

		if product.MinIssueAge > 0 {
			belowMax := product.MinIssueAge - 1
			rs.Rules = append(rs.Rules, &domain.Rule{
				ID:        deterministicID("age-rule", strategy.CarrierID, product.ID, "below"),
				RuleSetID: rs.ID,
				Priority:  10,
				Name:      "below minimum issue age",
				Gender:    domain.GenderAny,
				AgeMax:    &belowMax,
				Outcome: domain.Outcome{
					Eligibility: eligibility,
					Reason:      fmt.Sprintf("below minimum issue age %d for %s", product.MinIssueAge, product.Name),
				},
			})
		}
		aboveMin := product.MaxIssueAge + 1
		rs.Rules = append(rs.Rules, &domain.Rule{
			ID:        deterministicID("age-rule", strategy.CarrierID, product.ID, "above"),
			RuleSetID: rs.ID,
			Priority:  20,
			Name:      "above maximum issue age",
			Gender:    domain.GenderAny,
			AgeMin:    &aboveMin,
			Outcome: domain.Outcome{
				Eligibility: eligibility,
				Reason:      fmt.Sprintf("above maximum issue age %d for %s", product.MaxIssueAge, product.Name),
			},
		})

		sets = append(sets, rs)
	}
	return sets, nil
}
