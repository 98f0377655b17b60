package predicate

import (
	"fmt"

	"github.com/opensource-insurance/harrier/internal/domain"
)

// ValidateRule checks everything about a rule that can be checked at save
// time: the age band, gender filter, outcome, and the predicate tree
// including compilation of any expression nodes. Returns a
// *domain.ConfigurationError describing the first problem found.
func (c *Compiler) ValidateRule(rule *domain.Rule, conditionCode string, catalog *domain.Catalog) error {
	if rule.Name == "" {
		return &domain.ConfigurationError{RuleID: rule.ID, Detail: "rule requires a name"}
	}
	if rule.AgeMin != nil && rule.AgeMax != nil && *rule.AgeMin > *rule.AgeMax {
		return &domain.ConfigurationError{
			RuleID: rule.ID,
			Detail: fmt.Sprintf("age band [%d, %d] is inverted", *rule.AgeMin, *rule.AgeMax),
		}
	}
	switch rule.Gender {
	case domain.GenderMale, domain.GenderFemale, domain.GenderAny, "":
	default:
		return &domain.ConfigurationError{RuleID: rule.ID, Detail: fmt.Sprintf("unknown gender filter %q", rule.Gender)}
	}
	if err := validateOutcome(rule); err != nil {
		return err
	}
	if _, err := c.Compile(rule.Predicate, conditionCode, catalog); err != nil {
		if cfgErr, ok := err.(*domain.ConfigurationError); ok {
			cfgErr.RuleID = rule.ID
			return cfgErr
		}
		return err
	}
	return nil
}

func validateOutcome(rule *domain.Rule) error {
	switch rule.Outcome.Eligibility {
	case domain.EligibilityAccept, domain.EligibilityDecline, domain.EligibilityRefer:
	default:
		return &domain.ConfigurationError{RuleID: rule.ID, Detail: fmt.Sprintf("unknown eligibility %q", rule.Outcome.Eligibility)}
	}
	if rule.Outcome.TableRating < 0 {
		return &domain.ConfigurationError{RuleID: rule.ID, Detail: "table rating must not be negative"}
	}
	if rule.Outcome.FlatExtraPerThousand < 0 {
		return &domain.ConfigurationError{RuleID: rule.ID, Detail: "flat extra must not be negative"}
	}
	if rule.Outcome.FlatExtraPerThousand > 0 && rule.Outcome.FlatExtraYears <= 0 {
		return &domain.ConfigurationError{RuleID: rule.ID, Detail: "flat extra requires a duration in years"}
	}
	return nil
}

// ValidateRuleSet checks the rule set's scope fields and every rule in it.
func (c *Compiler) ValidateRuleSet(rs *domain.RuleSet, catalog *domain.Catalog) error {
	switch rs.Scope {
	case domain.ScopeCondition:
		if rs.ConditionCode == "" {
			return &domain.ConfigurationError{Detail: "condition-scoped rule set requires a condition code"}
		}
		if catalog != nil {
			if _, ok := catalog.Condition(rs.ConditionCode); !ok {
				return &domain.ConfigurationError{Detail: fmt.Sprintf("unknown condition %q", rs.ConditionCode)}
			}
		}
	case domain.ScopeProduct:
		if rs.ProductID == "" {
			return &domain.ConfigurationError{Detail: "product-scoped rule set requires a product id"}
		}
	case domain.ScopeCarrier:
		if rs.CarrierID == "" {
			return &domain.ConfigurationError{Detail: "carrier-scoped rule set requires a carrier id"}
		}
	default:
		return &domain.ConfigurationError{Detail: fmt.Sprintf("unknown rule set scope %q", rs.Scope)}
	}
	for _, rule := range rs.Rules {
		if err := c.ValidateRule(rule, rs.ConditionCode, catalog); err != nil {
			return err
		}
	}
	return nil
}
