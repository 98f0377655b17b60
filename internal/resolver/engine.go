// Package resolver holds the live rule sets and resolves applicant
// profiles to underwriting outcomes.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-insurance/harrier/internal/domain"
	"github.com/opensource-insurance/harrier/internal/predicate"
)

// Engine resolves applicant profiles against the live rule sets.
// Rule sets are compiled up front and held in memory; Resolve takes a
// read lock so hot reloads never block in-flight decisions.
type Engine struct {
	mu       sync.RWMutex
	compiler *predicate.Compiler
	live     map[domain.RuleSetKey]*CompiledRuleSet
	catalog  *domain.Catalog
}

// CompiledRuleSet pairs a live rule set with its compiled predicates,
// rules ordered by priority.
type CompiledRuleSet struct {
	RuleSet    *domain.RuleSet
	Predicates []*predicate.Compiled // index-aligned with RuleSet.Rules
}

// NewEngine creates an engine with an empty rule set table.
func NewEngine(compiler *predicate.Compiler) *Engine {
	return &Engine{
		compiler: compiler,
		live:     make(map[domain.RuleSetKey]*CompiledRuleSet),
		catalog:  domain.NewCatalog(nil),
	}
}

// LoadRuleSet compiles and loads a single live rule set.
func (e *Engine) LoadRuleSet(rs *domain.RuleSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(rs, e.catalog)
	if err != nil {
		return err
	}
	e.live[rs.Key()] = compiled
	return nil
}

// ReloadRuleSets replaces the catalog and the full live table atomically.
// Either every rule set compiles and the swap happens, or nothing changes.
func (e *Engine) ReloadRuleSets(catalog *domain.Catalog, sets []*domain.RuleSet) error {
	fresh := make(map[domain.RuleSetKey]*CompiledRuleSet, len(sets))
	for _, rs := range sets {
		if !rs.Live() {
			continue
		}
		compiled, err := e.compile(rs, catalog)
		if err != nil {
			return fmt.Errorf("rule set %s: %w", rs.ID, err)
		}
		fresh[rs.Key()] = compiled
	}

	e.mu.Lock()
	e.live = fresh
	e.catalog = catalog
	e.mu.Unlock()
	return nil
}

func (e *Engine) compile(rs *domain.RuleSet, catalog *domain.Catalog) (*CompiledRuleSet, error) {
	domain.SortRules(rs.Rules)
	predicates := make([]*predicate.Compiled, len(rs.Rules))
	for i, rule := range rs.Rules {
		compiled, err := e.compiler.Compile(rule.Predicate, rs.ConditionCode, catalog)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		predicates[i] = compiled
	}
	return &CompiledRuleSet{RuleSet: rs, Predicates: predicates}, nil
}

// RuleSetsCount returns the number of loaded live rule sets.
func (e *Engine) RuleSetsCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.live)
}

// Catalog returns the condition catalog backing the loaded rule sets.
func (e *Engine) Catalog() *domain.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog
}

// Resolve evaluates an applicant profile against the live rule sets for
// the target carrier and product.
//
// Each declared condition resolves through a fallback chain from most to
// least specific: a condition rule set for the target product, a
// carrier-wide condition rule set, then the product and carrier rule sets.
// Within a rule set the first matching rule in priority order wins. A
// condition with no applicable rule anywhere defaults to refer. Profiles
// with no declared conditions still pass through the product and carrier
// rule sets once.
func (e *Engine) Resolve(ctx context.Context, profile *domain.ApplicantProfile, target domain.Target) (*domain.AggregateOutcome, []domain.ConditionResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	conditions := profile.Conditions()
	sort.Strings(conditions)
	results := make([]domain.ConditionResult, 0, len(conditions)+1)

	for _, code := range conditions {
		applicant := &domain.ApplicantContext{
			Age:     profile.Age,
			Gender:  profile.Gender,
			Answers: profile.Answers[code],
		}
		result, err := e.resolveCondition(code, applicant, target)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, result)
	}

	if len(conditions) == 0 {
		applicant := &domain.ApplicantContext{Age: profile.Age, Gender: profile.Gender}
		result, err := e.resolveCondition("", applicant, target)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, result)
	}

	return Aggregate(results), results, nil
}

// resolveCondition walks the fallback chain for a single condition.
func (e *Engine) resolveCondition(code string, applicant *domain.ApplicantContext, target domain.Target) (domain.ConditionResult, error) {
	start := time.Now()

	for _, key := range fallbackChain(code, target) {
		compiled, ok := e.live[key]
		if !ok {
			continue
		}
		rule, predIdx, err := e.firstMatch(compiled, applicant)
		if err != nil {
			return domain.ConditionResult{}, err
		}
		if rule == nil {
			// Rule set exists but nothing matched: fall through to the
			// next scope rather than treating NoMatch as an outcome.
			continue
		}
		outcome := compiled.RuleSet.Rules[predIdx].Outcome
		return domain.ConditionResult{
			ConditionCode: code,
			RuleSetID:     compiled.RuleSet.ID,
			Scope:         compiled.RuleSet.Scope,
			RuleID:        rule.ID,
			RuleName:      rule.Name,
			Matched:       true,
			Outcome:       &outcome,
			ProcessMs:     time.Since(start).Milliseconds(),
		}, nil
	}

	// No rule anywhere covered this condition: route to a human.
	return domain.ConditionResult{
		ConditionCode: code,
		Matched:       false,
		Outcome: &domain.Outcome{
			Eligibility: domain.EligibilityRefer,
			Reason:      defaultReferReason(code),
		},
		ProcessMs: time.Since(start).Milliseconds(),
	}, nil
}

// firstMatch returns the first rule in priority order whose filters and
// predicate match, or nil when the rule set yields no match.
func (e *Engine) firstMatch(compiled *CompiledRuleSet, applicant *domain.ApplicantContext) (*domain.Rule, int, error) {
	for i, rule := range compiled.RuleSet.Rules {
		if !ruleApplies(rule, applicant) {
			continue
		}
		matched, err := compiled.Predicates[i].Evaluate(applicant)
		if err != nil {
			return nil, 0, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if matched {
			return rule, i, nil
		}
	}
	return nil, 0, nil
}

// ruleApplies checks the rule's gender and age-band filters before the
// predicate is consulted.
func ruleApplies(rule *domain.Rule, applicant *domain.ApplicantContext) bool {
	if rule.Gender != "" && rule.Gender != domain.GenderAny && rule.Gender != applicant.Gender {
		return false
	}
	if rule.AgeMin != nil && applicant.Age < *rule.AgeMin {
		return false
	}
	if rule.AgeMax != nil && applicant.Age > *rule.AgeMax {
		return false
	}
	return true
}

// fallbackChain lists rule set keys from most to least specific.
func fallbackChain(conditionCode string, target domain.Target) []domain.RuleSetKey {
	chain := make([]domain.RuleSetKey, 0, 4)
	if conditionCode != "" {
		chain = append(chain,
			domain.RuleSetKey{CarrierID: target.CarrierID, ProductID: target.ProductID, ConditionCode: conditionCode},
			domain.RuleSetKey{CarrierID: target.CarrierID, ConditionCode: conditionCode},
		)
	}
	chain = append(chain,
		domain.RuleSetKey{CarrierID: target.CarrierID, ProductID: target.ProductID},
		domain.RuleSetKey{CarrierID: target.CarrierID},
	)
	return chain
}

func defaultReferReason(conditionCode string) string {
	if conditionCode == "" {
		return "no underwriting rules configured for this product"
	}
	return fmt.Sprintf("no underwriting rules configured for condition %s", conditionCode)
}

// Close clears the live rule set table.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live = make(map[domain.RuleSetKey]*CompiledRuleSet)
	return nil
}
