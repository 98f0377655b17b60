// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"fmt"
	"sort"
)

// ConditionCategory groups health conditions for catalog navigation.
type ConditionCategory string

const (
	CategoryCardiovascular  ConditionCategory = "cardiovascular"
	CategoryMetabolic       ConditionCategory = "metabolic"
	CategoryRespiratory     ConditionCategory = "respiratory"
	CategoryNeurological    ConditionCategory = "neurological"
	CategoryOncology        ConditionCategory = "oncology"
	CategoryMusculoskeletal ConditionCategory = "musculoskeletal"
	CategoryMentalHealth    ConditionCategory = "mental_health"
	CategoryOther           ConditionCategory = "other"
)

// FieldType is the value type of a follow-up question answer.
type FieldType string

const (
	FieldNumber FieldType = "number"
	FieldChoice FieldType = "choice"
	FieldFlag   FieldType = "flag"
	FieldDate   FieldType = "date"
)

// FollowUpQuestion is one typed question in a condition's follow-up schema.
// Key is stable and referenced from rule predicates.
type FollowUpQuestion struct {
	Key      string    `json:"key"`
	Prompt   string    `json:"prompt"`
	Type     FieldType `json:"type"`
	Options  []string  `json:"options,omitempty"` // choice fields only
	Required bool      `json:"required"`
}

// HealthCondition is static reference data describing a declarable condition
// and the follow-up answers collected for it.
type HealthCondition struct {
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	Category  ConditionCategory  `json:"category"`
	FollowUps []FollowUpQuestion `json:"followUps"`
}

// Field returns the follow-up question with the given key.
func (c *HealthCondition) Field(key string) (*FollowUpQuestion, bool) {
	for i := range c.FollowUps {
		if c.FollowUps[i].Key == key {
			return &c.FollowUps[i], true
		}
	}
	return nil, false
}

// Intrinsic applicant field names resolvable from every rule predicate,
// independent of any condition's follow-up schema.
const (
	FieldAge    = "age"
	FieldGender = "gender"
)

// IsIntrinsicField reports whether name is a built-in applicant field.
func IsIntrinsicField(name string) bool {
	return name == FieldAge || name == FieldGender
}

// Catalog is an immutable snapshot of the condition catalog. Evaluation and
// validation receive a Catalog by reference; a refreshed catalog is a new
// value swapped in by the caller, never mutated in place.
type Catalog struct {
	byCode  map[string]*HealthCondition
	ordered []*HealthCondition
}

// NewCatalog builds a snapshot from conditions, sorted by code.
func NewCatalog(conditions []*HealthCondition) *Catalog {
	cat := &Catalog{
		byCode:  make(map[string]*HealthCondition, len(conditions)),
		ordered: make([]*HealthCondition, 0, len(conditions)),
	}
	for _, c := range conditions {
		if c == nil || c.Code == "" {
			continue
		}
		if _, dup := cat.byCode[c.Code]; dup {
			continue
		}
		cat.byCode[c.Code] = c
		cat.ordered = append(cat.ordered, c)
	}
	sort.Slice(cat.ordered, func(i, j int) bool {
		return cat.ordered[i].Code < cat.ordered[j].Code
	})
	return cat
}

// Condition returns the condition with the given code.
func (cat *Catalog) Condition(code string) (*HealthCondition, bool) {
	c, ok := cat.byCode[code]
	return c, ok
}

// Conditions returns all conditions in code order.
func (cat *Catalog) Conditions() []*HealthCondition {
	return cat.ordered
}

// Len returns the total condition count, the denominator for coverage
// percentages.
func (cat *Catalog) Len() int {
	return len(cat.ordered)
}

// ResolveField checks that a predicate field reference is answerable: either
// an intrinsic applicant field or a follow-up key of the given condition.
// conditionCode is empty for product- and carrier-scoped rule sets, which may
// only reference intrinsic fields.
func (cat *Catalog) ResolveField(conditionCode, field string) error {
	if IsIntrinsicField(field) {
		return nil
	}
	if conditionCode == "" {
		return fmt.Errorf("field %q: only intrinsic fields are allowed outside condition scope", field)
	}
	cond, ok := cat.Condition(conditionCode)
	if !ok {
		return fmt.Errorf("unknown condition %q", conditionCode)
	}
	if _, ok := cond.Field(field); !ok {
		return fmt.Errorf("field %q is not in the follow-up schema of condition %q", field, conditionCode)
	}
	return nil
}
