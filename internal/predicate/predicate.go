// Package predicate provides compilation and evaluation of rule predicates:
// recursive and/or/not trees with typed comparison leaves, plus CEL
// expression nodes for conditions the tree can't express.
package predicate

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/opensource-insurance/harrier/internal/domain"
)

// Compiled is a predicate tree prepared for evaluation: structure validated,
// field references resolved, expression nodes compiled to CEL programs.
// Evaluation is a pure function of (compiled predicate, applicant context).
type Compiled struct {
	root     *domain.Predicate
	programs map[*domain.Predicate]cel.Program
}

// Compiler validates and compiles predicates against the condition catalog.
type Compiler struct {
	env *cel.Env
}

// NewCompiler creates a compiler with the applicant evaluation environment.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("age", cel.IntType),
		cel.Variable("gender", cel.StringType),
		cel.Variable("answers", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Compiler{env: env}, nil
}

// Compile validates the tree and compiles its expression nodes.
// conditionCode scopes follow-up field resolution; it is empty for product-
// and carrier-scoped rule sets, which may only reference intrinsic fields.
// A nil predicate compiles to an unconditional match.
func (c *Compiler) Compile(p *domain.Predicate, conditionCode string, catalog *domain.Catalog) (*Compiled, error) {
	compiled := &Compiled{
		root:     p,
		programs: make(map[*domain.Predicate]cel.Program),
	}
	if p == nil {
		return compiled, nil
	}
	if err := c.compileNode(p, conditionCode, catalog, compiled); err != nil {
		return nil, err
	}
	return compiled, nil
}

func (c *Compiler) compileNode(p *domain.Predicate, conditionCode string, catalog *domain.Catalog, out *Compiled) error {
	switch p.Kind {
	case domain.PredicateAnd, domain.PredicateOr:
		if len(p.Children) == 0 {
			return &domain.ConfigurationError{Detail: fmt.Sprintf("%s node requires at least one child", p.Kind)}
		}
		for _, child := range p.Children {
			if child == nil {
				return &domain.ConfigurationError{Detail: fmt.Sprintf("%s node has a nil child", p.Kind)}
			}
			if err := c.compileNode(child, conditionCode, catalog, out); err != nil {
				return err
			}
		}
		return nil

	case domain.PredicateNot:
		if len(p.Children) != 1 || p.Children[0] == nil {
			return &domain.ConfigurationError{Detail: "not node requires exactly one child"}
		}
		return c.compileNode(p.Children[0], conditionCode, catalog, out)

	case domain.PredicateLeaf:
		return validateLeaf(p, conditionCode, catalog)

	case domain.PredicateExpr:
		if p.Expression == "" {
			return &domain.ConfigurationError{Detail: "expr node requires an expression"}
		}
		ast, issues := c.env.Compile(p.Expression)
		if issues != nil && issues.Err() != nil {
			return &domain.ConfigurationError{Detail: fmt.Sprintf("expression %q: %v", p.Expression, issues.Err())}
		}
		if ast.OutputType() != cel.BoolType {
			return &domain.ConfigurationError{Detail: fmt.Sprintf("expression %q must return bool, got %s", p.Expression, ast.OutputType())}
		}
		program, err := c.env.Program(ast)
		if err != nil {
			return &domain.ConfigurationError{Detail: fmt.Sprintf("expression %q: %v", p.Expression, err)}
		}
		out.programs[p] = program
		return nil

	default:
		return &domain.ConfigurationError{Detail: fmt.Sprintf("unknown predicate kind %q", p.Kind)}
	}
}

func validateLeaf(p *domain.Predicate, conditionCode string, catalog *domain.Catalog) error {
	if p.Field == "" {
		return &domain.ConfigurationError{Detail: "leaf node requires a field"}
	}
	if catalog != nil {
		if err := catalog.ResolveField(conditionCode, p.Field); err != nil {
			return &domain.ConfigurationError{Detail: err.Error()}
		}
	}
	switch p.Operator {
	case domain.OpEq, domain.OpNeq, domain.OpLt, domain.OpLte, domain.OpGt, domain.OpGte:
		if p.Value == nil {
			return &domain.ConfigurationError{Detail: fmt.Sprintf("field %q: operator %s requires a value", p.Field, p.Operator)}
		}
	case domain.OpIn:
		if len(p.Values) == 0 {
			return &domain.ConfigurationError{Detail: fmt.Sprintf("field %q: operator in requires values", p.Field)}
		}
	case domain.OpBetween:
		if len(p.Values) != 2 {
			return &domain.ConfigurationError{Detail: fmt.Sprintf("field %q: operator between requires exactly two values", p.Field)}
		}
	default:
		return &domain.ConfigurationError{Detail: fmt.Sprintf("field %q: unknown operator %q", p.Field, p.Operator)}
	}
	return nil
}

// Evaluate runs the compiled predicate against an applicant context.
// A field absent from the context never errors: the leaf simply doesn't
// match, so an unanswered question can only make a rule not apply. An error
// is returned only for structural corruption (a node shape the compiler
// would have rejected), which fails the single request.
func (cp *Compiled) Evaluate(ctx *domain.ApplicantContext) (bool, error) {
	if cp.root == nil {
		return true, nil
	}
	return cp.eval(cp.root, ctx)
}

func (cp *Compiled) eval(p *domain.Predicate, ctx *domain.ApplicantContext) (bool, error) {
	switch p.Kind {
	case domain.PredicateAnd:
		for _, child := range p.Children {
			ok, err := cp.eval(child, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case domain.PredicateOr:
		for _, child := range p.Children {
			ok, err := cp.eval(child, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case domain.PredicateNot:
		if len(p.Children) != 1 {
			return false, fmt.Errorf("corrupt predicate: not node with %d children", len(p.Children))
		}
		ok, err := cp.eval(p.Children[0], ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case domain.PredicateLeaf:
		value, present := ctx.Field(p.Field)
		if !present {
			// Unanswered field: the leaf doesn't match this branch.
			return false, nil
		}
		return compareLeaf(value, p), nil

	case domain.PredicateExpr:
		program, ok := cp.programs[p]
		if !ok {
			return false, fmt.Errorf("corrupt predicate: uncompiled expression %q", p.Expression)
		}
		out, _, err := program.Eval(map[string]any{
			"age":     int64(ctx.Age),
			"gender":  string(ctx.Gender),
			"answers": answersActivation(ctx.Answers),
		})
		if err != nil {
			// Runtime evaluation errors (typically a missing answer key)
			// follow the same policy as absent leaf fields: no match.
			return false, nil
		}
		result, isBool := out.Value().(bool)
		return isBool && result, nil

	default:
		return false, fmt.Errorf("corrupt predicate: unknown kind %q", p.Kind)
	}
}

func answersActivation(answers map[string]any) map[string]any {
	if answers != nil {
		return answers
	}
	return map[string]any{}
}

// compareLeaf performs a type-aware comparison of a context value against
// the leaf's literal(s).
func compareLeaf(value any, p *domain.Predicate) bool {
	switch p.Operator {
	case domain.OpEq:
		return looseEqual(value, p.Value)
	case domain.OpNeq:
		return !looseEqual(value, p.Value)
	case domain.OpLt, domain.OpLte, domain.OpGt, domain.OpGte:
		cmp, ok := compareOrdered(value, p.Value)
		if !ok {
			return false
		}
		switch p.Operator {
		case domain.OpLt:
			return cmp < 0
		case domain.OpLte:
			return cmp <= 0
		case domain.OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case domain.OpIn:
		for _, candidate := range p.Values {
			if looseEqual(value, candidate) {
				return true
			}
		}
		return false
	case domain.OpBetween:
		if len(p.Values) != 2 {
			return false
		}
		lo, okLo := compareOrdered(value, p.Values[0])
		hi, okHi := compareOrdered(value, p.Values[1])
		return okLo && okHi && lo >= 0 && hi <= 0
	default:
		return false
	}
}

// looseEqual compares across the value encodings that survive JSON
// round-trips: numbers of any width, strings, bools.
func looseEqual(a, b any) bool {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// compareOrdered returns -1/0/+1 for value vs literal when both are
// comparable: numbers, or date strings in "2006-01-02" or RFC 3339 form.
// Plain strings compare lexicographically.
func compareOrdered(a, b any) (int, bool) {
	if fa, okA := toFloat(a); okA {
		fb, okB := toFloat(b)
		if !okB {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	as, okA := a.(string)
	bs, okB := b.(string)
	if !okA || !okB {
		return 0, false
	}
	if ta, ok := parseDate(as); ok {
		if tb, ok := parseDate(bs); ok {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
