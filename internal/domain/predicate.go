package domain

// PredicateKind tags a node of the predicate expression tree.
type PredicateKind string

const (
	PredicateAnd  PredicateKind = "and"
	PredicateOr   PredicateKind = "or"
	PredicateNot  PredicateKind = "not"
	PredicateLeaf PredicateKind = "leaf"
	// PredicateExpr holds a CEL expression over the same applicant fields,
	// for conditions too awkward to express as comparison leaves. Compiled
	// and type-checked at rule save time.
	PredicateExpr PredicateKind = "expr"
)

// CompareOp is the comparison operator of a leaf node.
type CompareOp string

const (
	OpEq      CompareOp = "eq"
	OpNeq     CompareOp = "neq"
	OpLt      CompareOp = "lt"
	OpLte     CompareOp = "lte"
	OpGt      CompareOp = "gt"
	OpGte     CompareOp = "gte"
	OpIn      CompareOp = "in"
	OpBetween CompareOp = "between"
)

// Predicate is a recursive boolean expression over applicant attributes.
// Exactly one shape is populated per Kind:
//
//	and/or: Children (one or more)
//	not:    Children (exactly one)
//	leaf:   Field, Operator, Value (Values for in/between)
//	expr:   Expression
type Predicate struct {
	Kind       PredicateKind `json:"kind"`
	Children   []*Predicate  `json:"children,omitempty"`
	Field      string        `json:"field,omitempty"`
	Operator   CompareOp     `json:"operator,omitempty"`
	Value      any           `json:"value,omitempty"`
	Values     []any         `json:"values,omitempty"`
	Expression string        `json:"expression,omitempty"`
}

// Leaf builds a single-comparison predicate.
func Leaf(field string, op CompareOp, value any) *Predicate {
	return &Predicate{Kind: PredicateLeaf, Field: field, Operator: op, Value: value}
}

// LeafIn builds a set-membership predicate.
func LeafIn(field string, values ...any) *Predicate {
	return &Predicate{Kind: PredicateLeaf, Field: field, Operator: OpIn, Values: values}
}

// LeafBetween builds an inclusive range predicate.
func LeafBetween(field string, lo, hi any) *Predicate {
	return &Predicate{Kind: PredicateLeaf, Field: field, Operator: OpBetween, Values: []any{lo, hi}}
}

// And combines predicates conjunctively.
func And(children ...*Predicate) *Predicate {
	return &Predicate{Kind: PredicateAnd, Children: children}
}

// Or combines predicates disjunctively.
func Or(children ...*Predicate) *Predicate {
	return &Predicate{Kind: PredicateOr, Children: children}
}

// Not inverts a predicate.
func Not(child *Predicate) *Predicate {
	return &Predicate{Kind: PredicateNot, Children: []*Predicate{child}}
}

// Expr builds a CEL expression predicate.
func Expr(expression string) *Predicate {
	return &Predicate{Kind: PredicateExpr, Expression: expression}
}

// Fields returns every field name referenced by leaf nodes in the tree,
// in traversal order. Expression nodes are resolved separately by the
// predicate compiler.
func (p *Predicate) Fields() []string {
	if p == nil {
		return nil
	}
	var fields []string
	p.walk(func(node *Predicate) {
		if node.Kind == PredicateLeaf && node.Field != "" {
			fields = append(fields, node.Field)
		}
	})
	return fields
}

func (p *Predicate) walk(fn func(*Predicate)) {
	fn(p)
	for _, child := range p.Children {
		if child != nil {
			child.walk(fn)
		}
	}
}
