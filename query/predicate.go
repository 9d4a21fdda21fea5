package query

import (
	"fmt"
	"strings"

	"github.com/gnemet/viewsets/field"
)

// Predicate is a boolean condition over records. Stores translate the
// closed set of implementations below.
type Predicate interface {
	predicate()
	String() string
}

// Condition compares one lookup against a coerced value.
type Condition struct {
	Lookup field.Lookup
	Value  any
}

// And is satisfied when every term is.
type And []Predicate

// Or is satisfied when any term is.
type Or []Predicate

// Not negates a predicate.
type Not struct {
	P Predicate
}

func (Condition) predicate() {}
func (And) predicate()       {}
func (Or) predicate()        {}
func (Not) predicate()       {}

func (c Condition) String() string {
	return fmt.Sprintf("%s__%s=%v", c.Lookup.Expr().Name, c.Lookup.Comparison().Name, c.Value)
}

func (a And) String() string { return join("AND", a) }
func (o Or) String() string  { return join("OR", o) }
func (n Not) String() string { return "NOT " + n.P.String() }

func join(sep string, ps []Predicate) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, " "+sep+" ") + ")"
}

// AllOf ANDs the non-nil predicates. It returns nil when none remain.
func AllOf(ps ...Predicate) Predicate {
	return combine(ps, func(ps []Predicate) Predicate { return And(ps) })
}

// AnyOf ORs the non-nil predicates. It returns nil when none remain.
func AnyOf(ps ...Predicate) Predicate {
	return combine(ps, func(ps []Predicate) Predicate { return Or(ps) })
}

func combine(ps []Predicate, wrap func([]Predicate) Predicate) Predicate {
	var kept []Predicate
	for _, p := range ps {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return wrap(kept)
}
