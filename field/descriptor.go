package field

import (
	"errors"
	"fmt"
	"strings"
)

// Relation describes where a foreign key or many-to-many field points.
type Relation struct {
	Table   string `json:"table" yaml:"table"`
	Key     string `json:"key,omitempty" yaml:"key"`         // target primary key column, default "id"
	Display string `json:"display,omitempty" yaml:"display"` // target column rendered for the relation
	Through string `json:"through,omitempty" yaml:"through"` // many-to-many join table
	From    string `json:"from,omitempty" yaml:"from"`       // join column referencing the source record
	To      string `json:"to,omitempty" yaml:"to"`           // join column referencing the target record
}

// TargetKey returns the target primary key column.
func (r *Relation) TargetKey() string {
	if r.Key == "" {
		return "id"
	}
	return r.Key
}

// DisplayColumn returns the column used to render a related record.
func (r *Relation) DisplayColumn() string {
	if r.Display == "" {
		return r.TargetKey()
	}
	return r.Display
}

// Spec is the static schema of one record attribute.
type Spec struct {
	Name        string
	Column      string
	Kind        Kind
	VerboseName string
	Nullable    bool
	PrimaryKey  bool
	Relation    *Relation
}

// ColumnName returns the storage column, defaulting to the field name
// ("{name}_id" for foreign keys).
func (s Spec) ColumnName() string {
	if s.Column != "" {
		return s.Column
	}
	if s.Kind == KindForeignKey {
		return s.Name + "_id"
	}
	return s.Name
}

// Descriptor wraps one attribute (plain, grouping key or aggregate) with the
// metadata derived from its kind.
type Descriptor struct {
	Spec
	Color Color

	// Aggregate is set for annotated aggregate fields; Source then names
	// the aggregated field.
	Aggregate Aggregate
	Source    string
	// GroupKey marks the grouping expression of a grouped collection.
	GroupKey bool

	registry *Registry
}

// New builds a descriptor for spec using the lookups of reg.
func New(reg *Registry, spec Spec) *Descriptor {
	if reg == nil {
		reg = Default
	}
	if spec.VerboseName == "" {
		spec.VerboseName = spec.Name
	}
	return &Descriptor{
		Spec:     spec,
		Color:    ColorFor(spec.ColumnName()),
		registry: reg,
	}
}

// Registry returns the registry the descriptor resolves lookups against.
func (d *Descriptor) Registry() *Registry {
	return d.registry
}

// IsAggregate reports whether d is an annotated aggregate.
func (d *Descriptor) IsAggregate() bool {
	return d.Aggregate != AggNone
}

// Choice is a selectable (name, label) pair for lookup and group-by forms.
type Choice struct {
	Name  string
	Label string
}

func (d *Descriptor) allows(op *Op, k Kind) bool {
	switch {
	case op.Unsupported:
		return false
	case op.TextOnly && !k.IsText():
		return false
	case op.NumberOnly && !k.IsNumeric():
		return false
	case op.Name == "isnull" && !d.Nullable:
		return false
	}
	return true
}

// Lookups enumerates the valid lookups of d. With onlyGroupable set only
// deterministic transforms and the bare field (unless it is the primary key)
// are returned.
func (d *Descriptor) Lookups(onlyGroupable bool) []Choice {
	if d.IsAggregate() || d.GroupKey {
		return nil
	}
	var out []Choice
	if !onlyGroupable || (!d.PrimaryKey && d.Kind != KindManyToMany) {
		out = append(out, Choice{Name: d.Name, Label: d.VerboseName})
	}
	for _, op := range d.registry.Ops(d.Kind) {
		if !d.allows(op, d.Kind) {
			continue
		}
		if onlyGroupable && !op.Transform {
			continue
		}
		name := d.Name + "__" + op.Name
		out = append(out, Choice{Name: name, Label: d.VerboseName + ": " + op.Label})
		if !op.Transform || onlyGroupable {
			continue
		}
		outKind := op.OutputKind(d.Kind)
		for _, sub := range d.registry.Ops(outKind) {
			if sub.Transform || !d.allows(sub, outKind) {
				continue
			}
			out = append(out, Choice{
				Name:  name + "__" + sub.Name,
				Label: d.VerboseName + ": " + op.Label + " " + sub.Label,
			})
		}
	}
	return out
}

// GroupByLookups is Lookups(true).
func (d *Descriptor) GroupByLookups() []Choice {
	return d.Lookups(true)
}

// Aggregates returns the aggregates computed for d when its collection is
// grouped. The primary key only gets a count.
func (d *Descriptor) Aggregates() []Aggregate {
	if d.IsAggregate() || d.GroupKey {
		return nil
	}
	aggs := d.registry.Aggregates(d.Kind)
	if d.PrimaryKey && len(aggs) > 1 {
		return aggs[:1]
	}
	return aggs
}

// ErrUnknownLookup is returned when a lookup name is not valid for a field.
var ErrUnknownLookup = errors.New("unknown lookup")

// Lookup builds the comparison lookup d__opName, validating it against
// d's lookups. An empty opName yields the bare field lookup.
func (d *Descriptor) Lookup(opName string) (Lookup, error) {
	if opName == "" {
		return Lookup{Name: d.Name, Label: d.VerboseName, Field: d}, nil
	}
	op, ok := d.registry.Op(opName)
	if !ok || !d.allows(op, d.Kind) || !d.registered(d.Kind, op) {
		return Lookup{}, fmt.Errorf("%w: %s__%s", ErrUnknownLookup, d.Name, opName)
	}
	l := Lookup{Name: d.Name + "__" + op.Name, Label: d.VerboseName + ": " + op.Label, Field: d}
	if op.Transform {
		l.Transform = op
	} else {
		l.Op = op
	}
	return l, nil
}

func (d *Descriptor) registered(k Kind, op *Op) bool {
	for _, o := range d.registry.Ops(k) {
		if o == op {
			return true
		}
	}
	return false
}

// NewAggregate builds the descriptor annotated on a grouped collection for
// src reduced by a. Its name is "{src}__{aggregate}".
func NewAggregate(src *Descriptor, a Aggregate) *Descriptor {
	d := &Descriptor{
		Spec: Spec{
			Name:        src.Name + "__" + a.String(),
			Column:      src.ColumnName(),
			Kind:        a.ResultKind(src.Kind),
			VerboseName: src.VerboseName + ": " + a.Label(),
			Nullable:    a != AggCount,
		},
		Color:     src.Color,
		Aggregate: a,
		Source:    src.Name,
		registry:  src.registry,
	}
	return d
}

// NewGroupKey builds the descriptor of a grouping expression.
func NewGroupKey(l Lookup) *Descriptor {
	return &Descriptor{
		Spec: Spec{
			Name:        l.Name,
			Column:      l.Field.ColumnName(),
			Kind:        l.Kind(),
			VerboseName: l.Label,
			Nullable:    l.Field.Nullable,
			Relation:    l.Field.Relation,
		},
		Color:    l.Field.Color,
		Source:   l.Name,
		GroupKey: true,
		registry: l.Field.registry,
	}
}

// splitLookup splits "a__b__c" into its parts.
func splitLookup(name string) []string {
	return strings.Split(name, "__")
}
