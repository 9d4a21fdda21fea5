package field

import (
	"fmt"
	"strings"
)

// Lookup is a resolved lookup path: a field, an optional transform and an
// optional comparison.
type Lookup struct {
	Name      string
	Label     string
	Field     *Descriptor
	Transform *Op
	Op        *Op
}

// IsZero reports whether l was never resolved.
func (l Lookup) IsZero() bool {
	return l.Field == nil
}

// Kind is the kind of the value the lookup compares: the transform output,
// or the field kind.
func (l Lookup) Kind() Kind {
	if l.Field == nil {
		return KindUnknown
	}
	return l.Transform.OutputKind(l.Field.Kind)
}

// Comparison returns the comparison operator applied by the lookup. Bare
// lookups compare with icontains on text and exact otherwise.
func (l Lookup) Comparison() *Op {
	if l.Op != nil {
		return l.Op
	}
	reg := Default
	if l.Field != nil && l.Field.registry != nil {
		reg = l.Field.registry
	}
	name := "exact"
	if l.Kind().IsText() && l.Field.Relation == nil {
		name = "icontains"
	}
	op, _ := reg.Op(name)
	return op
}

// Expr returns the lookup with its comparison stripped: the value that is
// grouped or ordered on.
func (l Lookup) Expr() Lookup {
	l.Op = nil
	if l.Transform != nil {
		l.Name = l.Field.Name + "__" + l.Transform.Name
	} else {
		l.Name = l.Field.Name
	}
	return l
}

func (l Lookup) String() string {
	return l.Name
}

// Set is the ordered field universe of a collection.
type Set struct {
	fields  []*Descriptor
	byName  map[string]*Descriptor
	pk      *Descriptor
	grouped *Descriptor
}

// NewSet builds descriptors for specs with reg.
func NewSet(reg *Registry, specs ...Spec) *Set {
	ds := make([]*Descriptor, 0, len(specs))
	for _, s := range specs {
		ds = append(ds, New(reg, s))
	}
	return SetOf(ds...)
}

// SetOf wraps existing descriptors.
func SetOf(ds ...*Descriptor) *Set {
	s := &Set{byName: make(map[string]*Descriptor, len(ds))}
	for _, d := range ds {
		s.fields = append(s.fields, d)
		s.byName[d.Name] = d
		if d.PrimaryKey && s.pk == nil {
			s.pk = d
		}
		if d.GroupKey && s.grouped == nil {
			s.grouped = d
		}
	}
	return s
}

// List returns the descriptors in declaration order.
func (s *Set) List() []*Descriptor {
	return s.fields
}

// Len returns the number of descriptors.
func (s *Set) Len() int {
	return len(s.fields)
}

// Get returns the descriptor with the given name.
func (s *Set) Get(name string) (*Descriptor, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// PrimaryKey returns the primary key descriptor, or nil for grouped sets.
func (s *Set) PrimaryKey() *Descriptor {
	return s.pk
}

// GroupKey returns the grouping key descriptor of a grouped set.
func (s *Set) GroupKey() *Descriptor {
	return s.grouped
}

// IsGrouped reports whether s describes grouped rows.
func (s *Set) IsGrouped() bool {
	return s.grouped != nil
}

// Select returns the descriptors named in names, in that order. Unknown
// names are skipped. An empty names list selects every field.
func (s *Set) Select(names ...string) []*Descriptor {
	if len(names) == 0 {
		return s.fields
	}
	out := make([]*Descriptor, 0, len(names))
	for _, n := range names {
		if d, ok := s.byName[n]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Lookups returns the lookup choices of every field in the set.
func (s *Set) Lookups(onlyGroupable bool) []Choice {
	var out []Choice
	for _, d := range s.fields {
		out = append(out, d.Lookups(onlyGroupable)...)
	}
	return out
}

// Resolve parses a lookup name and checks it belongs to the lookup universe
// of the set (the group-by universe when onlyGroupable is set). Grouping keys
// and aggregates resolve as bare names only.
func (s *Set) Resolve(name string, onlyGroupable bool) (Lookup, error) {
	if d, ok := s.byName[name]; ok && (d.GroupKey || d.IsAggregate()) {
		if onlyGroupable {
			return Lookup{}, fmt.Errorf("%w: %s", ErrUnknownLookup, name)
		}
		return Lookup{Name: d.Name, Label: d.VerboseName, Field: d}, nil
	}

	parts := splitLookup(name)
	if len(parts) == 0 || len(parts) > 3 {
		return Lookup{}, fmt.Errorf("%w: %s", ErrUnknownLookup, name)
	}
	d, ok := s.byName[parts[0]]
	if !ok || d.GroupKey || d.IsAggregate() {
		return Lookup{}, fmt.Errorf("%w: %s", ErrUnknownLookup, name)
	}
	if !contains(d.Lookups(onlyGroupable), name) {
		return Lookup{}, fmt.Errorf("%w: %s", ErrUnknownLookup, name)
	}

	l := Lookup{Name: name, Label: d.VerboseName, Field: d}
	for i, part := range parts[1:] {
		op, ok := d.registry.Op(part)
		if !ok {
			return Lookup{}, fmt.Errorf("%w: %s", ErrUnknownLookup, name)
		}
		l.Label += labelSep(i) + op.Label
		if op.Transform {
			l.Transform = op
		} else {
			l.Op = op
		}
	}
	return l, nil
}

func labelSep(i int) string {
	if i == 0 {
		return ": "
	}
	return " "
}

func contains(choices []Choice, name string) bool {
	for _, c := range choices {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Grouped returns the field set of a collection grouped by key: the key
// itself followed by every aggregate of every field.
func (s *Set) Grouped(key Lookup) *Set {
	ds := []*Descriptor{NewGroupKey(key.Expr())}
	for _, d := range s.fields {
		for _, a := range d.Aggregates() {
			ds = append(ds, NewAggregate(d, a))
		}
	}
	return SetOf(ds...)
}

// Names returns the descriptor names in order.
func (s *Set) Names() []string {
	out := make([]string, len(s.fields))
	for i, d := range s.fields {
		out[i] = d.Name
	}
	return out
}

// ParseKey splits a "{mode}__{lookup}" key into its mode and lookup name.
func ParseKey(key string) (mode, lookup string, ok bool) {
	mode, lookup, ok = strings.Cut(key, "__")
	if !ok || mode == "" || lookup == "" {
		return "", "", false
	}
	return mode, lookup, true
}
