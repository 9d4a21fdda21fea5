// Package query defines the record collection contract shared by the
// stores, the table builder and the chart builder.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gnemet/viewsets/field"
)

// ErrNotFound is returned by Store.Get and Store.Update for missing keys.
var ErrNotFound = errors.New("record not found")

// Record is one materialised row keyed by field name.
type Record map[string]any

// Ref is a related record: the value of a foreign key, or one element of a
// many-to-many value.
type Ref struct {
	ID      any
	Display string
}

func (r Ref) String() string {
	if r.Display != "" {
		return r.Display
	}
	return fmt.Sprint(r.ID)
}

// JoinRefs renders related records as a comma separated list.
func JoinRefs(refs []Ref) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

// Order is one ordering term over a field or lookup expression name.
type Order struct {
	Name string
	Desc bool
}

func (o Order) String() string {
	if o.Desc {
		return "-" + o.Name
	}
	return o.Name
}

// ParseOrder parses "name" or "-name".
func ParseOrder(s string) Order {
	if strings.HasPrefix(s, "-") {
		return Order{Name: s[1:], Desc: true}
	}
	return Order{Name: s}
}

// Collection is a lazily evaluated, immutable set of records. Chainable
// methods return derived collections and never fail; resolution errors are
// deferred to Count and Slice.
type Collection interface {
	// Fields describes the records produced by the collection. Grouped
	// collections describe their key and aggregates.
	Fields() *field.Set

	Filter(p Predicate) Collection
	Exclude(p Predicate) Collection
	OrderBy(orders ...Order) Collection
	// GroupBy collapses the collection into one record per distinct value
	// of key, annotated with every aggregate of every field.
	GroupBy(key field.Lookup) Collection

	Count(ctx context.Context) (int, error)
	// Slice evaluates the collection and returns at most limit records
	// starting at offset. A negative limit returns every remaining record.
	Slice(ctx context.Context, offset, limit int) ([]Record, error)
}

// Store is a record store of one record type.
type Store interface {
	All() Collection
	Get(ctx context.Context, pk string) (Record, error)
	Insert(ctx context.Context, rec Record) (any, error)
	Update(ctx context.Context, pk string, rec Record) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, pk string) error
}
