package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

const (
	baseAlias  = "t"
	groupAlias = "g"
)

// builder accumulates SQL fragments and their bound arguments. Identifiers
// only ever come from the table definition; every value is bound.
type builder struct {
	d    Dialect
	t    *Table
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, bindValue(v))
	return b.d.Placeholder(len(b.args))
}

func (b *builder) column(alias, col string) string {
	return alias + "." + b.d.Quote(col)
}

func (b *builder) pk() string {
	return b.column(baseAlias, b.t.pk.ColumnName())
}

// expr renders the value a lookup compares, groups or orders on.
func (b *builder) expr(l field.Lookup) (string, error) {
	d := l.Field
	if d.GroupKey || d.IsAggregate() {
		return b.column(groupAlias, d.Name), nil
	}
	x := b.column(baseAlias, d.ColumnName())
	if l.Transform == nil {
		return x, nil
	}
	out := b.d.Transform(l.Transform.Name, x)
	if out == "" {
		return "", fmt.Errorf("%s: transform %s is not supported by %s", l.Name, l.Transform.Name, b.d.Name())
	}
	return out, nil
}

func (b *builder) predicate(p query.Predicate) (string, error) {
	switch p := p.(type) {
	case query.Condition:
		return b.condition(p)
	case query.And:
		return b.join(p, " AND ", "1=1")
	case query.Or:
		return b.join(p, " OR ", "1=0")
	case query.Not:
		inner, err := b.predicate(p.P)
		if err != nil {
			return "", err
		}
		// NOT over NULL is NULL: keep rows whose compared column is NULL.
		if c, ok := p.P.(query.Condition); ok && c.Lookup.Field.Nullable &&
			c.Lookup.Comparison().Name != "isnull" && c.Lookup.Field.Kind != field.KindManyToMany {
			x, err := b.expr(c.Lookup)
			if err != nil {
				return "", err
			}
			return "(NOT " + inner + " OR " + x + " IS NULL)", nil
		}
		return "NOT " + inner, nil
	}
	return "", fmt.Errorf("unsupported predicate %T", p)
}

func (b *builder) join(terms []query.Predicate, sep, empty string) (string, error) {
	if len(terms) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		s, err := b.predicate(t)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *builder) condition(c query.Condition) (string, error) {
	l := c.Lookup
	op := l.Comparison()
	if l.Field.Kind == field.KindManyToMany && l.Transform == nil {
		return b.manyToMany(l.Field, op.Name, c.Value)
	}
	x, err := b.expr(l)
	if err != nil {
		return "", err
	}
	v := c.Value
	if l.Transform != nil {
		v = b.d.TransformValue(l.Transform.Name, v)
	}

	switch op.Name {
	case "isnull":
		if v, _ := v.(bool); v {
			return "(" + x + " IS NULL)", nil
		}
		return "(" + x + " IS NOT NULL)", nil
	case "exact":
		return "(" + x + " = " + b.arg(v) + ")", nil
	case "iexact":
		return "(LOWER(" + x + ") = LOWER(" + b.arg(v) + "))", nil
	case "gt":
		return "(" + x + " > " + b.arg(v) + ")", nil
	case "gte":
		return "(" + x + " >= " + b.arg(v) + ")", nil
	case "lt":
		return "(" + x + " < " + b.arg(v) + ")", nil
	case "lte":
		return "(" + x + " <= " + b.arg(v) + ")", nil
	}

	s := fmt.Sprint(v)
	insensitive := strings.HasPrefix(op.Name, "i")
	var prefix, suffix bool
	switch strings.TrimPrefix(op.Name, "i") {
	case "contains":
		prefix, suffix = true, true
	case "startswith":
		suffix = true
	case "endswith":
		prefix = true
	default:
		return "", fmt.Errorf("%s: unsupported comparison %s", l.Name, op.Name)
	}
	ph := b.arg(b.d.Pattern(s, prefix, suffix, insensitive))
	return "(" + b.d.Match(x, ph, insensitive) + ")", nil
}

func (b *builder) manyToMany(d *field.Descriptor, op string, v any) (string, error) {
	rel := d.Relation
	if rel == nil || rel.Through == "" {
		return "", fmt.Errorf("%s: many-to-many field without join table", d.Name)
	}
	sub := fmt.Sprintf("SELECT 1 FROM %s AS j WHERE %s = %s",
		b.d.Quote(rel.Through), b.column("j", rel.From), b.pk())
	switch op {
	case "isnull":
		if null, _ := v.(bool); null {
			return "(NOT EXISTS (" + sub + "))", nil
		}
		return "(EXISTS (" + sub + "))", nil
	case "exact":
		return "(EXISTS (" + sub + " AND " + b.column("j", rel.To) + " = " + b.arg(v) + "))", nil
	}
	return "", fmt.Errorf("%s: unsupported comparison %s", d.Name, op)
}

// bindValue converts canonical values into driver arguments.
func bindValue(v any) any {
	switch v := v.(type) {
	case time.Duration:
		return v.Microseconds()
	case query.Ref:
		return v.ID
	case time.Time:
		return v.UTC()
	}
	return v
}

// orderClause renders the ORDER BY terms followed by the tie-breaker.
func (b *builder) orderClause(fields *field.Set, orders []query.Order, tie string) (string, error) {
	var parts []string
	for _, o := range orders {
		l, err := fields.Resolve(o.Name, false)
		if err != nil {
			return "", fmt.Errorf("order by %s: %w", o.Name, err)
		}
		if l.Field.Kind == field.KindManyToMany {
			return "", fmt.Errorf("order by %s: many-to-many fields are not orderable", o.Name)
		}
		x, err := b.expr(l.Expr())
		if err != nil {
			return "", err
		}
		if o.Desc {
			x += " DESC"
		} else {
			x += " ASC"
		}
		parts = append(parts, x)
	}
	if tie != "" {
		parts = append(parts, tie+" ASC")
	}
	return strings.Join(parts, ", "), nil
}
