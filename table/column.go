package table

import (
	"log/slog"
	"strconv"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// Column is one displayed column. The action column has no field.
type Column struct {
	Field *field.Descriptor
	Label string
	Color field.Color
}

// ActionColumn is the leading column holding the row actions.
var ActionColumn = Column{Label: ""}

// NewColumn builds the column of d.
func NewColumn(d *field.Descriptor) Column {
	return Column{Field: d, Label: d.VerboseName, Color: d.Color}
}

// IsAction reports whether c is the action column.
func (c Column) IsAction() bool {
	return c.Field == nil
}

// Orderable reports whether the table can sort by c.
func (c Column) Orderable() bool {
	return c.Field != nil && c.Field.Kind != field.KindManyToMany
}

// Render renders the cell of c for rec.
func (c Column) Render(rec query.Record) string {
	return RenderCell(c.Field, rec[c.Field.Name])
}

// Search returns the predicate matching s against the column, or nil when
// the column does not take part in searches. Integer primary keys match
// digit-only strings exactly; text columns match case-insensitively.
func (c Column) Search(s string, logger *slog.Logger) query.Predicate {
	d := c.Field
	if s == "" || d == nil {
		return nil
	}
	switch {
	case d.PrimaryKey && d.Kind.IsInteger():
		if !isDigits(s) {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		return condition(d, "exact", n, logger)
	case d.Kind.IsText():
		return condition(d, "icontains", s, logger)
	}
	logger.Debug("search is not supported", "field", d.Name, "kind", d.Kind.String())
	return nil
}

func condition(d *field.Descriptor, op string, v any, logger *slog.Logger) query.Predicate {
	l, err := d.Lookup(op)
	if err != nil {
		logger.Debug("search lookup unavailable", "field", d.Name, "op", op, "error", err)
		return nil
	}
	return query.Condition{Lookup: l, Value: v}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
