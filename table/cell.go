package table

import (
	"html"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// Cell glyphs.
const (
	EmptyGlyph   = `<i class="fa-solid fa-ban text-warning"></i>`
	TrueGlyph    = `<i class="fa-solid fa-check text-success"></i>`
	FalseGlyph   = `<i class="fa-solid fa-xmark text-danger"></i>`
	UnknownGlyph = `<i class="fa-solid fa-question"></i>`
)

// MaxCellLength is the number of characters a cell shows before it is
// cut and marked with an ellipsis.
const MaxCellLength = 25

const ellipsis = "..."

// RenderCell renders v as the markup of one table cell of field d.
func RenderCell(d *field.Descriptor, v any) string {
	// Null booleans get UnknownGlyph, so a boolean cell has three states.
	if d.Kind == field.KindBoolean {
		switch b, ok := v.(bool); {
		case !ok:
			return UnknownGlyph
		case b:
			return TrueGlyph
		default:
			return FalseGlyph
		}
	}
	if v == nil {
		return EmptyGlyph
	}
	if refs, ok := v.([]query.Ref); ok {
		return html.EscapeString(query.JoinRefs(refs))
	}
	return `<span class="cell">` + html.EscapeString(truncate(field.Format(d.Kind, v))) + `</span>`
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxCellLength {
		return s
	}
	return string(r[:MaxCellLength]) + ellipsis
}
