// Package field describes record attributes at runtime: their kind, the
// lookups that may be applied to them, the aggregates they support and
// how raw request values are coerced for them.
//
// Descriptors are cheap and built fresh per request from static Specs.
// The lookup Registry is built once at process start and never mutated.
package field

import "strings"

// Kind classifies how a field is filtered, grouped, aggregated and rendered.
type Kind int

const (
	KindUnknown Kind = iota
	KindInteger
	KindFloat
	KindDecimal
	KindChar
	KindText
	KindBoolean
	KindDate
	KindDateTime
	KindTime
	KindDuration
	KindUUID
	KindJSON
	KindForeignKey
	KindManyToMany
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindInteger:    "integer",
	KindFloat:      "float",
	KindDecimal:    "decimal",
	KindChar:       "char",
	KindText:       "text",
	KindBoolean:    "boolean",
	KindDate:       "date",
	KindDateTime:   "datetime",
	KindTime:       "time",
	KindDuration:   "duration",
	KindUUID:       "uuid",
	KindJSON:       "json",
	KindForeignKey: "foreign_key",
	KindManyToMany: "many_to_many",
}

// kindAliases maps catalog/database type names onto kinds.
var kindAliases = map[string]Kind{
	"int":         KindInteger,
	"int4":        KindInteger,
	"int8":        KindInteger,
	"bigint":      KindInteger,
	"smallint":    KindInteger,
	"serial":      KindInteger,
	"bigserial":   KindInteger,
	"number":      KindInteger,
	"double":      KindFloat,
	"real":        KindFloat,
	"float8":      KindFloat,
	"numeric":     KindDecimal,
	"money":       KindDecimal,
	"varchar":     KindChar,
	"string":      KindChar,
	"email":       KindChar,
	"slug":        KindChar,
	"url":         KindChar,
	"ip":          KindChar,
	"bool":        KindBoolean,
	"int_bool":    KindBoolean,
	"timestamp":   KindDateTime,
	"timestamptz": KindDateTime,
	"interval":    KindDuration,
	"jsonb":       KindJSON,
	"fk":          KindForeignKey,
	"m2m":         KindManyToMany,
}

// ParseKind resolves a kind name or alias. Unknown names yield KindUnknown.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	if k, ok := kindAliases[s]; ok {
		return k
	}
	return KindUnknown
}

// String returns the canonical kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsText reports whether string operators apply.
func (k Kind) IsText() bool {
	return k == KindChar || k == KindText
}

// IsNumeric reports whether number operators and numeric aggregates apply.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindInteger, KindFloat, KindDecimal:
		return true
	default:
		return false
	}
}

// IsInteger reports whether values are whole numbers.
func (k Kind) IsInteger() bool {
	return k == KindInteger
}

// IsTemporal reports whether the kind is a date, datetime or time of day.
func (k Kind) IsTemporal() bool {
	switch k {
	case KindDate, KindDateTime, KindTime:
		return true
	default:
		return false
	}
}

// IsRelation reports whether the field points at other records.
func (k Kind) IsRelation() bool {
	return k == KindForeignKey || k == KindManyToMany
}
