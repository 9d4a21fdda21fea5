package memstore

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// match evaluates p against rec.
func match(p query.Predicate, rec query.Record) bool {
	switch p := p.(type) {
	case nil:
		return true
	case query.Condition:
		return compare(p.Lookup.Comparison(), lookupValue(p.Lookup, rec), p.Value)
	case query.And:
		for _, t := range p {
			if !match(t, rec) {
				return false
			}
		}
		return true
	case query.Or:
		for _, t := range p {
			if match(t, rec) {
				return true
			}
		}
		return false
	case query.Not:
		return !match(p.P, rec)
	}
	return false
}

// lookupValue returns the value of the lookup expression (field plus
// optional transform) for rec.
func lookupValue(l field.Lookup, rec query.Record) any {
	v := rec[l.Field.Name]
	if l.Transform == nil {
		return v
	}
	return transform(l.Transform.Name, l.Field.Kind, v)
}

func transform(op string, k field.Kind, v any) any {
	if v == nil {
		return nil
	}
	switch op {
	case "lower":
		if s, ok := v.(string); ok {
			return strings.ToLower(s)
		}
		return nil
	case "length":
		if s, ok := v.(string); ok {
			return int64(utf8.RuneCountInString(s))
		}
		return nil
	case "round":
		f, ok := toFloat(v)
		if !ok {
			return nil
		}
		return int64(math.Round(f))
	}

	t, ok := toTime(k, v)
	if !ok {
		return nil
	}
	switch op {
	case "year":
		return int64(t.Year())
	case "quarter":
		return int64((int(t.Month()) + 2) / 3)
	case "month":
		return int64(t.Month())
	case "week":
		_, w := t.ISOWeek()
		return int64(w)
	case "day":
		return int64(t.Day())
	case "week_day":
		return int64(t.Weekday()) + 1
	case "iso_week_day":
		if t.Weekday() == time.Sunday {
			return int64(7)
		}
		return int64(t.Weekday())
	case "hour":
		return int64(t.Hour())
	case "minute":
		return int64(t.Minute())
	case "second":
		return int64(t.Second())
	case "date", "trunc_day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "time":
		return t.Format(field.TimeOfDayLayout)
	case "trunc_year":
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case "trunc_quarter":
		m := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), m, 1, 0, 0, 0, 0, time.UTC)
	case "trunc_month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "trunc_week":
		offset := (int(t.Weekday()) + 6) % 7
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return d.AddDate(0, 0, -offset)
	case "trunc_hour":
		return t.Truncate(time.Hour)
	case "trunc_minute":
		return t.Truncate(time.Minute)
	case "trunc_second":
		return t.Truncate(time.Second)
	}
	return nil
}

func toTime(k field.Kind, v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		if k == field.KindTime {
			t, err := time.Parse(field.TimeOfDayLayout, v)
			return t, err == nil
		}
	}
	return time.Time{}, false
}

func compare(op *field.Op, lhs, rhs any) bool {
	if op == nil {
		return false
	}
	if refs, ok := lhs.([]query.Ref); ok {
		switch op.Name {
		case "isnull":
			b, _ := rhs.(bool)
			return (len(refs) == 0) == b
		case "exact":
			for _, r := range refs {
				if compareValues(r.ID, rhs) == 0 {
					return true
				}
			}
		}
		return false
	}
	if op.Name == "isnull" {
		b, _ := rhs.(bool)
		return (lhs == nil) == b
	}
	if lhs == nil || rhs == nil {
		return false
	}
	if r, ok := lhs.(query.Ref); ok {
		lhs = r.ID
	}

	switch op.Name {
	case "exact":
		return compareValues(lhs, rhs) == 0
	case "gt":
		return compareValues(lhs, rhs) > 0
	case "gte":
		return compareValues(lhs, rhs) >= 0
	case "lt":
		return compareValues(lhs, rhs) < 0
	case "lte":
		return compareValues(lhs, rhs) <= 0
	}

	s, sub := fmt.Sprint(lhs), fmt.Sprint(rhs)
	switch op.Name {
	case "iexact":
		return strings.EqualFold(s, sub)
	case "contains":
		return strings.Contains(s, sub)
	case "icontains":
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	case "startswith":
		return strings.HasPrefix(s, sub)
	case "istartswith":
		return strings.HasPrefix(strings.ToLower(s), strings.ToLower(sub))
	case "endswith":
		return strings.HasSuffix(s, sub)
	case "iendswith":
		return strings.HasSuffix(strings.ToLower(s), strings.ToLower(sub))
	}
	return false
}

// compareValues orders two values of the same kind. nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if r, ok := a.(query.Ref); ok {
		a = r.ID
	}
	if r, ok := b.(query.Ref); ok {
		b = r.ID
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return cmpFloat(fa, fb)
		}
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case time.Duration:
		if bv, ok := b.(time.Duration); ok {
			return cmpFloat(float64(av), float64(bv))
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// toFloat extracts a numeric value. Durations and times are not numbers.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	}
	return 0, false
}
