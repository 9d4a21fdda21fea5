package sqlstore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// fetch runs q and materialises the rows described by fields, then loads
// the related records of the page.
func (s *Store) fetch(ctx context.Context, fields *field.Set, q string, args []any) ([]query.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query %s: columns: %w", s.table.Name, err)
	}
	descs := make([]*field.Descriptor, len(cols))
	sqrt := make([]bool, len(cols))
	for i, col := range cols {
		d, ok := fields.Get(col)
		if !ok {
			continue
		}
		descs[i] = d
		if d.IsAggregate() {
			_, sqrt[i] = s.d.Aggregate(d.Aggregate, "")
		}
	}

	recs := []query.Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table.Name, err)
		}
		rec := make(query.Record, len(cols))
		for i, d := range descs {
			if d == nil {
				continue
			}
			v := normalize(d.Kind, values[i])
			if f, ok := v.(float64); ok && sqrt[i] {
				v = math.Sqrt(math.Max(f, 0))
			}
			rec[d.Name] = v
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.table.Name, err)
	}

	if err := s.prefetch(ctx, fields, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// normalize converts a scanned driver value into the canonical value of k.
func normalize(k field.Kind, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch k {
	case field.KindInteger:
		return toInt(v)
	case field.KindFloat, field.KindDecimal:
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int64:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	case field.KindBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case string:
			p, err := strconv.ParseBool(b)
			if err == nil {
				return p
			}
		}
	case field.KindDate:
		if t, ok := toTime(v); ok {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	case field.KindDateTime:
		if t, ok := toTime(v); ok {
			return t
		}
	case field.KindTime:
		switch t := v.(type) {
		case time.Time:
			return t.Format(field.TimeOfDayLayout)
		case string:
			if len(t) >= len(field.TimeOfDayLayout) {
				return t[:len(field.TimeOfDayLayout)]
			}
			return t
		}
	case field.KindDuration:
		if n, ok := toInt(v).(int64); ok {
			return time.Duration(n) * time.Microsecond
		}
	case field.KindForeignKey:
		return query.Ref{ID: toInt(v)}
	case field.KindChar, field.KindText, field.KindUUID, field.KindJSON:
		return fmt.Sprint(v)
	}
	return v
}

// toInt returns an int64 when v holds a whole number and v otherwise.
func toInt(v any) any {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		if n == math.Trunc(n) {
			return int64(n)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	return v
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		p, err := dateparse.ParseIn(t, time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		return p.UTC(), true
	}
	return time.Time{}, false
}

// prefetch resolves foreign key displays and many-to-many values for recs
// with one query per relation.
func (s *Store) prefetch(ctx context.Context, fields *field.Set, recs []query.Record) error {
	if len(recs) == 0 {
		return nil
	}
	for _, d := range fields.List() {
		if d.Relation == nil {
			continue
		}
		var err error
		switch d.Kind {
		case field.KindForeignKey:
			err = s.prefetchForeignKey(ctx, d, recs)
		case field.KindManyToMany:
			err = s.prefetchManyToMany(ctx, fields, d, recs)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) prefetchForeignKey(ctx context.Context, d *field.Descriptor, recs []query.Record) error {
	rel := d.Relation
	if rel.Display == "" {
		return nil
	}
	b := &builder{d: s.d}
	var phs []string
	seen := map[string]bool{}
	for _, rec := range recs {
		ref, ok := rec[d.Name].(query.Ref)
		if !ok || seen[fmt.Sprint(ref.ID)] {
			continue
		}
		seen[fmt.Sprint(ref.ID)] = true
		phs = append(phs, b.arg(ref.ID))
	}
	if len(phs) == 0 {
		return nil
	}

	q := fmt.Sprintf("SELECT %s, %s FROM %s AS r WHERE %s IN (%s)",
		b.column("r", rel.TargetKey()), b.column("r", rel.DisplayColumn()),
		s.d.Quote(rel.Table), b.column("r", rel.TargetKey()), strings.Join(phs, ", "))
	s.logger.Debug("sqlstore prefetch", "field", d.Name, "sql", q)
	rows, err := s.db.QueryContext(ctx, q, b.args...)
	if err != nil {
		return fmt.Errorf("prefetch %s: %w", d.Name, err)
	}
	defer rows.Close()

	display := make(map[string]string, len(phs))
	for rows.Next() {
		var id, label any
		if err := rows.Scan(&id, &label); err != nil {
			return fmt.Errorf("prefetch %s: %w", d.Name, err)
		}
		display[fmt.Sprint(toInt(normalizeBytes(id)))] = fmt.Sprint(normalizeBytes(label))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("prefetch %s: %w", d.Name, err)
	}
	for _, rec := range recs {
		if ref, ok := rec[d.Name].(query.Ref); ok {
			ref.Display = display[fmt.Sprint(ref.ID)]
			rec[d.Name] = ref
		}
	}
	return nil
}

func (s *Store) prefetchManyToMany(ctx context.Context, fields *field.Set, d *field.Descriptor, recs []query.Record) error {
	pk := fields.PrimaryKey()
	if pk == nil {
		return nil
	}
	rel := d.Relation
	b := &builder{d: s.d}
	phs := make([]string, 0, len(recs))
	for _, rec := range recs {
		rec[d.Name] = []query.Ref{}
		phs = append(phs, b.arg(rec[pk.Name]))
	}

	q := fmt.Sprintf("SELECT %s, %s, %s FROM %s AS j JOIN %s AS r ON %s = %s WHERE %s IN (%s) ORDER BY %s, %s",
		b.column("j", rel.From), b.column("r", rel.TargetKey()), b.column("r", rel.DisplayColumn()),
		s.d.Quote(rel.Through), s.d.Quote(rel.Table),
		b.column("r", rel.TargetKey()), b.column("j", rel.To),
		b.column("j", rel.From), strings.Join(phs, ", "),
		b.column("j", rel.From), b.column("r", rel.TargetKey()))
	s.logger.Debug("sqlstore prefetch", "field", d.Name, "sql", q)
	rows, err := s.db.QueryContext(ctx, q, b.args...)
	if err != nil {
		return fmt.Errorf("prefetch %s: %w", d.Name, err)
	}
	defer rows.Close()

	refs := make(map[string][]query.Ref, len(recs))
	for rows.Next() {
		var owner, id, label any
		if err := rows.Scan(&owner, &id, &label); err != nil {
			return fmt.Errorf("prefetch %s: %w", d.Name, err)
		}
		key := fmt.Sprint(toInt(normalizeBytes(owner)))
		refs[key] = append(refs[key], query.Ref{ID: toInt(normalizeBytes(id)), Display: fmt.Sprint(normalizeBytes(label))})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("prefetch %s: %w", d.Name, err)
	}
	for _, rec := range recs {
		if r, ok := refs[fmt.Sprint(rec[pk.Name])]; ok {
			rec[d.Name] = r
		}
	}
	return nil
}

func normalizeBytes(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
