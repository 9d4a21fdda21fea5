// Package sqlstore implements record collections over database/sql. Queries
// are built per dialect from a static table definition: identifiers come
// only from that definition and request values are always bound.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// Table is the definition of one record type stored in a SQL table.
type Table struct {
	Name   string
	Fields []field.Spec

	pk *field.Spec
}

func (t *Table) validate() error {
	if t.Name == "" {
		return errors.New("table name is required")
	}
	seen := make(map[string]bool, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Name == "" || strings.Contains(f.Name, "__") {
			return fmt.Errorf("table %s: invalid field name %q", t.Name, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("table %s: duplicate field %q", t.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Kind == field.KindUnknown {
			return fmt.Errorf("table %s: field %s has no kind", t.Name, f.Name)
		}
		if f.PrimaryKey {
			if t.pk != nil {
				return fmt.Errorf("table %s: more than one primary key", t.Name)
			}
			t.pk = f
		}
		if f.Kind.IsRelation() && (f.Relation == nil || f.Relation.Table == "") {
			return fmt.Errorf("table %s: relation %s has no target table", t.Name, f.Name)
		}
		if f.Kind == field.KindManyToMany && (f.Relation.Through == "" || f.Relation.From == "" || f.Relation.To == "") {
			return fmt.Errorf("table %s: many-to-many %s needs through, from and to", t.Name, f.Name)
		}
	}
	if t.pk == nil {
		return fmt.Errorf("table %s: no primary key", t.Name)
	}
	return nil
}

// Store is a query.Store over one table.
type Store struct {
	db     *sql.DB
	d      Dialect
	table  Table
	reg    *field.Registry
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry sets the lookup registry used for field descriptors.
func WithRegistry(reg *field.Registry) Option {
	return func(s *Store) { s.reg = reg }
}

// WithLogger sets the logger used for query diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New validates t and returns a store reading it through db.
func New(db *sql.DB, d Dialect, t Table, opts ...Option) (*Store, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	s := &Store{db: db, d: d, table: t, reg: field.Default, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fields builds the field descriptors of the table.
func (s *Store) Fields() *field.Set {
	return field.NewSet(s.reg, s.table.Fields...)
}

// All returns the collection of every row of the table.
func (s *Store) All() query.Collection {
	return &collection{s: s, fields: s.Fields()}
}

type collection struct {
	s      *Store
	fields *field.Set

	where   []query.Predicate
	group   *field.Lookup
	grouped *field.Set
	having  []query.Predicate
	orders  []query.Order
	err     error
}

func (c *collection) clone() *collection {
	cp := *c
	cp.where = append([]query.Predicate(nil), c.where...)
	cp.having = append([]query.Predicate(nil), c.having...)
	cp.orders = append([]query.Order(nil), c.orders...)
	return &cp
}

func (c *collection) Fields() *field.Set {
	if c.grouped != nil {
		return c.grouped
	}
	return c.fields
}

func (c *collection) add(p query.Predicate) query.Collection {
	if p == nil {
		return c
	}
	cp := c.clone()
	if cp.group != nil {
		cp.having = append(cp.having, p)
	} else {
		cp.where = append(cp.where, p)
	}
	return cp
}

func (c *collection) Filter(p query.Predicate) query.Collection {
	return c.add(p)
}

func (c *collection) Exclude(p query.Predicate) query.Collection {
	if p == nil {
		return c
	}
	return c.add(query.Not{P: p})
}

func (c *collection) OrderBy(orders ...query.Order) query.Collection {
	cp := c.clone()
	cp.orders = append([]query.Order(nil), orders...)
	return cp
}

func (c *collection) GroupBy(key field.Lookup) query.Collection {
	cp := c.clone()
	if cp.group != nil && cp.err == nil {
		cp.err = fmt.Errorf("group by %s: collection is already grouped", key.Name)
		return cp
	}
	k := key.Expr()
	cp.group = &k
	cp.grouped = c.fields.Grouped(k)
	cp.orders = nil
	return cp
}

// from renders the row source and its filters: the table itself, or the
// grouped subquery.
func (c *collection) from(b *builder) (string, error) {
	q := fmt.Sprintf(" FROM %s AS %s", b.d.Quote(c.s.table.Name), baseAlias)
	where, err := b.join(c.where, " AND ", "")
	if err != nil {
		return "", err
	}
	if where != "" {
		q += " WHERE " + where
	}
	if c.group == nil {
		return q, nil
	}

	key, err := b.expr(*c.group)
	if err != nil {
		return "", err
	}
	cols := []string{key + " AS " + b.d.Quote(c.grouped.GroupKey().Name)}
	for _, d := range c.grouped.List() {
		if !d.IsAggregate() {
			continue
		}
		agg, _ := b.d.Aggregate(d.Aggregate, b.column(baseAlias, d.ColumnName()))
		cols = append(cols, agg+" AS "+b.d.Quote(d.Name))
	}
	q = " FROM (SELECT " + strings.Join(cols, ", ") + q + " GROUP BY 1) AS " + groupAlias

	having, err := b.join(c.having, " AND ", "")
	if err != nil {
		return "", err
	}
	if having != "" {
		q += " WHERE " + having
	}
	return q, nil
}

func (c *collection) Count(ctx context.Context) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	b := &builder{d: c.s.d, t: &c.s.table}
	from, err := c.from(b)
	if err != nil {
		return 0, err
	}
	q := "SELECT COUNT(*)" + from
	c.s.logger.Debug("sqlstore count", "table", c.s.table.Name, "sql", q)

	var n int
	if err := c.s.db.QueryRowContext(ctx, q, b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.s.table.Name, err)
	}
	return n, nil
}

// maxLimit stands in for "no limit" when only an offset is requested.
const maxLimit = 1<<31 - 1

func (c *collection) Slice(ctx context.Context, offset, limit int) ([]query.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	b := &builder{d: c.s.d, t: &c.s.table}
	fields := c.Fields()
	from, err := c.from(b)
	if err != nil {
		return nil, err
	}

	var cols []string
	var tie string
	if c.group != nil {
		for _, d := range fields.List() {
			cols = append(cols, b.column(groupAlias, d.Name)+" AS "+b.d.Quote(d.Name))
		}
		tie = b.column(groupAlias, fields.GroupKey().Name)
	} else {
		for _, d := range fields.List() {
			if d.Kind == field.KindManyToMany {
				continue
			}
			cols = append(cols, b.column(baseAlias, d.ColumnName())+" AS "+b.d.Quote(d.Name))
		}
		tie = b.pk()
	}
	order, err := b.orderClause(fields, c.orders, tie)
	if err != nil {
		return nil, err
	}

	q := "SELECT " + strings.Join(cols, ", ") + from + " ORDER BY " + order
	if offset < 0 {
		offset = 0
	}
	if limit >= 0 || offset > 0 {
		if limit < 0 {
			limit = maxLimit
		}
		q += fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", offset)
		}
	}
	c.s.logger.Debug("sqlstore slice", "table", c.s.table.Name, "sql", q)
	return c.s.fetch(ctx, fields, q, b.args)
}

func (s *Store) pkLookup(fields *field.Set) field.Lookup {
	pk := fields.PrimaryKey()
	l, _ := pk.Lookup("exact")
	return l
}

// Get returns the record with primary key pk.
func (s *Store) Get(ctx context.Context, pk string) (query.Record, error) {
	all := s.All()
	id, err := field.Coerce(s.table.pk.Kind, pk)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", pk, query.ErrNotFound)
	}
	recs, err := all.Filter(query.Condition{Lookup: s.pkLookup(all.Fields()), Value: id}).Slice(ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("get %s: %w", pk, query.ErrNotFound)
	}
	return recs[0], nil
}

// Insert stores rec and returns its primary key.
func (s *Store) Insert(ctx context.Context, rec query.Record) (any, error) {
	b := &builder{d: s.d, t: &s.table}
	var cols, phs []string
	for _, f := range s.table.Fields {
		v, ok := rec[f.Name]
		if !ok || f.Kind == field.KindManyToMany || (f.PrimaryKey && v == nil) {
			continue
		}
		cols = append(cols, s.d.Quote(f.ColumnName()))
		phs = append(phs, b.arg(v))
	}
	q := "INSERT INTO " + s.d.Quote(s.table.Name)
	if len(cols) == 0 {
		q += " DEFAULT VALUES"
	} else {
		q += " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(phs, ", ") + ")"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("insert %s: begin: %w", s.table.Name, err)
	}
	defer tx.Rollback()

	id := rec[s.table.pk.Name]
	switch {
	case s.d.Returning():
		q += " RETURNING " + s.d.Quote(s.table.pk.ColumnName())
		if err := tx.QueryRowContext(ctx, q, b.args...).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert %s: %w", s.table.Name, err)
		}
	default:
		res, err := tx.ExecContext(ctx, q, b.args...)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", s.table.Name, err)
		}
		if id == nil {
			n, err := res.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("insert %s: last insert id: %w", s.table.Name, err)
			}
			id = n
		}
	}
	id = normalize(s.table.pk.Kind, id)

	if err := s.setRelations(ctx, tx, id, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("insert %s: commit: %w", s.table.Name, err)
	}
	return id, nil
}

// Update writes the fields present in rec to the record with primary key pk.
func (s *Store) Update(ctx context.Context, pk string, rec query.Record) error {
	id, err := field.Coerce(s.table.pk.Kind, pk)
	if err != nil {
		return fmt.Errorf("update %s: %w", pk, query.ErrNotFound)
	}
	b := &builder{d: s.d, t: &s.table}
	var sets []string
	for _, f := range s.table.Fields {
		v, ok := rec[f.Name]
		if !ok || f.PrimaryKey || f.Kind == field.KindManyToMany {
			continue
		}
		sets = append(sets, s.d.Quote(f.ColumnName())+" = "+b.arg(v))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s: begin: %w", s.table.Name, err)
	}
	defer tx.Rollback()

	pkCol := s.d.Quote(s.table.pk.ColumnName())
	var affected int64
	if len(sets) > 0 {
		q := "UPDATE " + s.d.Quote(s.table.Name) + " SET " + strings.Join(sets, ", ") +
			" WHERE " + pkCol + " = " + b.arg(id)
		res, err := tx.ExecContext(ctx, q, b.args...)
		if err != nil {
			return fmt.Errorf("update %s: %w", s.table.Name, err)
		}
		affected, _ = res.RowsAffected()
	}
	if affected == 0 {
		var n int
		q := "SELECT COUNT(*) FROM " + s.d.Quote(s.table.Name) + " WHERE " + pkCol + " = " + s.d.Placeholder(1)
		if err := tx.QueryRowContext(ctx, q, bindValue(id)).Scan(&n); err != nil {
			return fmt.Errorf("update %s: %w", s.table.Name, err)
		}
		if n == 0 {
			return fmt.Errorf("update %s: %w", pk, query.ErrNotFound)
		}
	}

	if err := s.setRelations(ctx, tx, id, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update %s: commit: %w", s.table.Name, err)
	}
	return nil
}

// Delete removes the record with primary key pk and its join rows.
func (s *Store) Delete(ctx context.Context, pk string) error {
	id, err := field.Coerce(s.table.pk.Kind, pk)
	if err != nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete %s: begin: %w", s.table.Name, err)
	}
	defer tx.Rollback()

	for _, f := range s.table.Fields {
		if f.Kind != field.KindManyToMany {
			continue
		}
		q := "DELETE FROM " + s.d.Quote(f.Relation.Through) + " WHERE " + s.d.Quote(f.Relation.From) + " = " + s.d.Placeholder(1)
		if _, err := tx.ExecContext(ctx, q, bindValue(id)); err != nil {
			return fmt.Errorf("delete %s: %s: %w", s.table.Name, f.Name, err)
		}
	}
	q := "DELETE FROM " + s.d.Quote(s.table.Name) + " WHERE " + s.d.Quote(s.table.pk.ColumnName()) + " = " + s.d.Placeholder(1)
	if _, err := tx.ExecContext(ctx, q, bindValue(id)); err != nil {
		return fmt.Errorf("delete %s: %w", s.table.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete %s: commit: %w", s.table.Name, err)
	}
	return nil
}

// setRelations replaces the join rows of every many-to-many field in rec.
func (s *Store) setRelations(ctx context.Context, tx *sql.Tx, id any, rec query.Record) error {
	for _, f := range s.table.Fields {
		v, ok := rec[f.Name]
		if !ok || f.Kind != field.KindManyToMany {
			continue
		}
		rel := f.Relation
		through := s.d.Quote(rel.Through)
		del := "DELETE FROM " + through + " WHERE " + s.d.Quote(rel.From) + " = " + s.d.Placeholder(1)
		if _, err := tx.ExecContext(ctx, del, bindValue(id)); err != nil {
			return fmt.Errorf("set %s: %w", f.Name, err)
		}
		ins := "INSERT INTO " + through + " (" + s.d.Quote(rel.From) + ", " + s.d.Quote(rel.To) + ") VALUES (" +
			s.d.Placeholder(1) + ", " + s.d.Placeholder(2) + ")"
		for _, target := range relatedIDs(v) {
			if _, err := tx.ExecContext(ctx, ins, bindValue(id), bindValue(target)); err != nil {
				return fmt.Errorf("set %s: %w", f.Name, err)
			}
		}
	}
	return nil
}

func relatedIDs(v any) []any {
	switch v := v.(type) {
	case []query.Ref:
		out := make([]any, len(v))
		for i, r := range v {
			out[i] = r.ID
		}
		return out
	case []any:
		return v
	case []int64:
		out := make([]any, len(v))
		for i, id := range v {
			out[i] = id
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, id := range v {
			out[i] = id
		}
		return out
	}
	return nil
}
