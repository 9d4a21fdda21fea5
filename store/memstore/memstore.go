// Package memstore is an in-memory record store. It evaluates predicates,
// grouping and ordering in Go and counts how often its collections are
// evaluated.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// Store holds the records of one record type.
type Store struct {
	fields *field.Set

	mu     sync.RWMutex
	rows   []query.Record
	nextID int64

	evals atomic.Int64
}

// New creates an empty store for the given fields.
func New(fields *field.Set, records ...query.Record) *Store {
	s := &Store{fields: fields, nextID: 1}
	for _, rec := range records {
		s.insert(rec)
	}
	return s
}

// Evaluations returns how many times collections of s were evaluated.
func (s *Store) Evaluations() int64 {
	return s.evals.Load()
}

// ResetEvaluations zeroes the evaluation counter.
func (s *Store) ResetEvaluations() {
	s.evals.Store(0)
}

// All returns the collection of every record.
func (s *Store) All() query.Collection {
	return &collection{store: s, fields: s.fields}
}

func (s *Store) pkName() string {
	if pk := s.fields.PrimaryKey(); pk != nil {
		return pk.Name
	}
	return "id"
}

func (s *Store) find(pk string) int {
	name := s.pkName()
	for i, rec := range s.rows {
		if fmt.Sprint(rec[name]) == pk {
			return i
		}
	}
	return -1
}

// Get returns a copy of the record with primary key pk.
func (s *Store) Get(_ context.Context, pk string) (query.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.find(pk)
	if i < 0 {
		return nil, fmt.Errorf("get %s: %w", pk, query.ErrNotFound)
	}
	return copyRecord(s.rows[i]), nil
}

// Insert stores rec, assigning the next integer primary key when rec has
// none, and returns the key.
func (s *Store) Insert(_ context.Context, rec query.Record) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(rec), nil
}

func (s *Store) insert(rec query.Record) any {
	row := s.normalize(rec)
	name := s.pkName()
	switch id := row[name].(type) {
	case nil:
		row[name] = s.nextID
		s.nextID++
	case int64:
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	s.rows = append(s.rows, row)
	return row[name]
}

// Update merges rec into the stored record with primary key pk.
func (s *Store) Update(_ context.Context, pk string, rec query.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(pk)
	if i < 0 {
		return fmt.Errorf("update %s: %w", pk, query.ErrNotFound)
	}
	pkName := s.pkName()
	for k, v := range s.normalize(rec) {
		if k == pkName {
			continue
		}
		s.rows[i][k] = v
	}
	return nil
}

// Delete removes the record with primary key pk if it exists.
func (s *Store) Delete(_ context.Context, pk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(pk); i >= 0 {
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
	}
	return nil
}

// normalize keeps known fields and wraps relation ids into refs.
func (s *Store) normalize(rec query.Record) query.Record {
	out := make(query.Record, len(rec))
	for _, d := range s.fields.List() {
		v, ok := rec[d.Name]
		if !ok {
			continue
		}
		switch d.Kind {
		case field.KindInteger:
			if n, ok := v.(int); ok {
				v = int64(n)
			}
		case field.KindForeignKey:
			v = toRef(v)
		case field.KindManyToMany:
			v = toRefs(v)
		}
		out[d.Name] = v
	}
	return out
}

func toRef(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case query.Ref:
		return v
	case int:
		return query.Ref{ID: int64(v)}
	}
	return query.Ref{ID: v}
}

func toRefs(v any) []query.Ref {
	switch v := v.(type) {
	case []query.Ref:
		return v
	case []any:
		out := make([]query.Ref, 0, len(v))
		for _, x := range v {
			if r, ok := toRef(x).(query.Ref); ok {
				out = append(out, r)
			}
		}
		return out
	case []int64:
		out := make([]query.Ref, len(v))
		for i, id := range v {
			out[i] = query.Ref{ID: id}
		}
		return out
	}
	return nil
}

func copyRecord(rec query.Record) query.Record {
	out := make(query.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// collection is an immutable query over the store. Predicates given before
// GroupBy apply to raw records, later ones to grouped records.
type collection struct {
	store  *Store
	fields *field.Set

	where   []query.Predicate
	group   *field.Lookup
	having  []query.Predicate
	orders  []query.Order
	grouped *field.Set
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

func (c *collection) Count(ctx context.Context) (int, error) {
	rows, err := c.evaluate(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *collection) Slice(ctx context.Context, offset, limit int) ([]query.Record, error) {
	rows, err := c.evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.sort(rows); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []query.Record{}, nil
	}
	end := len(rows)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end], nil
}

func (c *collection) evaluate(ctx context.Context) ([]query.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.store.evals.Add(1)

	c.store.mu.RLock()
	rows := make([]query.Record, 0, len(c.store.rows))
	for _, rec := range c.store.rows {
		if matchAll(c.where, rec) {
			rows = append(rows, copyRecord(rec))
		}
	}
	c.store.mu.RUnlock()

	if c.group == nil {
		return rows, nil
	}
	grouped := groupRecords(rows, *c.group, c.grouped)
	out := grouped[:0]
	for _, rec := range grouped {
		if matchAll(c.having, rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matchAll(ps []query.Predicate, rec query.Record) bool {
	for _, p := range ps {
		if !match(p, rec) {
			return false
		}
	}
	return true
}

// sort orders rows by the requested orders followed by the primary key, or
// by the group key for grouped collections.
func (c *collection) sort(rows []query.Record) error {
	fields := c.Fields()
	type term struct {
		lookup field.Lookup
		desc   bool
	}
	var terms []term
	for _, o := range c.orders {
		l, err := fields.Resolve(o.Name, false)
		if err != nil {
			return fmt.Errorf("order by %s: %w", o.Name, err)
		}
		terms = append(terms, term{lookup: l.Expr(), desc: o.Desc})
	}
	tie := fields.PrimaryKey()
	if tie == nil {
		tie = fields.GroupKey()
	}
	if tie != nil {
		terms = append(terms, term{lookup: field.Lookup{Name: tie.Name, Field: tie}})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, t := range terms {
			cmp := compareValues(lookupValue(t.lookup, rows[i]), lookupValue(t.lookup, rows[j]))
			if cmp == 0 {
				continue
			}
			if t.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}
