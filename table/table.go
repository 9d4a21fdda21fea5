// Package table builds the paginated, searchable and sortable result set
// behind a DataTables grid, and renders its rows.
package table

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/forms"
	"github.com/gnemet/viewsets/query"
)

// Defaults of Config.
const (
	DefaultID      = "table"
	DefaultClasses = "table table-striped table-sm display align-middle h-100 w-100"
)

// Config describes a table of one collection.
type Config struct {
	ID      string
	Classes string
	// Fields names the displayed fields of ungrouped tables; empty shows
	// every field.
	Fields []string
	// Actions defaults to DefaultActions when nil. A non-nil empty slice
	// disables the action column.
	Actions []Action
	URLs    URLs

	Filter  *forms.FilterForm
	GroupBy *forms.GroupByForm

	Logger *slog.Logger
}

// Data is the JSON payload answered to a DataTables request.
type Data struct {
	Draw            int        `json:"draw"`
	RecordsTotal    int        `json:"recordsTotal"`
	RecordsFiltered int        `json:"recordsFiltered"`
	Data            [][]string `json:"data"`
}

// Row is one rendered record. Cells follow the table columns, the action
// cell first when present.
type Row struct {
	PK     any
	Record query.Record
	Cells  []string
}

// Table is the evaluated result set of one request.
type Table struct {
	ID        string
	Classes   string
	Columns   []Column
	Rows      []Row
	Paginator Paginator
	Page      Page
	Total     int
	Filtered  int
	Draw      int
	Grouped   bool
	Params    Params

	fields  *field.Set
	actions []Action
	cfg     Config
}

// New applies search, filters, grouping, ordering and pagination to base
// and evaluates the requested page. base is counted once, the refined
// collection once for its count and once for the page.
func New(ctx context.Context, base query.Collection, cfg Config, p Params) (*Table, error) {
	if cfg.ID == "" {
		cfg.ID = DefaultID
	}
	if cfg.Classes == "" {
		cfg.Classes = DefaultClasses
	}
	if cfg.Actions == nil {
		cfg.Actions = DefaultActions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if p.Length <= 0 {
		p.Length = DefaultPageSize
	}
	if p.Start < 0 {
		p.Start = 0
	}

	t := &Table{
		ID:      cfg.ID,
		Classes: cfg.Classes,
		Draw:    p.Draw + 1,
		Params:  p,
		fields:  base.Fields(),
		cfg:     cfg,
	}

	total, err := base.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	t.Total = total

	c := Search(base, cfg.Fields, p.Search, cfg.Logger)
	if cfg.Filter != nil {
		c = cfg.Filter.Refine(c)
	}
	if cfg.GroupBy != nil {
		c = cfg.GroupBy.Refine(c)
	}

	fields := c.Fields()
	t.Grouped = fields.IsGrouped()
	var data []Column
	if t.Grouped {
		for _, d := range fields.List() {
			data = append(data, NewColumn(d))
		}
	} else {
		for _, d := range fields.Select(cfg.Fields...) {
			data = append(data, NewColumn(d))
		}
		if fields.PrimaryKey() != nil && len(cfg.Actions) > 0 {
			t.actions = cfg.Actions
			t.Columns = append(t.Columns, ActionColumn)
		}
	}
	t.Columns = append(t.Columns, data...)

	if i := p.OrderColumn; i >= 0 && i < len(data) && data[i].Orderable() {
		c = c.OrderBy(query.Order{Name: data[i].Field.Name, Desc: p.OrderDesc})
	}

	filtered, err := c.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count filtered records: %w", err)
	}
	t.Filtered = filtered
	t.Paginator = Paginator{Count: filtered, PerPage: p.Length}
	t.Page = t.Paginator.PageAt(p.Start)

	recs, err := c.Slice(ctx, t.Page.Offset(), p.Length)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", t.Page.Number, err)
	}
	pk := fields.PrimaryKey()
	for _, rec := range recs {
		row := Row{Record: rec, Cells: make([]string, 0, len(t.Columns))}
		if pk != nil {
			row.PK = rec[pk.Name]
		}
		for _, col := range t.Columns {
			if col.IsAction() {
				row.Cells = append(row.Cells, t.RenderActions(row.PK))
				continue
			}
			row.Cells = append(row.Cells, col.Render(rec))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Search narrows c to the records matching s in any of the named columns
// (every column when names is empty). Columns that do not support search
// contribute nothing; an empty s returns c unchanged.
func Search(c query.Collection, names []string, s string, logger *slog.Logger) query.Collection {
	if s == "" {
		return c
	}
	if logger == nil {
		logger = slog.Default()
	}
	var preds []query.Predicate
	for _, d := range c.Fields().Select(names...) {
		preds = append(preds, NewColumn(d).Search(s, logger))
	}
	p := query.AnyOf(preds...)
	if p == nil {
		return c
	}
	return c.Filter(p)
}

// RenderActions renders the action cell of the record pk.
func (t *Table) RenderActions(pk any) string {
	return RenderActions(t.actions, t.cfg.URLs, pk)
}

// HasActions reports whether rows carry an action cell.
func (t *Table) HasActions() bool {
	return len(t.actions) > 0
}

// Data returns the DataTables payload of the evaluated page.
func (t *Table) Data() Data {
	out := Data{
		Draw:            t.Draw,
		RecordsTotal:    t.Total,
		RecordsFiltered: t.Filtered,
		Data:            make([][]string, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		out.Data = append(out.Data, r.Cells)
	}
	return out
}

// ContextData returns the values the list markup is rendered with.
func (t *Table) ContextData() map[string]any {
	ctx := map[string]any{
		"table":            t,
		"columns":          t.Columns,
		"rows":             t.Rows,
		"object_list":      t.Rows,
		"paginator":        t.Paginator,
		"page_obj":         t.Page,
		"is_paginated":     t.Page.HasOtherPages(),
		"lookup_choices":   t.fields.Lookups(false),
		"group_by_choices": t.fields.Lookups(true),
		"enabled_filters":  []forms.FilterLookup(nil),
		"group_by":         "",
	}
	if t.cfg.Filter != nil {
		ctx["enabled_filters"] = t.cfg.Filter.Enabled
	}
	if t.cfg.GroupBy != nil {
		ctx["group_by"] = t.cfg.GroupBy.Active
	}
	return ctx
}
