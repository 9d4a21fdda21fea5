package table

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/forms"
	"github.com/gnemet/viewsets/query"
	"github.com/gnemet/viewsets/store/memstore"
)

var testURLs = URLs{
	CodeList:   "/main/",
	CodeDetail: "/main/{pk}/",
	CodeUpdate: "/main/{pk}/update/",
	CodeDelete: "/main/{pk}/delete/",
}

// fixture holds 25 records with ids 1-25. char is "row NN", except record
// 25 which has none; boolean cycles true, false, unknown.
func fixture() *memstore.Store {
	fields := field.NewSet(nil,
		field.Spec{Name: "id", Kind: field.KindInteger, PrimaryKey: true},
		field.Spec{Name: "char", Kind: field.KindChar, Nullable: true},
		field.Spec{Name: "boolean", Kind: field.KindBoolean, Nullable: true},
		field.Spec{Name: "datetime", Kind: field.KindDateTime},
		field.Spec{Name: "tags", Kind: field.KindManyToMany},
	)
	s := memstore.New(fields)
	day := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 1; i <= 25; i++ {
		rec := query.Record{
			"char":     fmt.Sprintf("row %02d", i),
			"datetime": day.AddDate(0, 0, i%3),
			"tags":     []query.Ref{{ID: int64(1), Display: "red"}, {ID: int64(2), Display: "blue"}},
		}
		switch i % 3 {
		case 0:
			rec["boolean"] = true
		case 1:
			rec["boolean"] = false
		}
		if i == 25 {
			rec["char"] = nil
		}
		if _, err := s.Insert(context.Background(), rec); err != nil {
			panic(err)
		}
	}
	s.ResetEvaluations()
	return s
}

func ids(tb *Table) []int64 {
	var out []int64
	for _, r := range tb.Rows {
		out = append(out, r.PK.(int64))
	}
	return out
}

func TestParseParams(t *testing.T) {
	p := ParseParams(url.Values{
		"draw":             {"2"},
		"start":            {"10"},
		"length":           {"25"},
		"search[value]":    {"row"},
		"order[0][column]": {"1"},
		"order[0][dir]":    {"desc"},
	})
	assert.Equal(t, Params{Draw: 2, Start: 10, Length: 25, Search: "row", OrderColumn: 1, OrderDesc: true}, p)

	p = ParseParams(url.Values{"length": {"abc"}, "start": {"-4"}, "order[0][column]": {"x"}})
	assert.Equal(t, Params{Draw: 1, Length: DefaultPageSize, OrderColumn: -1}, p)

	p = ParseParams(url.Values{"length": {"0"}})
	assert.Equal(t, DefaultPageSize, p.Length)

	huge := ParseParams(url.Values{"length": {"9223372036854775807"}, "start": {"9223372036854775807"}})
	assert.Equal(t, MaxPageSize, huge.Length)

	assert.Equal(t, p, ParseParams(p.Encode()))
}

func TestSecondPage(t *testing.T) {
	s := fixture()
	tb, err := New(context.Background(), s.All(), Config{URLs: testURLs},
		ParseParams(url.Values{"length": {"10"}, "start": {"10"}, "draw": {"2"}}))
	require.NoError(t, err)

	data := tb.Data()
	assert.Equal(t, 3, data.Draw)
	assert.Equal(t, 25, data.RecordsTotal)
	assert.Equal(t, 25, data.RecordsFiltered)
	require.Len(t, data.Data, 10)
	assert.Equal(t, []int64{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, ids(tb))

	assert.Equal(t, 2, tb.Page.Number)
	assert.Equal(t, 3, tb.Paginator.NumPages())
	assert.True(t, tb.Page.HasNext())
	assert.True(t, tb.Page.HasPrevious())
	assert.Equal(t, 11, tb.Page.StartIndex())
	assert.Equal(t, 20, tb.Page.EndIndex())

	first := data.Data[0]
	assert.True(t, strings.HasPrefix(first[0], `<div class="btn-group">`), "action cell comes first")
	assert.Contains(t, first[0], `href="/main/11/?next=%2Fmain%2F"`)
	assert.Contains(t, first[0], `hx-delete="/main/11/delete/"`)
	assert.Contains(t, first[0], `hx-confirm="Are you sure?"`)
	assert.Equal(t, `<span class="cell">11</span>`, first[1])
	assert.Equal(t, `<span class="cell">row 11</span>`, first[2])
	assert.Equal(t, "red, blue", first[5])

	assert.LessOrEqual(t, s.Evaluations(), int64(3))
}

func TestEmptyResult(t *testing.T) {
	s := fixture()
	tb, err := New(context.Background(), s.All(), Config{}, Params{Search: "no such row", Length: 10, OrderColumn: -1})
	require.NoError(t, err)

	data := tb.Data()
	assert.Equal(t, 0, data.RecordsFiltered)
	assert.Equal(t, 25, data.RecordsTotal)
	assert.NotNil(t, data.Data)
	assert.Empty(t, data.Data)
	assert.Equal(t, 1, tb.Page.Number)
	assert.Zero(t, tb.Page.StartIndex())
	assert.False(t, tb.ContextData()["is_paginated"].(bool))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	all := fixture().All()

	once := Search(all, nil, "ROW 1", nil)
	twice := Search(once, nil, "ROW 1", nil)
	a, err := once.Slice(ctx, 0, -1)
	require.NoError(t, err)
	b, err := twice.Slice(ctx, 0, -1)
	require.NoError(t, err)
	assert.Len(t, a, 10)
	assert.Equal(t, a, b)

	// "7" matches id 7 exactly and "row 07", "row 17" by text.
	recs, err := Search(all, nil, "7", nil).Slice(ctx, 0, -1)
	require.NoError(t, err)
	var got []int64
	for _, r := range recs {
		got = append(got, r["id"].(int64))
	}
	assert.Equal(t, []int64{7, 17}, got)

	recs, err = Search(all, []string{"id"}, "7", nil).Slice(ctx, 0, -1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(7), recs[0]["id"])

	assert.Same(t, all, Search(all, []string{"datetime"}, "2024", nil))
	assert.Same(t, all, Search(all, nil, "", nil))
}

func TestOrdering(t *testing.T) {
	ctx := context.Background()
	s := fixture()
	p := Params{Length: 5, OrderColumn: 1, OrderDesc: true}

	tb, err := New(ctx, s.All(), Config{Fields: []string{"id", "char"}}, p)
	require.NoError(t, err)
	assert.Equal(t, []int64{24, 23, 22, 21, 20}, ids(tb), "null char sorts first ascending, last descending")

	again, err := New(ctx, s.All().OrderBy(query.Order{Name: "char", Desc: true}), Config{Fields: []string{"id", "char"}}, p)
	require.NoError(t, err)
	assert.Equal(t, ids(tb), ids(again))

	for _, col := range []int{-1, 2, 99} {
		tb, err := New(ctx, s.All(), Config{Fields: []string{"id", "char"}}, Params{Length: 3, OrderColumn: col})
		require.NoError(t, err, col)
		assert.Equal(t, []int64{1, 2, 3}, ids(tb), col)
	}

	tb, err = New(ctx, s.All(), Config{Fields: []string{"tags"}}, Params{Length: 3, OrderColumn: 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(tb), "many-to-many columns are not orderable")
}

func TestPagesCoverResult(t *testing.T) {
	ctx := context.Background()
	s := fixture()
	for _, size := range []int{1, 4, 7, 10, 25, 30} {
		seen := map[int64]int{}
		for start := 0; start < 25; start += size {
			tb, err := New(ctx, s.All(), Config{}, Params{Start: start, Length: size, OrderColumn: -1})
			require.NoError(t, err)
			for _, id := range ids(tb) {
				seen[id]++
			}
		}
		assert.Len(t, seen, 25, "size %d", size)
		for id, n := range seen {
			assert.Equal(t, 1, n, "size %d id %d", size, id)
		}
	}
}

func TestOutOfRangePage(t *testing.T) {
	tb, err := New(context.Background(), fixture().All(), Config{}, Params{Start: 500, Length: 10, OrderColumn: -1})
	require.NoError(t, err)
	assert.Equal(t, 3, tb.Page.Number)
	assert.Equal(t, []int64{21, 22, 23, 24, 25}, ids(tb))
}

func TestFilteredAndGrouped(t *testing.T) {
	ctx := context.Background()
	s := fixture()
	all := s.All()
	values := url.Values{"f__char": {"row 1"}, "group_by": {"datetime__trunc_day"}}

	tb, err := New(ctx, all, Config{
		URLs:    testURLs,
		Filter:  forms.NewFilterForm(all.Fields(), values, nil),
		GroupBy: forms.NewGroupByForm(all.Fields(), values),
	}, Params{Length: 10, OrderColumn: -1})
	require.NoError(t, err)

	assert.True(t, tb.Grouped)
	assert.False(t, tb.HasActions())
	assert.Equal(t, 25, tb.Total)
	assert.Equal(t, 3, tb.Filtered)
	assert.Equal(t, "datetime__trunc_day", tb.Columns[0].Field.Name)

	var total int64
	for _, r := range tb.Rows {
		total += r.Record["id__count"].(int64)
	}
	assert.Equal(t, int64(10), total)

	ctxData := tb.ContextData()
	assert.Equal(t, "datetime__trunc_day", ctxData["group_by"])
	assert.Len(t, ctxData["enabled_filters"], 1)
	assert.NotEmpty(t, ctxData["lookup_choices"])
	assert.NotEmpty(t, ctxData["group_by_choices"])
	assert.LessOrEqual(t, s.Evaluations(), int64(3))
}

func TestRenderCell(t *testing.T) {
	reg := field.Default
	boolean := field.New(reg, field.Spec{Name: "b", Kind: field.KindBoolean, Nullable: true})
	char := field.New(reg, field.Spec{Name: "c", Kind: field.KindChar, Nullable: true})
	date := field.New(reg, field.Spec{Name: "d", Kind: field.KindDate})
	tags := field.New(reg, field.Spec{Name: "t", Kind: field.KindManyToMany})
	parent := field.New(reg, field.Spec{Name: "p", Kind: field.KindForeignKey})

	assert.Equal(t, TrueGlyph, RenderCell(boolean, true))
	assert.Equal(t, FalseGlyph, RenderCell(boolean, false))
	assert.Equal(t, UnknownGlyph, RenderCell(boolean, nil))

	for _, d := range []*field.Descriptor{char, date, tags, parent} {
		assert.Equal(t, EmptyGlyph, RenderCell(d, nil), d.Name)
	}

	assert.Equal(t, `<span class="cell">short</span>`, RenderCell(char, "short"))
	assert.Equal(t, `<span class="cell">abcdefghijklmnopqrstuvwxy...</span>`, RenderCell(char, "abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, `<span class="cell">`+strings.Repeat("é", 25)+`</span>`, RenderCell(char, strings.Repeat("é", 25)))
	assert.Equal(t, `<span class="cell">&lt;b&gt;</span>`, RenderCell(char, "<b>"))
	assert.Equal(t, `<span class="cell">2024-03-01</span>`, RenderCell(date, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, `<span class="cell">Bob</span>`, RenderCell(parent, query.Ref{ID: int64(2), Display: "Bob"}))
	assert.Equal(t, "a, b", RenderCell(tags, []query.Ref{{ID: 1, Display: "a"}, {ID: 2, Display: "b"}}))
}

func TestActionRender(t *testing.T) {
	got := DetailAction.Render(testURLs, int64(3))
	assert.Equal(t,
		`<a class="btn btn-link" href="/main/3/?next=%2Fmain%2F" hx-get="/main/3/" hx-swap="none" hx-push-url="false">`+
			`<i class="fa-solid fa-magnifying-glass text-primary"></i></a>`, got)

	assert.Empty(t, DetailAction.Render(URLs{}, int64(3)))
	assert.Equal(t, `<div class="btn-group"></div>`, RenderActions(DefaultActions, URLs{}, 1))
	assert.Equal(t, "/main/a%2Fb/", testURLs.Reverse(CodeDetail, "a/b"))
}

func TestPaginator(t *testing.T) {
	p := Paginator{Count: 0, PerPage: 10}
	assert.Equal(t, 1, p.NumPages())
	assert.Equal(t, 1, p.Page(0).Number)

	p = Paginator{Count: 21, PerPage: 10}
	assert.Equal(t, 3, p.NumPages())
	assert.Equal(t, 1, p.PageAt(5).Number)
	assert.Equal(t, 2, p.PageAt(10).Number)
	assert.Equal(t, 3, p.PageAt(1000).Number)
	last := p.Page(3)
	assert.Equal(t, 21, last.StartIndex())
	assert.Equal(t, 21, last.EndIndex())
	assert.False(t, last.HasNext())
	assert.Equal(t, 3, last.NextPageNumber())
	assert.Equal(t, 2, last.PreviousPageNumber())

	const maxInt = int(^uint(0) >> 1)
	p = Paginator{Count: 25, PerPage: maxInt}
	assert.Equal(t, 1, p.NumPages())
	page := p.PageAt(maxInt)
	assert.Equal(t, 1, page.Number)
	assert.Zero(t, page.Offset())

	p = Paginator{Count: maxInt, PerPage: 10}
	assert.Equal(t, maxInt/10+1, p.NumPages())
	assert.Equal(t, p.NumPages(), p.PageAt(maxInt).Number)
}

func TestHugeLength(t *testing.T) {
	all := fixture().All()
	tb, err := New(context.Background(), all, Config{}, ParseParams(url.Values{
		"length": {"9223372036854775807"},
		"start":  {"9223372036854775807"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, tb.Page.Number)
	assert.Zero(t, tb.Page.Offset())
	assert.Len(t, tb.Rows, 25)
}
