package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

const sqliteSchema = `
CREATE TABLE parent (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE tag (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE main (
	id INTEGER PRIMARY KEY,
	"char" TEXT,
	"integer" INTEGER NOT NULL,
	created DATETIME NOT NULL,
	parent_id INTEGER REFERENCES parent(id)
);
CREATE TABLE main_tags (main_id INTEGER NOT NULL, tag_id INTEGER NOT NULL);
INSERT INTO parent (id, name) VALUES (1, 'Alice'), (2, 'Bob');
INSERT INTO tag (id, name) VALUES (1, 'red'), (2, 'blue');
`

// newSQLiteStore seeds 25 main records: char "row NN" (NULL for 25),
// integer NN, created on one of three days, parent Bob for odd ids and
// tags red+blue on every fifth record.
func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_time_format=sqlite")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)

	s, err := New(db, SQLite{}, Table{
		Name: "main",
		Fields: []field.Spec{
			{Name: "id", Kind: field.KindInteger, PrimaryKey: true},
			{Name: "char", Kind: field.KindChar, Nullable: true},
			{Name: "integer", Kind: field.KindInteger},
			{Name: "created", Kind: field.KindDateTime},
			{Name: "parent", Kind: field.KindForeignKey, Nullable: true, Relation: &field.Relation{Table: "parent", Display: "name"}},
			{Name: "tags", Kind: field.KindManyToMany, Relation: &field.Relation{Table: "tag", Display: "name", Through: "main_tags", From: "main_id", To: "tag_id"}},
		},
	})
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 1; i <= 25; i++ {
		rec := query.Record{
			"char":    fmt.Sprintf("row %02d", i),
			"integer": int64(i),
			"created": base.AddDate(0, 0, i%3),
			"parent":  int64(i%2 + 1),
		}
		if i == 25 {
			rec["char"] = nil
		}
		if i%5 == 0 {
			rec["tags"] = []int64{1, 2}
		}
		id, err := s.Insert(context.Background(), rec)
		require.NoError(t, err)
		require.Equal(t, int64(i), id)
	}
	return s
}

func TestSQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	all := s.All()

	n, err := all.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	page, err := all.Slice(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, page, 10)
	for i, rec := range page {
		assert.Equal(t, int64(11+i), rec["id"])
	}
	assert.Equal(t, query.Ref{ID: int64(2), Display: "Bob"}, page[0]["parent"])
	assert.Equal(t, []query.Ref{}, page[1]["tags"])

	n, err = all.Filter(condition(t, all, "char", "ROW 1")).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = all.Filter(condition(t, all, "char__contains", "ROW")).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = all.Exclude(condition(t, all, "char", "row")).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = all.Filter(condition(t, all, "tags__exact", "2")).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	top, err := all.OrderBy(query.Order{Name: "integer", Desc: true}).Slice(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(25), top[0]["id"])
	assert.Nil(t, top[0]["char"])
	assert.Equal(t, []query.Ref{{ID: int64(1), Display: "red"}, {ID: int64(2), Display: "blue"}}, top[0]["tags"])
}

func TestSQLiteGroupByDay(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	all := s.All()

	key, err := all.Fields().Resolve("created__trunc_day", true)
	require.NoError(t, err)
	g := all.GroupBy(key)

	n, err := g.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := g.Slice(ctx, 0, -1)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	var counts []int64
	for _, rec := range recs {
		counts = append(counts, rec["id__count"].(int64))
	}
	assert.Equal(t, []int64{8, 9, 8}, counts)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), recs[0]["created__trunc_day"])
	assert.Equal(t, int64(108), recs[0]["integer__sum"])
	assert.InDelta(t, 13.5, recs[0]["integer__avg"], 1e-9)
	assert.InDelta(t, 6.8739, recs[0]["integer__stddev"], 1e-3)
}

func TestSQLiteTransformFilters(t *testing.T) {
	ctx := context.Background()
	all := newSQLiteStore(t).All()

	tests := []struct {
		lookup string
		raw    string
		want   int
	}{
		{"created__trunc_day", "2024-01-02", 9},
		{"created__trunc_day__exact", "2024-01-02", 9},
		{"created__trunc_day__lt", "2024-01-02", 8},
		{"created__date", "2024-01-02", 9},
		{"created__date__gte", "2024-01-02", 17},
		{"created__trunc_month", "2024-01-01", 25},
		{"created__trunc_year__exact", "2023-01-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.lookup, func(t *testing.T) {
			n, err := all.Filter(condition(t, all, tt.lookup, tt.raw)).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	n, err := all.Exclude(condition(t, all, "created__trunc_day", "2024-01-02")).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
}

func TestSQLiteCRUD(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.Update(ctx, "5", query.Record{"char": "changed", "tags": []int64{2}}))
	rec, err := s.Get(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "changed", rec["char"])
	assert.Equal(t, []query.Ref{{ID: int64(2), Display: "blue"}}, rec["tags"])

	require.NoError(t, s.Delete(ctx, "5"))
	require.NoError(t, s.Delete(ctx, "5"))
	_, err = s.Get(ctx, "5")
	assert.ErrorIs(t, err, query.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, "5", query.Record{"char": "x"}), query.ErrNotFound)
}
