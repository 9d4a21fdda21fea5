package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnemet/viewsets"
	"github.com/gnemet/viewsets/database/pool"
	"github.com/gnemet/viewsets/table"
)

func newDB(t *testing.T) *pool.DB {
	t.Helper()
	db, err := pool.Open(context.Background(), pool.Config{Name: "sandbox", Driver: "sqlite"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db, nil))
	return db
}

func count(t *testing.T, db *pool.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestCatalog(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)
	assert.Equal(t, "sandbox", cat.Namespace)

	main, ok := cat.Object("main")
	require.True(t, ok)
	assert.Equal(t, "Fő", main.Label("hu"))
	assert.Len(t, main.Columns, 22)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newDB(t)
	require.NoError(t, Migrate(db, nil))
	assert.Equal(t, 0, count(t, db, "main"))
}

func TestSeed(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	counts, err := Seed(ctx, db, Options{
		Main: 30, Parent: 5, Tag: 4, Attribute: 3,
		TagProbability: 1, AttributeProbability: 0.5,
		ChunkSize: 7, Seed: 42,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, Counts{Parent: 5, Main: 30, Tag: 4, Attribute: 3, MainTags: 120, AttributeValue: counts.AttributeValue}, counts)
	assert.Equal(t, 5, count(t, db, "parent"))
	assert.Equal(t, 30, count(t, db, "main"))
	assert.Equal(t, 120, count(t, db, "main_tags"))
	assert.Equal(t, counts.AttributeValue, count(t, db, "attribute_value"))
	assert.LessOrEqual(t, counts.AttributeValue, 90)

	counts, err = Seed(ctx, db, Options{Main: 10, Seed: 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, counts.Main)
	assert.Equal(t, 0, counts.MainTags)
	assert.Equal(t, 40, count(t, db, "main"))
}

func TestSeedWithoutParents(t *testing.T) {
	db := newDB(t)

	_, err := Seed(context.Background(), db, Options{Main: 10, Tag: 3}, nil)
	assert.ErrorIs(t, err, ErrNoParents)
	assert.Equal(t, 0, count(t, db, "main"))
	assert.Equal(t, 0, count(t, db, "tag"))

	counts, err := Seed(context.Background(), db, Options{Tag: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Tag)
}

func TestViewsets(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	_, err := Seed(ctx, db, Options{Main: 25, Parent: 3, Tag: 5, Attribute: 2, TagProbability: 0.5, AttributeProbability: 0.5, Seed: 1}, nil)
	require.NoError(t, err)

	sets, err := Viewsets(db, "en", nil)
	require.NoError(t, err)
	require.Len(t, sets, 4)
	h := viewsets.NewRouter(nil, sets...)

	req := httptest.NewRequest(http.MethodGet, "/main/table/?draw=1&start=10&length=10&order[0][column]=0&order[0][dir]=desc", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data table.Data
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, 2, data.Draw)
	assert.Equal(t, 25, data.RecordsTotal)
	assert.Equal(t, 25, data.RecordsFiltered)
	require.Len(t, data.Data, 10)
	assert.Equal(t, `<span class="cell">15</span>`, data.Data[0][1])

	req = httptest.NewRequest(http.MethodGet, "/main/chart/?f__integer__gte=0", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rec, err := sets[0].Store().Get(ctx, "1")
	require.NoError(t, err)
	assert.IsType(t, time.Time{}, rec["datetime"])
	assert.IsType(t, time.Duration(0), rec["duration"])
	assert.IsType(t, "", rec["time"])
}
