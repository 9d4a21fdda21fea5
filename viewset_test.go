package viewsets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnemet/viewsets/chart"
	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
	"github.com/gnemet/viewsets/store/memstore"
	"github.com/gnemet/viewsets/table"
)

func newStore(t *testing.T) *memstore.Store {
	t.Helper()
	fields := field.NewSet(nil,
		field.Spec{Name: "id", Kind: field.KindInteger, PrimaryKey: true},
		field.Spec{Name: "char", Kind: field.KindChar, Nullable: true, VerboseName: "Char"},
		field.Spec{Name: "boolean", Kind: field.KindBoolean},
		field.Spec{Name: "integer", Kind: field.KindInteger},
		field.Spec{Name: "datetime", Kind: field.KindDateTime},
		field.Spec{Name: "tags", Kind: field.KindManyToMany},
	)
	s := memstore.New(fields)
	day := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 1; i <= 25; i++ {
		_, err := s.Insert(context.Background(), query.Record{
			"char":     fmt.Sprintf("row %02d", i),
			"boolean":  i%2 == 0,
			"integer":  int64(i),
			"datetime": day.AddDate(0, 0, i%3),
			"tags":     []int64{},
		})
		require.NoError(t, err)
	}
	return s
}

func newServer(t *testing.T, s query.Store) (*Viewset, http.Handler) {
	t.Helper()
	v, err := New(Config{
		Name:       "main",
		Title:      "Main",
		Store:      s,
		Operations: Operations{Add: true, Edit: true, Delete: true},
		Chart:      &chart.Config{DataFields: []string{"integer"}},
	})
	require.NoError(t, err)
	return v, NewRouter(nil, v)
}

func do(h http.Handler, method, target string, body url.Values, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Store: newStore(t)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Config{Name: "main"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	v, err := New(Config{Name: "main", Store: newStore(t)})
	require.NoError(t, err)
	assert.Equal(t, "/main/{pk}/", v.URLs()[table.CodeDetail])
	assert.NotContains(t, v.URLs(), table.CodeDelete)
	assert.Equal(t, "viewsets:main-table", v.URLNames()[table.CodeTable])
}

func TestTableEndpoint(t *testing.T) {
	_, h := newServer(t, newStore(t))

	w := do(h, http.MethodGet, "/main/table/?length=10&start=10&draw=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data table.Data
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, 3, data.Draw)
	assert.Equal(t, 25, data.RecordsTotal)
	require.Len(t, data.Data, 10)
	assert.Equal(t, `<span class="cell">11</span>`, data.Data[0][1])

	w = do(h, http.MethodPost, "/main/table/?f__char=row+2", url.Values{"search[value]": {"4"}, "length": {"abc"}, "order[0][column]": {"77"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, 2, data.Draw)
	assert.Equal(t, 25, data.RecordsTotal)
	assert.Equal(t, 1, data.RecordsFiltered, "row 24 only")
}

func TestListPostRedirects(t *testing.T) {
	_, h := newServer(t, newStore(t))

	w := do(h, http.MethodPost, "/main/?e__integer=3", url.Values{
		"type": {"f"}, "lookup": {"char"}, "argument": {"row"},
		"delete_method_lookup": {"e__integer=3"},
		"group_by":             {"datetime__trunc_day"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/main/", loc.Path)
	assert.Equal(t, url.Values{"f__char": {"row"}, "group_by": {"datetime__trunc_day"}}, loc.Query())

	w = do(h, http.MethodPost, "/main/?f__char=row", url.Values{"type": {"x"}, "lookup": {"nope"}, "argument": {"1"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/main/?f__char=row", w.Header().Get("Location"))
}

func TestListPage(t *testing.T) {
	_, h := newServer(t, newStore(t))

	w := do(h, http.MethodGet, "/main/?f__char=row&group_by=nope", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<title>Main</title>")
	assert.Contains(t, body, `id="table"`)
	assert.Contains(t, body, `<span class="cell">row 01</span>`)
	assert.Contains(t, body, `class="btn-group"`)
	assert.Contains(t, body, "delete_method_lookup")

	w = do(h, http.MethodGet, "/main/?group_by=datetime__trunc_day", nil, "HX-Request", "true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<!DOCTYPE html>")
	assert.NotContains(t, w.Body.String(), `class="btn-group"`)
}

func TestChartEndpoint(t *testing.T) {
	_, h := newServer(t, newStore(t))

	w := do(h, http.MethodGet, "/main/chart/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data chart.Data `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Labels, 25)
	require.Len(t, resp.Data.Datasets, 1)
	assert.Len(t, resp.Data.Datasets[0].Data, 25)

	w = do(h, http.MethodGet, "/main/chart/?group_by=datetime__trunc_day&f__integer__lte=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Labels, 3)
}

func TestDetailAndCRUD(t *testing.T) {
	s := newStore(t)
	_, h := newServer(t, s)
	ctx := context.Background()

	w := do(h, http.MethodGet, "/main/3/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Char")
	assert.Contains(t, w.Body.String(), table.FalseGlyph)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/main/99/", nil).Code)

	w = do(h, http.MethodPost, "/main/create/", url.Values{
		"char": {"new"}, "boolean": {"true"}, "integer": {"x"}, "datetime": {"2024-02-01 10:00"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "is-invalid")

	w = do(h, http.MethodPost, "/main/create/", url.Values{
		"char": {""}, "boolean": {"true"}, "integer": {"100"}, "datetime": {"2024-02-01 10:00"}, "tags": {"1,2"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/main/26/", w.Header().Get("Location"))
	rec, err := s.Get(ctx, "26")
	require.NoError(t, err)
	assert.Nil(t, rec["char"])
	assert.Equal(t, true, rec["boolean"])
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), rec["datetime"])
	assert.Len(t, rec["tags"], 2)

	w = do(h, http.MethodGet, "/main/26/update/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="100"`)

	w = do(h, http.MethodPost, "/main/26/update/", url.Values{
		"char": {"changed"}, "integer": {"7"}, "datetime": {"2024-02-01"}, "next": {"/main/?f__char=x"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/main/?f__char=x", w.Header().Get("Location"))
	rec, err = s.Get(ctx, "26")
	require.NoError(t, err)
	assert.Equal(t, "changed", rec["char"])
	assert.Equal(t, false, rec["boolean"])

	w = do(h, http.MethodDelete, "/main/26/delete/", nil, "HX-Request", "true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `reload_table("table");`)
	_, err = s.Get(ctx, "26")
	assert.ErrorIs(t, err, query.ErrNotFound)

	w = do(h, http.MethodPost, "/main/26/delete/", url.Values{"next": {"//evil.example"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/main/", w.Header().Get("Location"))
}

func TestReadOnlyViewset(t *testing.T) {
	v, err := New(Config{Name: "main", Store: newStore(t)})
	require.NoError(t, err)
	h := NewRouter(nil, v)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/main/3/delete/", url.Values{}).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/main/create/", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", nil).Code)
}
