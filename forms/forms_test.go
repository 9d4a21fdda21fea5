package forms

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
	"github.com/gnemet/viewsets/store/memstore"
)

func fixture() *memstore.Store {
	fields := field.NewSet(nil,
		field.Spec{Name: "id", Kind: field.KindInteger, PrimaryKey: true},
		field.Spec{Name: "char", Kind: field.KindChar, Nullable: true},
		field.Spec{Name: "integer", Kind: field.KindInteger},
	)
	return memstore.New(fields,
		query.Record{"char": "xabcx", "integer": 1},
		query.Record{"char": "ABC", "integer": 2},
		query.Record{"char": "abc", "integer": 3},
		query.Record{"char": nil, "integer": 4},
	)
}

func TestAddFilterForm(t *testing.T) {
	fields := fixture().All().Fields()

	f := NewAddFilterForm(fields, url.Values{"type": {"f"}, "lookup": {"char"}, "argument": {"abc"}})
	require.True(t, f.IsValid())
	key, value := f.Cleaned()
	assert.Equal(t, "f__char", key)
	assert.Equal(t, "abc", value)

	for _, data := range []url.Values{
		{"lookup": {"char"}, "argument": {"abc"}},
		{"type": {"x"}, "lookup": {"char"}, "argument": {"abc"}},
		{"type": {"f"}, "argument": {"abc"}},
		{"type": {"f"}, "lookup": {"nope"}, "argument": {"abc"}},
		{"type": {"e"}, "lookup": {"integer__in"}, "argument": {"1"}},
		{"type": {"e"}, "lookup": {"integer__gt"}, "argument": {"one"}},
	} {
		assert.False(t, NewAddFilterForm(fields, data).IsValid(), data.Encode())
	}
}

func TestRemoveFilterForm(t *testing.T) {
	fields := fixture().All().Fields()

	f := NewRemoveFilterForm(fields, url.Values{"delete_method_lookup": {"e__integer__gt=a=b"}})
	require.True(t, f.IsValid())
	key, value := f.Cleaned()
	assert.Equal(t, "e__integer__gt", key)
	assert.Equal(t, "a=b", value)

	assert.False(t, NewRemoveFilterForm(fields, url.Values{"delete_method_lookup": {"f__char"}}).IsValid())
	assert.False(t, NewRemoveFilterForm(fields, url.Values{"delete_method_lookup": {"x__char=1"}}).IsValid())
	assert.False(t, NewRemoveFilterForm(fields, url.Values{}).IsValid())
}

func TestFilterFormRefine(t *testing.T) {
	ctx := context.Background()
	s := fixture()
	all := s.All()

	values := url.Values{
		"f__char":        {"abc"},
		"e__integer__gt": {"9", "1"},
		"f__integer__lt": {"not a number"},
		"f__missing":     {"1"},
		"page":           {"2"},
	}
	f := NewFilterForm(all.Fields(), values, nil)
	require.Len(t, f.Enabled, 3)
	assert.Equal(t, "success", f.Enabled[0].BGClass)

	var excluded FilterLookup
	for _, fl := range f.Enabled {
		if fl.Mode == ModeExclude {
			excluded = fl
		}
	}
	assert.Equal(t, "1", excluded.Value, "last value wins")
	assert.Equal(t, "danger", excluded.BGClass)
	assert.Equal(t, "e__integer__gt=1", excluded.DeleteToken())

	recs, err := f.Refine(all).Slice(ctx, 0, -1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "xabcx", recs[0]["char"])
}

func TestGroupByForm(t *testing.T) {
	ctx := context.Background()
	all := fixture().All()

	f := NewGroupByForm(all.Fields(), url.Values{"group_by": {"char__lower"}})
	require.True(t, f.IsActive())
	n, err := f.Refine(all).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, name := range []string{"", "id", "integer__gt", "nope"} {
		f := NewGroupByForm(all.Fields(), url.Values{"group_by": {name}})
		assert.False(t, f.IsActive(), name)
		assert.Same(t, all, f.Refine(all))
	}
}

func TestMerge(t *testing.T) {
	fields := fixture().All().Fields()
	current := url.Values{"f__char": {"old"}, "e__integer": {"3"}, "group_by": {"char"}}

	got := Merge(fields, current, url.Values{
		"type": {"f"}, "lookup": {"char"}, "argument": {"new"},
		"delete_method_lookup": {"e__integer=3"},
		"group_by":             {"integer"},
	})
	assert.Equal(t, url.Values{"f__char": {"new"}, "group_by": {"integer"}}, got)
	assert.Equal(t, []string{"old"}, current["f__char"], "input is not modified")

	got = Merge(fields, current, url.Values{"type": {"f"}})
	assert.Equal(t, current, got)

	got = Merge(fields, current, url.Values{"group_by": {""}})
	assert.NotContains(t, got, "group_by")
}
