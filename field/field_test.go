package field

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet() *Set {
	return NewSet(nil,
		Spec{Name: "id", Kind: KindInteger, PrimaryKey: true, VerboseName: "ID"},
		Spec{Name: "char", Kind: KindChar, Nullable: true},
		Spec{Name: "integer", Kind: KindInteger},
		Spec{Name: "boolean", Kind: KindBoolean, Nullable: true},
		Spec{Name: "datetime", Kind: KindDateTime},
		Spec{Name: "parent", Kind: KindForeignKey, Relation: &Relation{Table: "parent", Display: "name"}},
		Spec{Name: "tags", Kind: KindManyToMany, Relation: &Relation{Table: "tag", Through: "main_tags", From: "main_id", To: "tag_id"}},
	)
}

func names(cs []Choice) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindInteger, ParseKind("bigint"))
	assert.Equal(t, KindDateTime, ParseKind(" TimestampTZ "))
	assert.Equal(t, KindForeignKey, ParseKind("foreign_key"))
	assert.Equal(t, KindManyToMany, ParseKind("m2m"))
	assert.Equal(t, KindUnknown, ParseKind("blob"))
	assert.Equal(t, "many_to_many", KindManyToMany.String())
}

func TestLookupsExcludeIncompatibleOps(t *testing.T) {
	s := testSet()

	integer, _ := s.Get("integer")
	got := names(integer.Lookups(false))
	assert.Contains(t, got, "integer")
	assert.Contains(t, got, "integer__gt")
	assert.Contains(t, got, "integer__round")
	assert.NotContains(t, got, "integer__icontains")
	assert.NotContains(t, got, "integer__lower")
	assert.NotContains(t, got, "integer__in")
	assert.NotContains(t, got, "integer__range")
	assert.NotContains(t, got, "integer__isnull", "not nullable")

	char, _ := s.Get("char")
	got = names(char.Lookups(false))
	assert.Contains(t, got, "char__icontains")
	assert.Contains(t, got, "char__isnull")
	assert.Contains(t, got, "char__length__gte")
	assert.NotContains(t, got, "char__round")
	assert.NotContains(t, got, "char__length__icontains")
}

func TestGroupableLookups(t *testing.T) {
	s := testSet()

	id, _ := s.Get("id")
	assert.NotContains(t, names(id.Lookups(true)), "id")
	assert.Contains(t, names(id.Lookups(false)), "id")

	dt, _ := s.Get("datetime")
	got := names(dt.Lookups(true))
	assert.Contains(t, got, "datetime")
	assert.Contains(t, got, "datetime__trunc_day")
	assert.Contains(t, got, "datetime__week_day")
	assert.NotContains(t, got, "datetime__gt")
	assert.NotContains(t, got, "datetime__trunc_day__gt")

	tags, _ := s.Get("tags")
	assert.Empty(t, tags.Lookups(true))
	assert.Equal(t, []string{"tags", "tags__exact"}, names(tags.Lookups(false)))
}

func TestResolve(t *testing.T) {
	s := testSet()

	l, err := s.Resolve("datetime__trunc_day__gte", false)
	require.NoError(t, err)
	assert.Equal(t, "trunc_day", l.Transform.Name)
	assert.Equal(t, "gte", l.Comparison().Name)
	assert.Equal(t, KindDateTime, l.Kind())
	assert.Equal(t, "datetime__trunc_day", l.Expr().Name)

	l, err = s.Resolve("char", false)
	require.NoError(t, err)
	assert.Equal(t, "icontains", l.Comparison().Name)

	l, err = s.Resolve("integer", false)
	require.NoError(t, err)
	assert.Equal(t, "exact", l.Comparison().Name)

	l, err = s.Resolve("datetime__year", true)
	require.NoError(t, err)
	assert.Equal(t, KindInteger, l.Kind())

	for _, bad := range []string{"", "missing", "integer__icontains", "integer__in", "id__gt__lt__x", "datetime__gt"} {
		onlyGroupable := bad == "datetime__gt"
		_, err := s.Resolve(bad, onlyGroupable)
		assert.True(t, errors.Is(err, ErrUnknownLookup), bad)
	}
}

func TestGroupedSet(t *testing.T) {
	s := testSet()
	key, err := s.Resolve("datetime__trunc_day", true)
	require.NoError(t, err)

	g := s.Grouped(key)
	require.True(t, g.IsGrouped())
	assert.Nil(t, g.PrimaryKey())
	assert.Equal(t, "datetime__trunc_day", g.GroupKey().Name)

	got := g.Names()
	assert.Contains(t, got, "id__count")
	assert.NotContains(t, got, "id__sum")
	assert.Contains(t, got, "integer__variance")
	assert.Contains(t, got, "integer__stddev")
	assert.Contains(t, got, "char__count")
	assert.Contains(t, got, "parent__count")
	assert.NotContains(t, got, "tags__count")

	d, ok := g.Get("integer__avg")
	require.True(t, ok)
	assert.Equal(t, KindFloat, d.Kind)
	assert.Equal(t, "integer: Avg", d.VerboseName)

	_, err = g.Resolve("integer__avg", false)
	assert.NoError(t, err)
	_, err = g.Resolve("integer__avg", true)
	assert.Error(t, err)
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(KindInteger, " 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = Coerce(KindInteger, "4x")
	assert.ErrorIs(t, err, ErrInvalidValue)

	v, err = Coerce(KindBoolean, "on")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Coerce(KindDate, "2024-03-05 10:11:12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), v)

	_, err = Coerce(KindTime, "noon")
	assert.Error(t, err)
	v, err = Coerce(KindTime, "07:05")
	require.NoError(t, err)
	assert.Equal(t, "07:05:00", v)

	v, err = Coerce(KindDuration, "90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, v)

	v, err = Coerce(KindDuration, "1h30m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, v)

	v, err = Coerce(KindUUID, "6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", v)

	s := testSet()
	l, err := s.Resolve("char__isnull", false)
	require.NoError(t, err)
	v, err = l.Coerce("yes")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestColorIsStable(t *testing.T) {
	assert.Equal(t, ColorFor("integer"), ColorFor("integer"))
	assert.Equal(t, "rgb(54, 162, 235)", ColorFor("").RGB())
}
