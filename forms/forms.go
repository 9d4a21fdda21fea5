// Package forms turns request parameters into validated filter and group-by
// state. Invalid submissions never fail a request: they are dropped and the
// view degrades to the unfiltered collection.
package forms

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// Filter modes.
const (
	ModeFilter  = "f"
	ModeExclude = "e"
)

// Request parameter names.
const (
	ParamType         = "type"
	ParamLookup       = "lookup"
	ParamArgument     = "argument"
	ParamDelete       = "delete_method_lookup"
	ParamGroupBy      = "group_by"
	ParamNext         = "next"
	modeSeparator     = "__"
	deleteValueMarker = "="
)

// ModeChoices are the selectable filter modes.
var ModeChoices = []field.Choice{
	{Name: ModeFilter, Label: "Included (filter)"},
	{Name: ModeExclude, Label: "Excluded (exclude)"},
}

// Key builds the active filter key "{mode}__{lookup}".
func Key(mode, lookup string) string {
	return mode + modeSeparator + lookup
}

// parseKey resolves an active filter key against fields.
func parseKey(fields *field.Set, key string) (string, field.Lookup, bool) {
	mode, name, ok := field.ParseKey(key)
	if !ok || (mode != ModeFilter && mode != ModeExclude) {
		return "", field.Lookup{}, false
	}
	l, err := fields.Resolve(name, false)
	if err != nil {
		return "", field.Lookup{}, false
	}
	return mode, l, true
}

// FilterLookup is one active filter.
type FilterLookup struct {
	Key     string
	Mode    string
	Name    string
	Label   string
	Value   string
	BGClass string

	Lookup field.Lookup
}

func newFilterLookup(key, mode string, l field.Lookup, value string) FilterLookup {
	bg := "success"
	if mode == ModeExclude {
		bg = "danger"
	}
	return FilterLookup{
		Key:     key,
		Mode:    mode,
		Name:    l.Name,
		Label:   l.Label,
		Value:   value,
		BGClass: bg,
		Lookup:  l,
	}
}

// DeleteToken is the remove-filter value that deletes this filter.
func (f FilterLookup) DeleteToken() string {
	return f.Key + deleteValueMarker + f.Value
}

// FilterForm holds the filters active in a request.
type FilterForm struct {
	Enabled []FilterLookup

	logger *slog.Logger
}

// NewFilterForm collects every "{mode}__{lookup}" key of values that is
// valid for fields. When a key repeats, its last value wins.
func NewFilterForm(fields *field.Set, values url.Values, logger *slog.Logger) *FilterForm {
	if logger == nil {
		logger = slog.Default()
	}
	f := &FilterForm{logger: logger}
	for _, c := range fields.Lookups(false) {
		for _, mode := range []string{ModeFilter, ModeExclude} {
			key := Key(mode, c.Name)
			vs, ok := values[key]
			if !ok || len(vs) == 0 {
				continue
			}
			_, l, ok := parseKey(fields, key)
			if !ok {
				continue
			}
			f.Enabled = append(f.Enabled, newFilterLookup(key, mode, l, vs[len(vs)-1]))
		}
	}
	return f
}

// Refine applies the active filters to c. Filters combine conjunctively;
// values that cannot be coerced are dropped.
func (f *FilterForm) Refine(c query.Collection) query.Collection {
	for _, fl := range f.Enabled {
		v, err := fl.Lookup.Coerce(fl.Value)
		if err != nil {
			f.logger.Debug("dropping filter", "key", fl.Key, "value", fl.Value, "error", err)
			continue
		}
		cond := query.Condition{Lookup: fl.Lookup, Value: v}
		if fl.Mode == ModeExclude {
			c = c.Exclude(cond)
		} else {
			c = c.Filter(cond)
		}
	}
	return c
}

// AddFilterForm validates a new filter submission.
type AddFilterForm struct {
	Type     string
	Lookup   string
	Argument string
	Choices  []field.Choice

	key   string
	valid bool
}

// NewAddFilterForm binds data (the POST body) to the lookup universe of fields.
func NewAddFilterForm(fields *field.Set, data url.Values) *AddFilterForm {
	f := &AddFilterForm{
		Type:     data.Get(ParamType),
		Lookup:   data.Get(ParamLookup),
		Argument: data.Get(ParamArgument),
		Choices:  fields.Lookups(false),
	}
	if f.Type == "" || f.Lookup == "" || f.Argument == "" {
		return f
	}
	mode, l, ok := parseKey(fields, Key(f.Type, f.Lookup))
	if !ok {
		return f
	}
	if _, err := l.Coerce(f.Argument); err != nil {
		return f
	}
	f.key = Key(mode, l.Name)
	f.valid = true
	return f
}

// IsValid reports whether the submission names a valid mode and lookup.
func (f *AddFilterForm) IsValid() bool {
	return f.valid
}

// Cleaned returns the active filter key and value to merge.
func (f *AddFilterForm) Cleaned() (key, value string) {
	return f.key, f.Argument
}

// RemoveFilterForm validates a "{mode}__{lookup}={value}" deletion token.
type RemoveFilterForm struct {
	key   string
	value string
	valid bool
}

// NewRemoveFilterForm binds data (the POST body) to fields.
func NewRemoveFilterForm(fields *field.Set, data url.Values) *RemoveFilterForm {
	f := &RemoveFilterForm{}
	token := data.Get(ParamDelete)
	key, value, ok := strings.Cut(token, deleteValueMarker)
	if !ok {
		return f
	}
	if _, _, ok := parseKey(fields, key); !ok {
		return f
	}
	f.key, f.value, f.valid = key, value, true
	return f
}

// IsValid reports whether the token names a valid filter key.
func (f *RemoveFilterForm) IsValid() bool {
	return f.valid
}

// Cleaned returns the filter key and value to delete.
func (f *RemoveFilterForm) Cleaned() (key, value string) {
	return f.key, f.value
}

// GroupByForm holds the grouping selected in a request.
type GroupByForm struct {
	Choices []field.Choice
	Active  string

	lookup field.Lookup
}

// NewGroupByForm reads group_by from values. Unknown or non-groupable
// lookups leave the form inactive.
func NewGroupByForm(fields *field.Set, values url.Values) *GroupByForm {
	f := &GroupByForm{Choices: fields.Lookups(true)}
	name := values.Get(ParamGroupBy)
	if name == "" {
		return f
	}
	l, err := fields.Resolve(name, true)
	if err != nil {
		return f
	}
	f.Active, f.lookup = name, l
	return f
}

// IsActive reports whether a grouping is selected.
func (f *GroupByForm) IsActive() bool {
	return f.Active != ""
}

// Refine groups c by the selected lookup.
func (f *GroupByForm) Refine(c query.Collection) query.Collection {
	if !f.IsActive() {
		return c
	}
	return c.GroupBy(f.lookup)
}

// Merge computes the query of the list view after a POST: the add-filter
// submission is merged in, the remove-filter key is deleted and group_by is
// replaced. Invalid submissions leave the query unchanged.
func Merge(fields *field.Set, current, post url.Values) url.Values {
	out := url.Values{}
	for k, vs := range current {
		out[k] = append([]string(nil), vs...)
	}

	if add := NewAddFilterForm(fields, post); add.IsValid() {
		key, value := add.Cleaned()
		out.Set(key, value)
	}
	if rm := NewRemoveFilterForm(fields, post); rm.IsValid() {
		key, _ := rm.Cleaned()
		out.Del(key)
	}

	groupBy := current
	if _, ok := post[ParamGroupBy]; ok {
		groupBy = post
	}
	out.Del(ParamGroupBy)
	if gb := NewGroupByForm(fields, groupBy); gb.IsActive() {
		out.Set(ParamGroupBy, gb.Active)
	}
	return out
}
