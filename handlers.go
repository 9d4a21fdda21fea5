package viewsets

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gnemet/viewsets/chart"
	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/forms"
	"github.com/gnemet/viewsets/query"
	"github.com/gnemet/viewsets/table"
)

// refreshTableScript reloads the table and closes the modal after an htmx
// driven change.
const refreshTableScript = `<script>
	$(function(){
		reload_table(%q);
		$('#modal').modal('hide');
	})
</script>`

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// buildTable evaluates the list table of values.
func (v *Viewset) buildTable(r *http.Request, values url.Values) (*table.Table, error) {
	base := v.base()
	fields := base.Fields()
	params := table.ParseParams(values)
	if v.cfg.PageSize > 0 && values.Get("length") == "" {
		params.Length = v.cfg.PageSize
	}
	return table.New(r.Context(), base, table.Config{
		ID:      table.DefaultID,
		Fields:  v.fields(table.CodeList),
		Actions: v.actions,
		URLs:    v.urls,
		Filter:  forms.NewFilterForm(fields, values, v.logger),
		GroupBy: forms.NewGroupByForm(fields, values),
		Logger:  v.logger,
	}, params)
}

func (v *Viewset) list(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	t, err := v.buildTable(r, values)
	if err != nil {
		v.serverError(w, r, err)
		return
	}
	data := v.context(r)
	for k, val := range t.ContextData() {
		data[k] = val
	}
	fields := v.cfg.Store.All().Fields()
	data["add_filter_form"] = forms.NewAddFilterForm(fields, url.Values{})
	data["group_by_form"] = forms.NewGroupByForm(fields, values)
	data["mode_choices"] = forms.ModeChoices
	data["table_url"] = v.urls[table.CodeTable] + "?" + values.Encode()
	data["chart_url"] = v.urls[table.CodeChart] + "?" + values.Encode()
	data["chart"] = v.chart
	v.render(w, r, http.StatusOK, "list.html", data)
}

// listPost merges the filter and group-by submissions into the query
// string and redirects to the list.
func (v *Viewset) listPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	merged := forms.Merge(v.cfg.Store.All().Fields(), r.URL.Query(), r.PostForm)
	target := r.URL.Path
	if q := merged.Encode(); q != "" {
		target += "?" + q
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (v *Viewset) tableData(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", err.Error())
		return
	}
	t, err := v.buildTable(r, r.Form)
	if err != nil {
		v.logger.Error("table failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, t.Data())
}

func (v *Viewset) chartData(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	c := v.base()
	fields := c.Fields()
	c = forms.NewFilterForm(fields, values, v.logger).Refine(c)
	c = forms.NewGroupByForm(fields, values).Refine(c)

	data, err := v.chart.Data(r.Context(), c)
	switch {
	case errors.Is(err, chart.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", err.Error())
		return
	case err != nil:
		v.logger.Error("chart failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// Pair is one labelled value of the detail view.
type Pair struct {
	Label string
	Value template.HTML
}

func (v *Viewset) detail(w http.ResponseWriter, r *http.Request) {
	pk := chi.URLParam(r, "pk")
	rec, ok := v.get(w, r, pk)
	if !ok {
		return
	}
	fields := v.cfg.Store.All().Fields()
	var pairs []Pair
	for _, d := range fields.Select(v.fields(table.CodeDetail)...) {
		pairs = append(pairs, Pair{
			Label: d.VerboseName,
			Value: template.HTML(table.RenderCell(d, rec[d.Name])),
		})
	}
	data := v.context(r)
	data["object"] = rec
	data["pk"] = pk
	data["field_values"] = pairs
	data["update_url"] = v.urls.Reverse(table.CodeUpdate, pk)
	data["delete_url"] = v.urls.Reverse(table.CodeDelete, pk)
	v.render(w, r, http.StatusOK, "detail.html", data)
}

func (v *Viewset) create(w http.ResponseWriter, r *http.Request) {
	fields := v.formFields()
	if r.Method == http.MethodGet {
		v.renderForm(w, r, http.StatusOK, fields, nil, nil, v.urls[table.CodeCreate])
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, errs := bind(fields, r.PostForm)
	if len(errs) > 0 {
		v.renderForm(w, r, http.StatusBadRequest, fields, r.PostForm, errs, v.urls[table.CodeCreate])
		return
	}
	id, err := v.cfg.Store.Insert(r.Context(), rec)
	if err != nil {
		v.serverError(w, r, err)
		return
	}
	v.logger.Info("record created", "pk", id)
	v.done(w, r, v.urls.Reverse(table.CodeDetail, id))
}

func (v *Viewset) update(w http.ResponseWriter, r *http.Request) {
	pk := chi.URLParam(r, "pk")
	fields := v.formFields()
	action := v.urls.Reverse(table.CodeUpdate, pk)
	if r.Method == http.MethodGet {
		rec, ok := v.get(w, r, pk)
		if !ok {
			return
		}
		v.renderForm(w, r, http.StatusOK, fields, recordValues(fields, rec), nil, action)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, errs := bind(fields, r.PostForm)
	if len(errs) > 0 {
		v.renderForm(w, r, http.StatusBadRequest, fields, r.PostForm, errs, action)
		return
	}
	err := v.cfg.Store.Update(r.Context(), pk, rec)
	if errors.Is(err, query.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		v.serverError(w, r, err)
		return
	}
	v.logger.Info("record updated", "pk", pk)
	v.done(w, r, v.urls.Reverse(table.CodeDetail, pk))
}

func (v *Viewset) delete(w http.ResponseWriter, r *http.Request) {
	pk := chi.URLParam(r, "pk")
	if r.Method == http.MethodGet {
		if _, ok := v.get(w, r, pk); !ok {
			return
		}
		data := v.context(r)
		data["pk"] = pk
		data["action"] = v.urls.Reverse(table.CodeDelete, pk)
		v.render(w, r, http.StatusOK, "delete.html", data)
		return
	}
	if err := v.cfg.Store.Delete(r.Context(), pk); err != nil {
		v.serverError(w, r, err)
		return
	}
	v.logger.Info("record deleted", "pk", pk)
	v.done(w, r, v.urls[table.CodeList])
}

// done answers a successful change: htmx requests get the table refresh
// script, others are redirected to next or fallback.
func (v *Viewset) done(w http.ResponseWriter, r *http.Request, fallback string) {
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, refreshTableScript, table.DefaultID)
		return
	}
	http.Redirect(w, r, v.nextURL(r, fallback), http.StatusSeeOther)
}

// nextURL returns the local "next" parameter of r, or fallback.
func (v *Viewset) nextURL(r *http.Request, fallback string) string {
	next := r.FormValue(forms.ParamNext)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return fallback
	}
	return next
}

func (v *Viewset) get(w http.ResponseWriter, r *http.Request, pk string) (query.Record, bool) {
	rec, err := v.cfg.Store.Get(r.Context(), pk)
	if errors.Is(err, query.ErrNotFound) {
		http.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		v.serverError(w, r, err)
		return nil, false
	}
	return rec, true
}

// formFields are the editable fields: the primary key is generated.
func (v *Viewset) formFields() []*field.Descriptor {
	var out []*field.Descriptor
	for _, d := range v.cfg.Store.All().Fields().Select(v.fields(table.CodeCreate)...) {
		if !d.PrimaryKey {
			out = append(out, d)
		}
	}
	return out
}

// FormField is one input of the create and update forms.
type FormField struct {
	Field  *field.Descriptor
	Name   string
	Label  string
	Input  string
	Value  string
	Values []string
	Error  string
}

func (v *Viewset) renderForm(w http.ResponseWriter, r *http.Request, status int, fields []*field.Descriptor, values url.Values, errs map[string]string, action string) {
	var inputs []FormField
	for _, d := range fields {
		inputs = append(inputs, FormField{
			Field:  d,
			Name:   d.Name,
			Label:  d.VerboseName,
			Input:  inputType(d.Kind),
			Value:  values.Get(d.Name),
			Values: values[d.Name],
			Error:  errs[d.Name],
		})
	}
	data := v.context(r)
	data["form"] = inputs
	data["action"] = action
	v.render(w, r, status, "form.html", data)
}

func inputType(k field.Kind) string {
	switch k {
	case field.KindBoolean:
		return "checkbox"
	case field.KindInteger, field.KindFloat, field.KindDecimal, field.KindForeignKey:
		return "number"
	case field.KindDate:
		return "date"
	case field.KindDateTime:
		return "datetime-local"
	case field.KindTime:
		return "time"
	case field.KindText, field.KindJSON:
		return "textarea"
	case field.KindManyToMany:
		return "multiple"
	}
	return "text"
}

// recordValues renders rec as form values.
func recordValues(fields []*field.Descriptor, rec query.Record) url.Values {
	values := url.Values{}
	for _, d := range fields {
		switch v := rec[d.Name].(type) {
		case nil:
		case []query.Ref:
			for _, ref := range v {
				values.Add(d.Name, fmt.Sprint(ref.ID))
			}
		case query.Ref:
			values.Set(d.Name, fmt.Sprint(v.ID))
		default:
			values.Set(d.Name, field.Format(d.Kind, v))
		}
	}
	return values
}

// bind coerces submitted form values into a record. Empty inputs of
// nullable fields become null; unchecked booleans are false.
func bind(fields []*field.Descriptor, form url.Values) (query.Record, map[string]string) {
	rec := query.Record{}
	errs := map[string]string{}
	for _, d := range fields {
		if d.Kind == field.KindManyToMany {
			ids := []any{}
			for _, raw := range form[d.Name] {
				for _, part := range strings.Split(raw, ",") {
					if part = strings.TrimSpace(part); part == "" {
						continue
					}
					id, err := field.Coerce(d.Kind, part)
					if err != nil {
						errs[d.Name] = err.Error()
						continue
					}
					ids = append(ids, id)
				}
			}
			rec[d.Name] = ids
			continue
		}

		raw := strings.TrimSpace(form.Get(d.Name))
		switch {
		case raw == "" && d.Kind == field.KindBoolean && !d.Nullable:
			rec[d.Name] = false
		case raw == "" && d.Nullable:
			rec[d.Name] = nil
		case raw == "":
			errs[d.Name] = "This field is required."
		default:
			val, err := field.Coerce(d.Kind, raw)
			if err != nil {
				errs[d.Name] = err.Error()
				continue
			}
			rec[d.Name] = val
		}
	}
	return rec, errs
}

// context returns the values shared by every page of v.
func (v *Viewset) context(r *http.Request) map[string]any {
	return map[string]any{
		"title":     v.cfg.Title,
		"node_id":   v.cfg.Name,
		"url_names": v.URLNames(),
		"urls":      v.urls,
		"next_url":  v.nextURL(r, v.urls[table.CodeList]),
		"partial":   isHTMX(r),
	}
}

func (v *Viewset) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	var b strings.Builder
	if err := v.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		v.serverError(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, b.String())
}

func (v *Viewset) serverError(w http.ResponseWriter, r *http.Request, err error) {
	v.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
