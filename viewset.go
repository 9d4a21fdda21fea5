// Package viewsets serves CRUD views over a record store: a searchable,
// filterable and groupable list backed by a DataTables endpoint, a chart
// endpoint and detail, create, update and delete views.
package viewsets

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-chi/chi/v5"

	"github.com/gnemet/viewsets/chart"
	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
	"github.com/gnemet/viewsets/table"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultNamespace prefixes URL names of viewsets configured without one.
const DefaultNamespace = "viewsets"

// URL paths by code, relative to the viewset prefix.
var urlPaths = map[string]string{
	table.CodeList:   "/",
	table.CodeDetail: "/{pk}/",
	table.CodeCreate: "/create/",
	table.CodeUpdate: "/{pk}/update/",
	table.CodeDelete: "/{pk}/delete/",
	table.CodeTable:  "/table/",
	table.CodeChart:  "/chart/",
}

// Config describes one viewset.
type Config struct {
	Namespace string
	// Name is the node id of the viewset; it names its URLs and its
	// default mount prefix "/{name}".
	Name   string
	Title  string
	Prefix string
	Store  query.Store

	// Per-view field lists fall back to Fields, then to every field.
	Fields       []string
	ListFields   []string
	DetailFields []string
	FormFields   []string

	Operations Operations
	PageSize   int
	Ordering   []query.Order
	Chart      *chart.Config

	Logger    *slog.Logger
	Templates *template.Template
}

// Viewset serves the views of one record type.
type Viewset struct {
	cfg     Config
	urls    table.URLs
	actions []table.Action
	chart   *chart.Chart
	tmpl    *template.Template
	logger  *slog.Logger
}

// ErrInvalidConfig is returned by New for incomplete configurations.
var ErrInvalidConfig = errors.New("invalid viewset config")

// New validates cfg and applies its defaults.
func New(cfg Config) (*Viewset, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: %s: missing store", ErrInvalidConfig, cfg.Name)
	}
	if cfg.Store.All().Fields().PrimaryKey() == nil {
		return nil, fmt.Errorf("%w: %s: store has no primary key", ErrInvalidConfig, cfg.Name)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Title == "" {
		cfg.Title = cfg.Name
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/" + cfg.Name
	}
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("viewset", cfg.Name)

	v := &Viewset{
		cfg:    cfg,
		urls:   table.URLs{},
		logger: cfg.Logger,
	}

	codes := []string{table.CodeList, table.CodeDetail, table.CodeTable, table.CodeChart}
	v.actions = []table.Action{table.DetailAction}
	if cfg.Operations.Add {
		codes = append(codes, table.CodeCreate)
	}
	if cfg.Operations.Edit {
		codes = append(codes, table.CodeUpdate)
		v.actions = append(v.actions, table.UpdateAction)
	}
	if cfg.Operations.Delete {
		codes = append(codes, table.CodeDelete)
		v.actions = append(v.actions, table.DeleteAction)
	}
	for _, code := range codes {
		v.urls[code] = cfg.Prefix + urlPaths[code]
	}

	chartCfg := chart.Config{}
	if cfg.Chart != nil {
		chartCfg = *cfg.Chart
	}
	if chartCfg.ID == "" {
		chartCfg.ID = "chart_" + cfg.Name
	}
	chartCfg.Logger = cfg.Logger
	v.chart = chart.New(chartCfg)

	v.tmpl = cfg.Templates
	if v.tmpl == nil {
		t, err := ParseTemplates()
		if err != nil {
			return nil, err
		}
		v.tmpl = t
	}
	return v, nil
}

// ParseTemplates parses the embedded templates with the sprig functions.
func ParseTemplates() (*template.Template, error) {
	t, err := template.New("viewsets").Funcs(FuncMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// FuncMap returns the template functions: sprig plus html helpers.
func FuncMap() template.FuncMap {
	fm := sprig.FuncMap()
	fm["safe"] = func(s string) template.HTML {
		return template.HTML(s)
	}
	fm["safeCSS"] = func(s string) template.CSS {
		return template.CSS(s)
	}
	fm["format"] = func(d *field.Descriptor, v any) string {
		return field.Format(d.Kind, v)
	}
	return fm
}

// Name returns the node id of v.
func (v *Viewset) Name() string {
	return v.cfg.Name
}

// Prefix returns the mount path of v.
func (v *Viewset) Prefix() string {
	return v.cfg.Prefix
}

// Store returns the record store of v.
func (v *Viewset) Store() query.Store {
	return v.cfg.Store
}

// URLs returns the paths served by v by code.
func (v *Viewset) URLs() table.URLs {
	return v.urls
}

// URLNames returns "{namespace}:{name}-{code}" for every served code.
func (v *Viewset) URLNames() map[string]string {
	out := make(map[string]string, len(v.urls))
	for code := range v.urls {
		out[code] = fmt.Sprintf("%s:%s-%s", v.cfg.Namespace, v.cfg.Name, code)
	}
	return out
}

// fields returns the names configured for code.
func (v *Viewset) fields(code string) []string {
	var names []string
	switch code {
	case table.CodeList:
		names = v.cfg.ListFields
	case table.CodeDetail:
		names = v.cfg.DetailFields
	case table.CodeCreate, table.CodeUpdate:
		names = v.cfg.FormFields
	}
	if len(names) == 0 {
		names = v.cfg.Fields
	}
	return names
}

// base is the unfiltered collection in default order.
func (v *Viewset) base() query.Collection {
	c := v.cfg.Store.All()
	if len(v.cfg.Ordering) > 0 {
		c = c.OrderBy(v.cfg.Ordering...)
	}
	return c
}

// Routes returns the router of v, relative to its prefix.
func (v *Viewset) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", v.list)
	r.Post("/", v.listPost)
	r.Get("/table/", v.tableData)
	r.Post("/table/", v.tableData)
	r.Get("/chart/", v.chartData)
	r.Get("/{pk}/", v.detail)
	if v.cfg.Operations.Add {
		r.Get("/create/", v.create)
		r.Post("/create/", v.create)
	}
	if v.cfg.Operations.Edit {
		r.Get("/{pk}/update/", v.update)
		r.Post("/{pk}/update/", v.update)
	}
	if v.cfg.Operations.Delete {
		r.Get("/{pk}/delete/", v.delete)
		r.Post("/{pk}/delete/", v.delete)
		r.Delete("/{pk}/delete/", v.delete)
	}
	return r
}

// Mount registers v on r under its prefix.
func (v *Viewset) Mount(r chi.Router) {
	r.Mount(v.cfg.Prefix, v.Routes())
}
