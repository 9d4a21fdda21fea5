package viewsets

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/gnemet/viewsets/chart"
	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
	"github.com/gnemet/viewsets/store/sqlstore"
)

// CatalogSchema is the JSON schema catalogs are validated against.
//
//go:embed catalog.schema.json
var CatalogSchema []byte

// DefaultLang is the label language used when a label has no translation.
const DefaultLang = "en"

// Catalog declares the viewsets of an application. It is read from YAML or
// JSON.
type Catalog struct {
	Version   string      `json:"version" yaml:"version"`
	Title     string      `json:"title,omitempty" yaml:"title,omitempty"`
	Namespace string      `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Objects   []ObjectDef `json:"objects" yaml:"objects"`
}

// ObjectDef is one viewset of a catalog.
type ObjectDef struct {
	Name       string            `json:"name" yaml:"name"`
	Table      string            `json:"table,omitempty" yaml:"table,omitempty"`
	Labels     map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Columns    []ColumnDef       `json:"columns" yaml:"columns"`
	Operations *Operations       `json:"operations,omitempty" yaml:"operations,omitempty"`
	Defaults   Defaults          `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Chart      *ChartDef         `json:"chart,omitempty" yaml:"chart,omitempty"`

	// Per-view field lists fall back to Fields, then to every column.
	Fields       []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	ListFields   []string `json:"list_fields,omitempty" yaml:"list_fields,omitempty"`
	DetailFields []string `json:"detail_fields,omitempty" yaml:"detail_fields,omitempty"`
	FormFields   []string `json:"form_fields,omitempty" yaml:"form_fields,omitempty"`
}

// Operations toggles the record operations of a viewset.
type Operations struct {
	Add    bool `json:"add" yaml:"add"`
	Edit   bool `json:"edit" yaml:"edit"`
	Delete bool `json:"delete" yaml:"delete"`
}

// Defaults are applied to requests that do not override them.
type Defaults struct {
	PageSize int      `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	Ordering []string `json:"ordering,omitempty" yaml:"ordering,omitempty"`
}

// ChartDef configures the chart of a viewset.
type ChartDef struct {
	Type       string   `json:"type,omitempty" yaml:"type,omitempty"`
	LabelField string   `json:"label_field,omitempty" yaml:"label_field,omitempty"`
	DataFields []string `json:"data_fields,omitempty" yaml:"data_fields,omitempty"`
	MaxPoints  int      `json:"max_points,omitempty" yaml:"max_points,omitempty"`
}

// ColumnDef is one field of a viewset.
type ColumnDef struct {
	Name       string            `json:"name" yaml:"name"`
	Type       string            `json:"type" yaml:"type"`
	Column     string            `json:"column,omitempty" yaml:"column,omitempty"`
	Labels     map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	PrimaryKey bool              `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Nullable   bool              `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Relation   *RelationDef      `json:"relation,omitempty" yaml:"relation,omitempty"`
}

// RelationDef points a foreign key or many-to-many column at its target.
type RelationDef struct {
	Table   string `json:"table" yaml:"table"`
	Key     string `json:"key,omitempty" yaml:"key,omitempty"`
	Display string `json:"display,omitempty" yaml:"display,omitempty"`
	Through string `json:"through,omitempty" yaml:"through,omitempty"`
	From    string `json:"from,omitempty" yaml:"from,omitempty"`
	To      string `json:"to,omitempty" yaml:"to,omitempty"`
}

// ErrInvalidCatalog is returned for catalogs violating CatalogSchema.
var ErrInvalidCatalog = errors.New("invalid catalog")

// LoadCatalog reads and validates the catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog decodes and validates a YAML or JSON catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	if err := ValidateCatalog(data); err != nil {
		return nil, err
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for _, o := range cat.Objects {
		if err := o.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCatalog, o.Name, err)
		}
	}
	return &cat, nil
}

// ValidateCatalog checks a YAML or JSON catalog against CatalogSchema.
func ValidateCatalog(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	// Round-trip through JSON so the loader sees plain JSON types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(CatalogSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(msgs, "; "))
}

// Object returns the viewset named name.
func (c *Catalog) Object(name string) (ObjectDef, bool) {
	for _, o := range c.Objects {
		if o.Name == name {
			return o, true
		}
	}
	return ObjectDef{}, false
}

func (o ObjectDef) validate() error {
	pks := 0
	for _, col := range o.Columns {
		if field.ParseKind(col.Type) == field.KindUnknown {
			return fmt.Errorf("column %s: unknown type %q", col.Name, col.Type)
		}
		if col.PrimaryKey {
			pks++
		}
	}
	if pks != 1 {
		return fmt.Errorf("want exactly one primary key, got %d", pks)
	}
	return nil
}

// Label returns the label of o in lang.
func (o ObjectDef) Label(lang string) string {
	return label(o.Labels, lang, o.Name)
}

// TableName is the database table of o.
func (o ObjectDef) TableName() string {
	if o.Table != "" {
		return o.Table
	}
	return o.Name
}

// Specs converts the columns of o into field specs labelled in lang.
func (o ObjectDef) Specs(lang string) []field.Spec {
	specs := make([]field.Spec, 0, len(o.Columns))
	for _, col := range o.Columns {
		spec := field.Spec{
			Name:        col.Name,
			Column:      col.Column,
			Kind:        field.ParseKind(col.Type),
			VerboseName: label(col.Labels, lang, col.Name),
			Nullable:    col.Nullable,
			PrimaryKey:  col.PrimaryKey,
		}
		if r := col.Relation; r != nil {
			spec.Relation = &field.Relation{
				Table:   r.Table,
				Key:     r.Key,
				Display: r.Display,
				Through: r.Through,
				From:    r.From,
				To:      r.To,
			}
		}
		specs = append(specs, spec)
	}
	return specs
}

// SQLTable is the sqlstore definition of o.
func (o ObjectDef) SQLTable(lang string) sqlstore.Table {
	return sqlstore.Table{Name: o.TableName(), Fields: o.Specs(lang)}
}

// Config builds the viewset configuration of o over store.
func (o ObjectDef) Config(store query.Store, lang string) Config {
	cfg := Config{
		Name:         o.Name,
		Title:        o.Label(lang),
		Store:        store,
		Fields:       o.Fields,
		ListFields:   o.ListFields,
		DetailFields: o.DetailFields,
		FormFields:   o.FormFields,
		PageSize:     o.Defaults.PageSize,
	}
	for _, s := range o.Defaults.Ordering {
		cfg.Ordering = append(cfg.Ordering, query.ParseOrder(s))
	}
	if ops := o.Operations; ops != nil {
		cfg.Operations = *ops
	} else {
		cfg.Operations = Operations{Add: true, Edit: true, Delete: true}
	}
	if c := o.Chart; c != nil {
		cfg.Chart = &chart.Config{
			Type:       chart.Type(c.Type),
			LabelField: c.LabelField,
			DataFields: c.DataFields,
			MaxPoints:  c.MaxPoints,
		}
	}
	return cfg
}

// Viewsets builds the viewsets of every object of c. store opens the
// record store of one object.
func (c *Catalog) Viewsets(store func(ObjectDef) (query.Store, error), lang string, logger *slog.Logger) ([]*Viewset, error) {
	sets := make([]*Viewset, 0, len(c.Objects))
	for _, o := range c.Objects {
		s, err := store(o)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", o.Name, err)
		}
		cfg := o.Config(s, lang)
		cfg.Namespace = c.Namespace
		cfg.Logger = logger
		v, err := New(cfg)
		if err != nil {
			return nil, err
		}
		sets = append(sets, v)
	}
	return sets, nil
}

// label resolves labels by lang with an English fallback.
func label(labels map[string]string, lang, fallback string) string {
	if l, ok := labels[lang]; ok {
		return l
	}
	if l, ok := labels[DefaultLang]; ok {
		return l
	}
	return fallback
}
