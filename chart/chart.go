// Package chart turns a filtered or grouped collection into Chart.js data:
// one label axis and one dataset per numeric field.
package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// ErrNotImplemented is returned for values a chart cannot plot yet.
var ErrNotImplemented = errors.New("chart: not implemented")

// Type is a Chart.js chart type.
type Type string

const (
	Line      Type = "line"
	Bar       Type = "bar"
	Bubble    Type = "bubble"
	Doughnut  Type = "doughnut"
	Pie       Type = "pie"
	PolarArea Type = "polarArea"
	Radar     Type = "radar"
	Scatter   Type = "scatter"
	// Mixed leaves the type to the datasets.
	Mixed Type = ""
)

// DefaultMaxPoints bounds the records plotted by one chart.
const DefaultMaxPoints = 1000

// Config describes a chart of one viewset.
type Config struct {
	ID string
	// Type defaults to Line. Set Mixed explicitly with MixedType.
	Type      Type
	MixedType bool
	// LabelField defaults to the first datetime field, the first date
	// field or the primary key.
	LabelField string
	// DataFields defaults to every numeric, duration and aggregate field.
	DataFields []string
	Options    map[string]any
	MaxPoints  int

	Logger *slog.Logger
}

// Chart builds chart data for collections.
type Chart struct {
	ID        string
	Type      Type
	Options   map[string]any
	MaxPoints int

	labelField string
	dataFields []string
	logger     *slog.Logger
}

// DefaultOptions returns the options used when Config.Options is nil.
func DefaultOptions() map[string]any {
	return map[string]any{
		"interaction": map[string]any{
			"intersect": false,
			"mode":      "index",
		},
		"plugins": map[string]any{
			"decimation": map[string]any{
				"enabled":   true,
				"algorithm": "lttb",
				"samples":   500,
			},
		},
	}
}

// New applies the defaults of cfg.
func New(cfg Config) *Chart {
	c := &Chart{
		ID:         cfg.ID,
		Type:       cfg.Type,
		Options:    cfg.Options,
		MaxPoints:  cfg.MaxPoints,
		labelField: cfg.LabelField,
		dataFields: cfg.DataFields,
		logger:     cfg.Logger,
	}
	if c.ID == "" {
		c.ID = "chart"
	}
	if c.Type == "" && !cfg.MixedType {
		c.Type = Line
	}
	if c.Options == nil {
		c.Options = DefaultOptions()
	}
	if c.MaxPoints <= 0 {
		c.MaxPoints = DefaultMaxPoints
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Dataset is one data series.
type Dataset struct {
	Type            Type   `json:"type,omitempty"`
	Label           string `json:"label"`
	Data            []any  `json:"data"`
	BorderColor     string `json:"borderColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

// Data holds the labels and the datasets aligned with them.
type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Config returns the Chart.js configuration the page is initialised with;
// data is loaded separately.
func (c *Chart) Config() map[string]any {
	return map[string]any{
		"type":    c.Type,
		"data":    map[string]any{"labels": []string{}, "datasets": []Dataset{}},
		"options": c.Options,
	}
}

// Fields resolves the label field and the data fields of c against fields.
func (c *Chart) Fields(fields *field.Set) (*field.Descriptor, []*field.Descriptor, error) {
	label := c.label(fields)
	if label == nil {
		return nil, nil, fmt.Errorf("chart %s: no label field", c.ID)
	}

	var series []*field.Descriptor
	if c.dataFields != nil {
		for _, name := range c.dataFields {
			d, ok := fields.Get(name)
			if !ok {
				c.logger.Debug("chart series skipped", "chart", c.ID, "field", name)
				continue
			}
			if d.Kind == field.KindTime {
				return nil, nil, fmt.Errorf("%w: time of day series %s", ErrNotImplemented, name)
			}
			if !d.IsAggregate() && !d.Kind.IsNumeric() && !d.Kind.IsTemporal() && d.Kind != field.KindDuration {
				c.logger.Debug("chart series skipped", "chart", c.ID, "field", name, "kind", d.Kind)
				continue
			}
			series = append(series, d)
		}
		return label, series, nil
	}
	for _, d := range fields.List() {
		if d != label && plottable(d) {
			series = append(series, d)
		}
	}
	return label, series, nil
}

func (c *Chart) label(fields *field.Set) *field.Descriptor {
	if c.labelField != "" {
		if d, ok := fields.Get(c.labelField); ok {
			return d
		}
		c.logger.Debug("chart label field missing", "chart", c.ID, "field", c.labelField)
	}
	if d := fields.GroupKey(); d != nil {
		return d
	}
	for _, k := range []field.Kind{field.KindDateTime, field.KindDate} {
		for _, d := range fields.List() {
			if d.Kind == k && !d.IsAggregate() {
				return d
			}
		}
	}
	return fields.PrimaryKey()
}

func plottable(d *field.Descriptor) bool {
	return !d.PrimaryKey && !d.GroupKey && (d.Kind.IsNumeric() || d.Kind == field.KindDuration)
}

// Data evaluates at most MaxPoints records of coll.
func (c *Chart) Data(ctx context.Context, coll query.Collection) (Data, error) {
	label, series, err := c.Fields(coll.Fields())
	if err != nil {
		return Data{}, err
	}
	recs, err := coll.Slice(ctx, 0, c.MaxPoints)
	if err != nil {
		return Data{}, fmt.Errorf("chart %s: %w", c.ID, err)
	}

	out := Data{
		Labels:   make([]string, 0, len(recs)),
		Datasets: make([]Dataset, 0, len(series)),
	}
	for _, rec := range recs {
		out.Labels = append(out.Labels, field.Format(label.Kind, rec[label.Name]))
	}
	for _, d := range series {
		ds := Dataset{
			Type:            c.Type,
			Label:           d.VerboseName,
			Data:            make([]any, 0, len(recs)),
			BorderColor:     d.Color.RGB(),
			BackgroundColor: d.Color.RGBA(0.5),
		}
		for _, rec := range recs {
			v, err := Normalize(d.Kind, rec[d.Name])
			if err != nil {
				return Data{}, fmt.Errorf("chart %s: %s: %w", c.ID, d.Name, err)
			}
			ds.Data = append(ds.Data, v)
		}
		out.Datasets = append(out.Datasets, ds)
	}
	return out, nil
}

// Normalize converts a canonical value into a plain JSON number. Durations
// become seconds and dates and datetimes Unix timestamps in seconds. Time
// of day values are not supported.
func Normalize(k field.Kind, v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case time.Duration:
		return v.Seconds(), nil
	case time.Time:
		return float64(v.UnixMilli()) / 1000, nil
	case query.Ref:
		return v.ID, nil
	case string:
		if k == field.KindTime {
			return nil, fmt.Errorf("%w: time of day value %q", ErrNotImplemented, v)
		}
		return v, nil
	}
	return v, nil
}
