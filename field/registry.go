package field

// Op is a named lookup: either a comparison ("icontains", "gt") or a
// transform ("trunc_day", "year") whose result can itself be compared or
// used as a grouping key.
type Op struct {
	Name  string
	Label string

	// Transform ops rewrite the field value instead of comparing it.
	Transform bool
	// Output is the kind a transform produces. KindUnknown keeps the input kind.
	Output Kind

	TextOnly    bool
	NumberOnly  bool
	Unsupported bool
}

// OutputKind returns the kind produced when op is applied to a value of kind in.
func (op *Op) OutputKind(in Kind) Kind {
	if op == nil || !op.Transform || op.Output == KindUnknown {
		return in
	}
	return op.Output
}

// Registry maps kinds onto the lookups and aggregates they support.
// A Registry is immutable once built and safe for concurrent reads.
type Registry struct {
	ops   map[string]*Op
	kinds map[Kind][]*Op
	aggs  map[Kind][]Aggregate
}

// Option customises a Registry while it is being built.
type Option func(*Registry)

// WithOp registers an additional op for the given kinds.
func WithOp(op Op, kinds ...Kind) Option {
	return func(r *Registry) {
		r.register(op, kinds...)
	}
}

var (
	scalarKinds = []Kind{
		KindInteger, KindFloat, KindDecimal, KindChar, KindText, KindBoolean,
		KindDate, KindDateTime, KindTime, KindDuration, KindUUID, KindJSON,
	}
	dateKinds     = []Kind{KindDate, KindDateTime}
	clockKinds    = []Kind{KindDateTime, KindTime}
	relationKinds = []Kind{KindForeignKey, KindManyToMany}
)

// Default is the process-wide registry with the built-in lookups.
var Default = NewRegistry()

// NewRegistry builds a registry with the built-in lookups plus opts.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		ops:   make(map[string]*Op),
		kinds: make(map[Kind][]*Op),
		aggs:  make(map[Kind][]Aggregate),
	}

	for _, op := range []Op{
		{Name: "exact", Label: "Exact"},
		{Name: "iexact", Label: "IExact", TextOnly: true},
		{Name: "contains", Label: "Contains", TextOnly: true},
		{Name: "icontains", Label: "IContains", TextOnly: true},
		{Name: "startswith", Label: "StartsWith", TextOnly: true},
		{Name: "istartswith", Label: "IStartsWith", TextOnly: true},
		{Name: "endswith", Label: "EndsWith", TextOnly: true},
		{Name: "iendswith", Label: "IEndsWith", TextOnly: true},
		{Name: "gt", Label: "GreaterThan"},
		{Name: "gte", Label: "GreaterThanOrEqual"},
		{Name: "lt", Label: "LessThan"},
		{Name: "lte", Label: "LessThanOrEqual"},
		{Name: "isnull", Label: "IsNull"},
		{Name: "in", Label: "In", Unsupported: true},
		{Name: "range", Label: "Range", Unsupported: true},
		{Name: "lower", Label: "Lower", Transform: true, TextOnly: true},
		{Name: "length", Label: "Length", Transform: true, Output: KindInteger, TextOnly: true},
		{Name: "round", Label: "Round", Transform: true, Output: KindInteger, NumberOnly: true},
	} {
		r.register(op, scalarKinds...)
	}

	for _, op := range []Op{
		{Name: "year", Label: "ExtractYear", Transform: true, Output: KindInteger},
		{Name: "quarter", Label: "ExtractQuarter", Transform: true, Output: KindInteger},
		{Name: "month", Label: "ExtractMonth", Transform: true, Output: KindInteger},
		{Name: "week", Label: "ExtractWeek", Transform: true, Output: KindInteger},
		{Name: "day", Label: "ExtractDay", Transform: true, Output: KindInteger},
		{Name: "week_day", Label: "ExtractWeekDay", Transform: true, Output: KindInteger},
		{Name: "iso_week_day", Label: "ExtractIsoWeekDay", Transform: true, Output: KindInteger},
		{Name: "trunc_year", Label: "TruncYear", Transform: true},
		{Name: "trunc_quarter", Label: "TruncQuarter", Transform: true},
		{Name: "trunc_month", Label: "TruncMonth", Transform: true},
		{Name: "trunc_week", Label: "TruncWeek", Transform: true},
		{Name: "trunc_day", Label: "TruncDay", Transform: true},
	} {
		r.register(op, dateKinds...)
	}

	for _, op := range []Op{
		{Name: "hour", Label: "ExtractHour", Transform: true, Output: KindInteger},
		{Name: "minute", Label: "ExtractMinute", Transform: true, Output: KindInteger},
		{Name: "second", Label: "ExtractSecond", Transform: true, Output: KindInteger},
	} {
		r.register(op, clockKinds...)
	}

	for _, op := range []Op{
		{Name: "date", Label: "TruncDate", Transform: true, Output: KindDate},
		{Name: "time", Label: "TruncTime", Transform: true, Output: KindTime},
		{Name: "trunc_hour", Label: "TruncHour", Transform: true},
		{Name: "trunc_minute", Label: "TruncMinute", Transform: true},
		{Name: "trunc_second", Label: "TruncSecond", Transform: true},
	} {
		r.register(op, KindDateTime)
	}

	for _, name := range []string{"exact", "isnull"} {
		op := r.ops[name]
		for _, k := range relationKinds {
			r.kinds[k] = append(r.kinds[k], op)
		}
	}

	for _, k := range scalarKinds {
		r.aggs[k] = []Aggregate{AggCount}
	}
	r.aggs[KindForeignKey] = []Aggregate{AggCount}
	for _, k := range []Kind{KindInteger, KindFloat, KindDecimal} {
		r.aggs[k] = []Aggregate{AggCount, AggAvg, AggSum, AggMin, AggMax, AggVariance, AggStdDev}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) register(op Op, kinds ...Kind) {
	p, ok := r.ops[op.Name]
	if !ok {
		p = &op
		r.ops[op.Name] = p
	}
	for _, k := range kinds {
		r.kinds[k] = append(r.kinds[k], p)
	}
}

// Op returns the registered op with the given name.
func (r *Registry) Op(name string) (*Op, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Ops returns every op registered for kind k, in registration order.
func (r *Registry) Ops(k Kind) []*Op {
	return r.kinds[k]
}

// Aggregates returns the aggregates valid for kind k.
func (r *Registry) Aggregates(k Kind) []Aggregate {
	return r.aggs[k]
}
