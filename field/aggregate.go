package field

// Aggregate is a reduction computed over a group of records.
type Aggregate int

const (
	AggNone Aggregate = iota
	AggCount
	AggAvg
	AggSum
	AggMin
	AggMax
	AggVariance
	AggStdDev
)

var aggregateNames = [...]string{
	AggNone:     "",
	AggCount:    "count",
	AggAvg:      "avg",
	AggSum:      "sum",
	AggMin:      "min",
	AggMax:      "max",
	AggVariance: "variance",
	AggStdDev:   "stddev",
}

var aggregateLabels = [...]string{
	AggNone:     "",
	AggCount:    "Count",
	AggAvg:      "Avg",
	AggSum:      "Sum",
	AggMin:      "Min",
	AggMax:      "Max",
	AggVariance: "Variance",
	AggStdDev:   "StdDev",
}

// String returns the lookup-style aggregate name ("count", "avg", ...).
func (a Aggregate) String() string {
	if a < 0 || int(a) >= len(aggregateNames) {
		return ""
	}
	return aggregateNames[a]
}

// Label returns the display label of the aggregate.
func (a Aggregate) Label() string {
	if a < 0 || int(a) >= len(aggregateLabels) {
		return ""
	}
	return aggregateLabels[a]
}

// ResultKind is the kind of the aggregate computed over values of kind in.
func (a Aggregate) ResultKind(in Kind) Kind {
	switch a {
	case AggCount:
		return KindInteger
	case AggAvg, AggVariance, AggStdDev:
		return KindFloat
	default:
		return in
	}
}
