package memstore

import (
	"fmt"
	"math"
	"time"

	"github.com/gnemet/viewsets/field"
	"github.com/gnemet/viewsets/query"
)

// groupRecords collapses records into one record per distinct key value,
// annotated with the aggregates described by grouped.
func groupRecords(records []query.Record, key field.Lookup, grouped *field.Set) []query.Record {
	groups := make(map[string][]query.Record)
	keys := make(map[string]any)
	var order []string // preserve first-seen order

	for _, rec := range records {
		v := lookupValue(key, rec)
		k := groupKey(v)
		if _, exists := groups[k]; !exists {
			order = append(order, k)
			keys[k] = v
		}
		groups[k] = append(groups[k], rec)
	}

	keyName := grouped.GroupKey().Name
	out := make([]query.Record, 0, len(order))
	for _, k := range order {
		row := query.Record{keyName: keys[k]}
		for _, d := range grouped.List() {
			if !d.IsAggregate() {
				continue
			}
			row[d.Name] = aggregateValue(groups[k], d)
		}
		out = append(out, row)
	}
	return out
}

func groupKey(v any) string {
	switch val := v.(type) {
	case nil:
		return "\x00null"
	case time.Time:
		return fmt.Sprintf("t:%d", val.UnixNano())
	case query.Ref:
		return fmt.Sprintf("r:%v", val.ID)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// aggregateValue computes the aggregate of d over the non-null source
// values of records. Statistics are population statistics.
func aggregateValue(records []query.Record, d *field.Descriptor) any {
	var (
		values   []float64
		count    int64
		min, max any
	)
	for _, rec := range records {
		v := rec[d.Source]
		if r, ok := v.(query.Ref); ok {
			v = r.ID
		}
		if v == nil {
			continue
		}
		count++
		if min == nil || compareValues(v, min) < 0 {
			min = v
		}
		if max == nil || compareValues(v, max) > 0 {
			max = v
		}
		if f, ok := toFloat(v); ok {
			values = append(values, f)
		}
	}

	switch d.Aggregate {
	case field.AggCount:
		return count
	case field.AggMin:
		return min
	case field.AggMax:
		return max
	}
	if len(values) == 0 {
		return nil
	}

	var sum float64
	for _, f := range values {
		sum += f
	}
	mean := sum / float64(len(values))

	switch d.Aggregate {
	case field.AggSum:
		if d.Kind == field.KindInteger {
			return int64(sum)
		}
		return sum
	case field.AggAvg:
		return mean
	case field.AggVariance, field.AggStdDev:
		var sq float64
		for _, f := range values {
			sq += (f - mean) * (f - mean)
		}
		variance := sq / float64(len(values))
		if d.Aggregate == field.AggStdDev {
			return math.Sqrt(variance)
		}
		return variance
	}
	return nil
}
