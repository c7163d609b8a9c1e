package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"go-action-pipeline/pkg/utils"
)

// DerivedSpec describes a per-row metric computed before aggregation.
// The only supported type is a time delta: EndCol - StartCol in Unit.
type DerivedSpec struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	EndCol   string `mapstructure:"end_col"`
	StartCol string `mapstructure:"start_col"`
	Unit     string `mapstructure:"unit"`
}

// AggregateSpec holds the arguments of group_by_aggregate.
type AggregateSpec struct {
	GroupColumn  string
	TargetColumn string
	Derived      *DerivedSpec
	Agg          string
	OtherColumn  string
	Percentile   float64
	KeepAll      bool
}

// groupReducer computes one aggregate over a group's target values and,
// for two-column aggregates, the paired other column.
type groupReducer func(target []interface{}, other []interface{}) interface{}

func numericReducer(f func([]float64) float64) groupReducer {
	return func(target, _ []interface{}) interface{} {
		return scalarValue(f(floatsOf(target)))
	}
}

func pairedReducer(f func(x, y []float64) float64) groupReducer {
	return func(target, other []interface{}) interface{} {
		var xs, ys []float64
		for i := range target {
			x, ok1 := utils.ToFloat(target[i])
			y, ok2 := utils.ToFloat(other[i])
			if ok1 && ok2 {
				xs = append(xs, x)
				ys = append(ys, y)
			}
		}
		return scalarValue(f(xs, ys))
	}
}

var groupReducers = map[string]groupReducer{
	"avg":  numericReducer(meanOf),
	"mean": numericReducer(meanOf),
	"sum":  numericReducer(sumOf),
	"min":  numericReducer(minOf),
	"max":  numericReducer(maxOf),
	"std":  numericReducer(stdOf),
	"var":  numericReducer(varianceOf),
	"count": func(target, _ []interface{}) interface{} {
		n := 0
		for _, v := range target {
			if v != nil {
				n++
			}
		}
		return float64(n)
	},
	"cov":  pairedReducer(covarianceOf),
	"corr": pairedReducer(correlationOf),
}

// resolveReducer picks the single evaluation path for agg and the name of
// the column it produces.
func resolveReducer(spec AggregateSpec, target string) (groupReducer, string, error) {
	switch spec.Agg {
	case "percentile":
		if spec.Percentile < 0 || spec.Percentile > 100 {
			return nil, "", fmt.Errorf("%w: percentile must be within 0..100, got %v", ErrAggregationArgument, spec.Percentile)
		}
		q := spec.Percentile / 100
		return numericReducer(func(x []float64) float64 { return quantileOf(x, q) }),
			fmt.Sprintf("p%d_%s", int(spec.Percentile), target), nil
	case "cov", "corr":
		if spec.OtherColumn == "" {
			return nil, "", fmt.Errorf("%w: other_column is required for %s", ErrAggregationArgument, spec.Agg)
		}
		return groupReducers[spec.Agg], fmt.Sprintf("%s_%s_%s", spec.Agg, target, spec.OtherColumn), nil
	}
	r, ok := groupReducers[spec.Agg]
	if !ok {
		return nil, "", fmt.Errorf("%w: unsupported agg %q", ErrAggregationArgument, spec.Agg)
	}
	return r, fmt.Sprintf("%s_%s", spec.Agg, target), nil
}

// GroupByAggregate reduces the target (a column or a derived time delta) per
// group. Without KeepAll the result has one row per group, groups ascending;
// with KeepAll the aggregate is joined back onto every input row.
func GroupByAggregate(d *Dataset, spec AggregateSpec) (*Dataset, error) {
	spec.Agg = strings.ToLower(strings.TrimSpace(spec.Agg))
	if spec.Agg == "" {
		spec.Agg = "avg"
	}
	if err := d.requireColumns(spec.GroupColumn); err != nil {
		return nil, err
	}

	targetName, target, err := aggregationTarget(d, spec)
	if err != nil {
		return nil, err
	}
	reduce, resultCol, err := resolveReducer(spec, targetName)
	if err != nil {
		return nil, err
	}
	var other []interface{}
	if spec.OtherColumn != "" {
		if err := d.requireColumns(spec.OtherColumn); err != nil {
			return nil, err
		}
		other = d.Column(spec.OtherColumn)
	} else {
		other = make([]interface{}, d.Len())
	}

	keys, members := groupIndex(d, spec.GroupColumn)
	results := make(map[interface{}]interface{}, len(keys))
	for _, k := range keys {
		idx := members[k]
		t := make([]interface{}, len(idx))
		o := make([]interface{}, len(idx))
		for i, row := range idx {
			t[i] = target[row]
			o[i] = other[row]
		}
		results[k] = reduce(t, o)
	}

	if spec.KeepAll {
		values := make([]interface{}, d.Len())
		for i, r := range d.rows {
			if key := r[spec.GroupColumn]; key != nil {
				values[i] = results[key]
			}
		}
		return d.withColumn(resultCol, values), nil
	}

	rows := make([]GenericRecord, len(keys))
	for i, k := range keys {
		rows[i] = GenericRecord{spec.GroupColumn: k, resultCol: results[k]}
	}
	return NewDataset([]string{spec.GroupColumn, resultCol}, rows), nil
}

// aggregationTarget returns the name and per-row values being aggregated.
// A derived spec always takes precedence over target_column.
func aggregationTarget(d *Dataset, spec AggregateSpec) (string, []interface{}, error) {
	if spec.Derived != nil {
		ds := spec.Derived
		switch strings.ToLower(ds.Type) {
		case "timedelta", "time-delta", "time_delta":
		default:
			return "", nil, fmt.Errorf("%w: unsupported derived type %q", ErrAggregationArgument, ds.Type)
		}
		if ds.EndCol == "" || ds.StartCol == "" {
			return "", nil, fmt.Errorf("%w: derived time delta needs end_col and start_col", ErrAggregationArgument)
		}
		if err := d.requireColumns(ds.EndCol, ds.StartCol); err != nil {
			return "", nil, err
		}
		divisor, err := unitDivisor(ds.Unit)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrAggregationArgument, err)
		}
		values := secondsBetween(d, ds.EndCol, ds.StartCol)
		for i, v := range values {
			if s, ok := v.(float64); ok {
				values[i] = s / divisor
			}
		}
		name := ds.Name
		if name == "" {
			name = "derived"
		}
		return name, values, nil
	}

	if spec.TargetColumn == "" {
		return "", nil, fmt.Errorf("%w: target_column or derived is required", ErrAggregationArgument)
	}
	if err := d.requireColumns(spec.TargetColumn); err != nil {
		return "", nil, err
	}
	return spec.TargetColumn, d.Column(spec.TargetColumn), nil
}

// unitDivisor converts seconds into the requested unit.
func unitDivisor(unit string) (float64, error) {
	switch strings.ToLower(unit) {
	case "", "seconds", "second", "s":
		return 1, nil
	case "minutes", "minute", "m":
		return 60, nil
	case "hours", "hour", "h":
		return 3600, nil
	}
	return 0, fmt.Errorf("unit must be seconds, minutes or hours, got %q", unit)
}

// groupIndex returns the distinct present keys of col in ascending order and
// the row positions belonging to each.
func groupIndex(d *Dataset, col string) ([]interface{}, map[interface{}][]int) {
	members := make(map[interface{}][]int)
	var keys []interface{}
	for i, r := range d.rows {
		k := r[col]
		if k == nil {
			continue
		}
		if _, ok := members[k]; !ok {
			keys = append(keys, k)
		}
		members[k] = append(members[k], i)
	}
	slices.SortStableFunc(keys, func(a, b interface{}) int { return sortCompare(a, b, false) })
	return keys, members
}

func floatsOf(values []interface{}) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := utils.ToFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}
