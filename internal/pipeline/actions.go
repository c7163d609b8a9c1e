package pipeline

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"go-action-pipeline/pkg/utils"
)

// Kind identifies one operation an action plan may name.
type Kind int

const (
	KindSelectRows Kind = iota
	KindSortRows
	KindTopN
	KindGroupTopN
	KindFilterDateRange
	KindAddDerivedColumn
	KindRollingAverage
	KindGroupByAggregate
	KindCalculateAverage
	KindCalculateMedian
	KindCalculateMode
	KindCalculateSum
	KindCalculateMin
	KindCalculateMax
	KindCalculateStd
	KindCalculateVariance
	KindCalculatePercentile
	KindCalculateCorrelation
	KindCalculateCovariance
	KindCountRows
	KindCalculateDelayAvg
	KindCalculateDelayAvgGrouped
	KindCalculateFailureRate
)

// AllKinds lists every operation, in declaration order.
var AllKinds = []Kind{
	KindSelectRows, KindSortRows, KindTopN, KindGroupTopN, KindFilterDateRange,
	KindAddDerivedColumn, KindRollingAverage, KindGroupByAggregate,
	KindCalculateAverage, KindCalculateMedian, KindCalculateMode, KindCalculateSum,
	KindCalculateMin, KindCalculateMax, KindCalculateStd, KindCalculateVariance,
	KindCalculatePercentile, KindCalculateCorrelation, KindCalculateCovariance,
	KindCountRows, KindCalculateDelayAvg, KindCalculateDelayAvgGrouped,
	KindCalculateFailureRate,
}

var kindNames = map[Kind]string{
	KindSelectRows:               "select_rows",
	KindSortRows:                 "sort_rows",
	KindTopN:                     "top_n",
	KindGroupTopN:                "group_top_n",
	KindFilterDateRange:          "filter_date_range",
	KindAddDerivedColumn:         "add_derived_column",
	KindRollingAverage:           "rolling_average",
	KindGroupByAggregate:         "group_by_aggregate",
	KindCalculateAverage:         "calculate_average",
	KindCalculateMedian:          "calculate_median",
	KindCalculateMode:            "calculate_mode",
	KindCalculateSum:             "calculate_sum",
	KindCalculateMin:             "calculate_min",
	KindCalculateMax:             "calculate_max",
	KindCalculateStd:             "calculate_std",
	KindCalculateVariance:        "calculate_variance",
	KindCalculatePercentile:      "calculate_percentile",
	KindCalculateCorrelation:     "calculate_correlation",
	KindCalculateCovariance:      "calculate_covariance",
	KindCountRows:                "count_rows",
	KindCalculateDelayAvg:        "calculate_delay_avg",
	KindCalculateDelayAvgGrouped: "calculate_delay_avg_grouped",
	KindCalculateFailureRate:     "calculate_failure_rate",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves an action's function name.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[strings.TrimSpace(name)]
	return k, ok
}

// Category tells whether an operation produces a dataset or a scalar.
type Category string

const (
	CategoryTransform Category = "transform"
	CategoryReduce    Category = "reduce"
	CategoryUnknown   Category = "unknown"
)

// Category of the operation.
func (k Kind) Category() Category {
	if h, ok := handlers[k]; ok {
		return h.category
	}
	return CategoryUnknown
}

// handler runs one kind of operation. Exactly one of transform/reduce is set.
type handler struct {
	category  Category
	transform func(d *Dataset, args map[string]interface{}) (*Dataset, error)
	reduce    func(d *Dataset, args map[string]interface{}) (*Scalar, error)
}

func transformWith[A any](defaults A, fn func(*Dataset, A) (*Dataset, error)) handler {
	return handler{
		category: CategoryTransform,
		transform: func(d *Dataset, raw map[string]interface{}) (*Dataset, error) {
			a := defaults
			if err := decodeArgs(raw, &a); err != nil {
				return nil, err
			}
			return fn(d, a)
		},
	}
}

func reduceWith[A any](defaults A, fn func(*Dataset, A) (*Scalar, error)) handler {
	return handler{
		category: CategoryReduce,
		reduce: func(d *Dataset, raw map[string]interface{}) (*Scalar, error) {
			a := defaults
			if err := decodeArgs(raw, &a); err != nil {
				return nil, err
			}
			return fn(d, a)
		},
	}
}

// decodeArgs fills a typed argument struct from the raw action arguments.
// Input is weakly typed so planners may send "5" for a number.
func decodeArgs(raw map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       timeToStringHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// timeToStringHook keeps YAML timestamps usable where a string is expected.
func timeToStringHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if t, ok := data.(time.Time); ok && to.Kind() == reflect.String {
		return utils.FormatValue(t), nil
	}
	return data, nil
}

func required(arg, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, arg)
	}
	return nil
}

// firstOf returns the first non-empty alias.
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ------------------- Argument Types -------------------

type selectArgs struct {
	Column    string `mapstructure:"column"`
	Condition string `mapstructure:"condition"`
}

type sortArgs struct {
	Column string `mapstructure:"column"`
	Order  string `mapstructure:"order"`
}

type topNArgs struct {
	Column string `mapstructure:"column"`
	Order  string `mapstructure:"order"`
	N      int    `mapstructure:"n"`
}

type groupTopNArgs struct {
	GroupColumn string `mapstructure:"group_column"`
	SortColumn  string `mapstructure:"sort_column"`
	Order       string `mapstructure:"order"`
	N           int    `mapstructure:"n"`
	KeepAll     bool   `mapstructure:"keep_all"`
}

type dateRangeArgs struct {
	Column    string `mapstructure:"column"`
	Start     string `mapstructure:"start"`
	End       string `mapstructure:"end"`
	Inclusive string `mapstructure:"inclusive"`
}

type derivedColumnArgs struct {
	Name    string `mapstructure:"name"`
	Formula string `mapstructure:"formula"`
}

type rollingArgs struct {
	Column  string `mapstructure:"column"`
	Window  int    `mapstructure:"window"`
	GroupBy string `mapstructure:"group_by"`
}

type aggregateArgs struct {
	GroupColumn  string       `mapstructure:"group_column"`
	TargetColumn string       `mapstructure:"target_column"`
	Derived      *DerivedSpec `mapstructure:"derived"`
	Agg          string       `mapstructure:"agg"`
	OtherColumn  string       `mapstructure:"other_column"`
	Percentile   *float64     `mapstructure:"percentile"`
	Q            *float64     `mapstructure:"q"`
	KeepAll      bool         `mapstructure:"keep_all"`
}

type columnArgs struct {
	Column string `mapstructure:"column"`
}

type percentileArgs struct {
	Column      string   `mapstructure:"column"`
	Percentile  *float64 `mapstructure:"percentile"`
	Q           *float64 `mapstructure:"q"`
	GroupBy     string   `mapstructure:"group_by"`
	GroupColumn string   `mapstructure:"group_column"`
}

type pairArgs struct {
	X       string `mapstructure:"x"`
	Y       string `mapstructure:"y"`
	Column1 string `mapstructure:"column1"`
	Column2 string `mapstructure:"column2"`
}

type delayArgs struct {
	Unit string `mapstructure:"unit"`
	Abs  bool   `mapstructure:"abs"`
}

type groupedDelayArgs struct {
	GroupColumn string `mapstructure:"group_column"`
	Unit        string `mapstructure:"unit"`
}

type groupArgs struct {
	GroupColumn string `mapstructure:"group_column"`
}

type noArgs struct{}

// percentileOr resolves the percentile/q aliases, defaulting to 90.
func percentileOr(p, q *float64) float64 {
	switch {
	case p != nil:
		return *p
	case q != nil:
		return *q
	}
	return 90
}

func columnStatistic(f func([]float64) float64) handler {
	return reduceWith(columnArgs{}, func(d *Dataset, a columnArgs) (*Scalar, error) {
		if err := required("column", a.Column); err != nil {
			return nil, err
		}
		return ReduceColumn(d, a.Column, f)
	})
}

// ------------------- Dispatch Table -------------------

var handlers map[Kind]handler

func init() {
	handlers = map[Kind]handler{
		KindSelectRows: transformWith(selectArgs{}, func(d *Dataset, a selectArgs) (*Dataset, error) {
			if err := required("column", a.Column); err != nil {
				return nil, err
			}
			return SelectRows(d, a.Column, a.Condition)
		}),
		KindSortRows: transformWith(sortArgs{Order: "asc"}, func(d *Dataset, a sortArgs) (*Dataset, error) {
			if err := required("column", a.Column); err != nil {
				return nil, err
			}
			return SortRows(d, a.Column, a.Order)
		}),
		KindTopN: transformWith(topNArgs{Order: "desc", N: 5}, func(d *Dataset, a topNArgs) (*Dataset, error) {
			if err := required("column", a.Column); err != nil {
				return nil, err
			}
			return TopN(d, a.Column, a.Order, a.N)
		}),
		KindGroupTopN: transformWith(groupTopNArgs{Order: "desc", N: 1, KeepAll: true}, func(d *Dataset, a groupTopNArgs) (*Dataset, error) {
			if err := required("group_column", a.GroupColumn); err != nil {
				return nil, err
			}
			if err := required("sort_column", a.SortColumn); err != nil {
				return nil, err
			}
			return GroupTopN(d, a.GroupColumn, a.SortColumn, a.Order, a.N, a.KeepAll)
		}),
		KindFilterDateRange: transformWith(dateRangeArgs{Inclusive: "both"}, func(d *Dataset, a dateRangeArgs) (*Dataset, error) {
			if err := required("column", a.Column); err != nil {
				return nil, err
			}
			return FilterDateRange(d, a.Column, a.Start, a.End, a.Inclusive)
		}),
		KindAddDerivedColumn: transformWith(derivedColumnArgs{}, func(d *Dataset, a derivedColumnArgs) (*Dataset, error) {
			if err := required("formula", a.Formula); err != nil {
				return nil, err
			}
			return AddDerivedColumn(d, a.Name, a.Formula)
		}),
		KindRollingAverage: transformWith(rollingArgs{Window: 3}, func(d *Dataset, a rollingArgs) (*Dataset, error) {
			if err := required("column", a.Column); err != nil {
				return nil, err
			}
			return RollingAverage(d, a.Column, a.Window, a.GroupBy)
		}),
		KindGroupByAggregate: transformWith(aggregateArgs{Agg: "avg"}, func(d *Dataset, a aggregateArgs) (*Dataset, error) {
			if err := required("group_column", a.GroupColumn); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrAggregationArgument, err)
			}
			return GroupByAggregate(d, AggregateSpec{
				GroupColumn:  a.GroupColumn,
				TargetColumn: a.TargetColumn,
				Derived:      a.Derived,
				Agg:          a.Agg,
				OtherColumn:  a.OtherColumn,
				Percentile:   percentileOr(a.Percentile, a.Q),
				KeepAll:      a.KeepAll,
			})
		}),

		KindCalculateAverage:  columnStatistic(meanOf),
		KindCalculateMedian:   columnStatistic(func(x []float64) float64 { return quantileOf(x, 0.5) }),
		KindCalculateSum:      columnStatistic(sumOf),
		KindCalculateMin:      columnStatistic(minOf),
		KindCalculateMax:      columnStatistic(maxOf),
		KindCalculateStd:      columnStatistic(stdOf),
		KindCalculateVariance: columnStatistic(varianceOf),
		KindCalculateMode: reduceWith(columnArgs{}, func(d *Dataset, a columnArgs) (*Scalar, error) {
			if err := required("column", a.Column); err != nil {
				return nil, err
			}
			return CalculateMode(d, a.Column)
		}),
		KindCalculatePercentile: reduceWith(percentileArgs{}, func(d *Dataset, a percentileArgs) (*Scalar, error) {
			if err := required("column", a.Column); err != nil {
				return nil, err
			}
			return CalculatePercentile(d, a.Column, percentileOr(a.Percentile, a.Q), firstOf(a.GroupBy, a.GroupColumn))
		}),
		KindCalculateCorrelation: reduceWith(pairArgs{}, func(d *Dataset, a pairArgs) (*Scalar, error) {
			return CalculateCorrelation(d, firstOf(a.X, a.Column1), firstOf(a.Y, a.Column2))
		}),
		KindCalculateCovariance: reduceWith(pairArgs{}, func(d *Dataset, a pairArgs) (*Scalar, error) {
			return CalculateCovariance(d, firstOf(a.X, a.Column1), firstOf(a.Y, a.Column2))
		}),
		KindCountRows: reduceWith(noArgs{}, func(d *Dataset, _ noArgs) (*Scalar, error) {
			return CountRows(d), nil
		}),
		KindCalculateDelayAvg: reduceWith(delayArgs{Unit: "seconds"}, func(d *Dataset, a delayArgs) (*Scalar, error) {
			return CalculateDelayAvg(d, a.Unit, a.Abs)
		}),
		KindCalculateDelayAvgGrouped: reduceWith(groupedDelayArgs{Unit: "seconds"}, func(d *Dataset, a groupedDelayArgs) (*Scalar, error) {
			if err := required("group_column", a.GroupColumn); err != nil {
				return nil, err
			}
			return CalculateDelayAvgGrouped(d, a.GroupColumn, a.Unit)
		}),
		KindCalculateFailureRate: reduceWith(groupArgs{}, func(d *Dataset, a groupArgs) (*Scalar, error) {
			if err := required("group_column", a.GroupColumn); err != nil {
				return nil, err
			}
			return CalculateFailureRate(d, a.GroupColumn)
		}),
	}
}
