package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go-action-pipeline/pkg/utils"
)

// Columns and statuses used by the business reducers.
const (
	ColJobStatus    = "Job_Status"
	ColActualEnd    = "Actual_End"
	ColScheduledEnd = "Scheduled_End"

	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
)

// Scalar is the result of a reduction: a single value, or a small per-group
// table. A nil Value with no Table means the reduction had nothing to reduce.
type Scalar struct {
	Value interface{}
	Table *Dataset
}

// IsTable reports whether the scalar is a per-group table.
func (s *Scalar) IsTable() bool {
	return s != nil && s.Table != nil
}

// Literal renders the value for substitution into a formula: strings are
// single-quoted, everything else bare. Tables and missing values have no literal.
func (s *Scalar) Literal() (string, bool) {
	if s == nil || s.Table != nil {
		return "", false
	}
	switch v := s.Value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case bool:
		return strconv.FormatBool(v), true
	case string:
		return "'" + strings.ReplaceAll(v, "'", `\'`) + "'", true
	case time.Time:
		return "'" + utils.FormatValue(v) + "'", true
	}
	return "", false
}

func (s *Scalar) String() string {
	switch {
	case s == nil:
		return "<none>"
	case s.Table != nil:
		return fmt.Sprintf("table(%d rows: %s)", s.Table.Len(), strings.Join(s.Table.Columns(), ", "))
	case s.Value == nil:
		return "<missing>"
	}
	return utils.FormatValue(s.Value)
}

func valueScalar(v interface{}) *Scalar { return &Scalar{Value: v} }

func tableScalar(d *Dataset) *Scalar { return &Scalar{Table: d} }

// ------------------- Column Statistics -------------------

// ReduceColumn applies f to the numeric values of column.
func ReduceColumn(d *Dataset, column string, f func([]float64) float64) (*Scalar, error) {
	if err := d.requireColumns(column); err != nil {
		return nil, err
	}
	x := d.numbers(column)
	if len(x) == 0 {
		return valueScalar(nil), nil
	}
	return valueScalar(scalarValue(f(x))), nil
}

// CalculateMode returns the most frequent value of column, of any type.
func CalculateMode(d *Dataset, column string) (*Scalar, error) {
	if err := d.requireColumns(column); err != nil {
		return nil, err
	}
	return valueScalar(modeOf(d.Column(column))), nil
}

// CalculatePercentile returns the percentile (0..100) of column, or a
// per-group table p<q>_<column> when groupBy is set.
func CalculatePercentile(d *Dataset, column string, percentile float64, groupBy string) (*Scalar, error) {
	if err := d.requireColumns(column); err != nil {
		return nil, err
	}
	if percentile < 0 || percentile > 100 {
		return nil, fmt.Errorf("%w: percentile must be within 0..100, got %v", ErrInvalidArgument, percentile)
	}
	q := percentile / 100
	if groupBy == "" {
		x := d.numbers(column)
		if len(x) == 0 {
			return valueScalar(nil), nil
		}
		return valueScalar(scalarValue(quantileOf(x, q))), nil
	}
	if err := d.requireColumns(groupBy); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("p%d_%s", int(percentile), column)
	return tableScalar(groupTable(d, groupBy, name, func(rows []GenericRecord) interface{} {
		return scalarValue(quantileOf(numbersOf(rows, column), q))
	})), nil
}

// CalculateCorrelation returns the Pearson correlation of x and y.
func CalculateCorrelation(d *Dataset, x, y string) (*Scalar, error) {
	return pairStatistic(d, x, y, correlationOf)
}

// CalculateCovariance returns the sample covariance of x and y.
func CalculateCovariance(d *Dataset, x, y string) (*Scalar, error) {
	return pairStatistic(d, x, y, covarianceOf)
}

func pairStatistic(d *Dataset, x, y string, f func(x, y []float64) float64) (*Scalar, error) {
	if x == "" || y == "" {
		return nil, fmt.Errorf("%w: two columns (x and y) are required", ErrInvalidArgument)
	}
	if err := d.requireColumns(x, y); err != nil {
		return nil, err
	}
	xs, ys := pairedNumbers(d.rows, x, y)
	return valueScalar(scalarValue(f(xs, ys))), nil
}

// CountRows returns the number of rows as an int.
func CountRows(d *Dataset) *Scalar {
	return valueScalar(d.Len())
}

// ------------------- Delay & Failure -------------------

// CalculateDelayAvg averages Actual_End - Scheduled_End over completed jobs,
// in the given unit, optionally on absolute delays.
func CalculateDelayAvg(d *Dataset, unit string, abs bool) (*Scalar, error) {
	if err := d.requireColumns(ColJobStatus, ColActualEnd, ColScheduledEnd); err != nil {
		return nil, err
	}
	divisor, err := unitDivisor(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var delays []float64
	for _, r := range d.rows {
		if !hasStatus(r, StatusCompleted) {
			continue
		}
		if s, ok := delaySeconds(r); ok {
			if abs {
				s = math.Abs(s)
			}
			delays = append(delays, s/divisor)
		}
	}
	if len(delays) == 0 {
		return valueScalar(nil), nil
	}
	return valueScalar(scalarValue(meanOf(delays))), nil
}

// CalculateDelayAvgGrouped averages the delay of every row with both
// timestamps per group, as table avg_delay_<unit>.
func CalculateDelayAvgGrouped(d *Dataset, groupColumn, unit string) (*Scalar, error) {
	if err := d.requireColumns(groupColumn, ColActualEnd, ColScheduledEnd); err != nil {
		return nil, err
	}
	if unit == "" {
		unit = "seconds"
	}
	divisor, err := unitDivisor(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return tableScalar(groupTable(d, groupColumn, "avg_delay_"+unit, func(rows []GenericRecord) interface{} {
		var delays []float64
		for _, r := range rows {
			if s, ok := delaySeconds(r); ok {
				delays = append(delays, s/divisor)
			}
		}
		return scalarValue(meanOf(delays))
	})), nil
}

// CalculateFailureRate returns failed/total per group as table failure_rate.
// A group without failures has rate 0.
func CalculateFailureRate(d *Dataset, groupColumn string) (*Scalar, error) {
	if err := d.requireColumns(groupColumn, ColJobStatus); err != nil {
		return nil, err
	}
	return tableScalar(groupTable(d, groupColumn, "failure_rate", func(rows []GenericRecord) interface{} {
		failed := 0
		for _, r := range rows {
			if hasStatus(r, StatusFailed) {
				failed++
			}
		}
		return float64(failed) / float64(len(rows))
	})), nil
}

func hasStatus(r GenericRecord, status string) bool {
	s, ok := r[ColJobStatus].(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), status)
}

func delaySeconds(r GenericRecord) (float64, bool) {
	end, ok1 := utils.ToTime(r[ColActualEnd])
	sched, ok2 := utils.ToTime(r[ColScheduledEnd])
	if !ok1 || !ok2 {
		return 0, false
	}
	return end.Sub(sched).Seconds(), true
}

// groupTable builds a two-column table with one row per group of col,
// groups ascending, valued by f over the group's rows.
func groupTable(d *Dataset, col, name string, f func([]GenericRecord) interface{}) *Dataset {
	keys, members := groupIndex(d, col)
	rows := make([]GenericRecord, len(keys))
	for i, k := range keys {
		group := make([]GenericRecord, len(members[k]))
		for j, idx := range members[k] {
			group[j] = d.rows[idx]
		}
		rows[i] = GenericRecord{col: k, name: f(group)}
	}
	return NewDataset([]string{col, name}, rows)
}

func numbersOf(rows []GenericRecord, col string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if f, ok := utils.ToFloat(r[col]); ok {
			out = append(out, f)
		}
	}
	return out
}
