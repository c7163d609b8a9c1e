package pipeline

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"go-action-pipeline/pkg/utils"
)

// IdentifierColumns are carried along by group_top_n even when keep_all is off.
var IdentifierColumns = []string{"Job_ID", "Machine_ID"}

// ------------------- Ordering -------------------

func parseOrder(order, fallback string) (bool, error) {
	if order == "" {
		order = fallback
	}
	switch strings.ToLower(order) {
	case "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, fmt.Errorf("%w: order must be asc or desc, got %q", ErrInvalidArgument, order)
	}
}

// kindRank gives cells of different kinds a fixed relative order so sorting
// a mixed column is still deterministic.
func kindRank(v interface{}) int {
	switch v.(type) {
	case bool:
		return 0
	case float64:
		return 1
	case time.Time:
		return 2
	case string:
		return 3
	}
	return 4
}

// sortCompare orders two cells ascending or descending; missing values are
// placed last in both directions.
func sortCompare(a, b interface{}, desc bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	cmp, ok := compareValues(a, b)
	if !ok {
		cmp = kindRank(a) - kindRank(b)
	}
	if desc {
		return -cmp
	}
	return cmp
}

func (d *Dataset) sortedBy(col string, desc bool) *Dataset {
	rows := slices.Clone(d.rows)
	slices.SortStableFunc(rows, func(a, b GenericRecord) int {
		return sortCompare(a[col], b[col], desc)
	})
	return d.derive(rows)
}

// SortRows stably sorts d by column.
func SortRows(d *Dataset, column, order string) (*Dataset, error) {
	if err := d.requireColumns(column); err != nil {
		return nil, err
	}
	desc, err := parseOrder(order, "asc")
	if err != nil {
		return nil, err
	}
	return d.sortedBy(column, desc), nil
}

// TopN sorts d by column and keeps the first n rows.
func TopN(d *Dataset, column, order string, n int) (*Dataset, error) {
	if err := d.requireColumns(column); err != nil {
		return nil, err
	}
	desc, err := parseOrder(order, "desc")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: n must not be negative, got %d", ErrInvalidArgument, n)
	}
	return d.sortedBy(column, desc).Head(n), nil
}

// GroupTopN keeps, within each group, the first n rows after sorting by
// sortColumn. Rows with a missing group key belong to no group and are
// dropped. Without keepAll only the identifier, group and sort columns remain.
func GroupTopN(d *Dataset, groupColumn, sortColumn, order string, n int, keepAll bool) (*Dataset, error) {
	if err := d.requireColumns(groupColumn, sortColumn); err != nil {
		return nil, err
	}
	desc, err := parseOrder(order, "desc")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: n must not be negative, got %d", ErrInvalidArgument, n)
	}

	sorted := d.sortedBy(sortColumn, desc)
	seen := make(map[interface{}]int)
	rows := make([]GenericRecord, 0, len(sorted.rows))
	for _, r := range sorted.rows {
		key := r[groupColumn]
		if key == nil || seen[key] >= n {
			continue
		}
		seen[key]++
		rows = append(rows, r)
	}
	out := d.derive(rows)
	if keepAll {
		return out, nil
	}

	var cols []string
	for _, c := range append(slices.Clone(IdentifierColumns), groupColumn, sortColumn) {
		if d.HasColumn(c) && !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	return out.project(cols), nil
}

// ------------------- Date Range -------------------

// FilterDateRange keeps rows whose column falls between start and end.
// Either bound may be empty. inclusive is one of both, left, right, neither.
func FilterDateRange(d *Dataset, column, start, end, inclusive string) (*Dataset, error) {
	if err := d.requireColumns(column); err != nil {
		return nil, err
	}
	if inclusive == "" {
		inclusive = "both"
	}
	var incLeft, incRight bool
	switch strings.ToLower(inclusive) {
	case "both":
		incLeft, incRight = true, true
	case "left":
		incLeft = true
	case "right":
		incRight = true
	case "neither":
	default:
		return nil, fmt.Errorf("%w: inclusive must be both, left, right or neither, got %q", ErrInvalidArgument, inclusive)
	}

	lo, hasLo, err := parseBound(start)
	if err != nil {
		return nil, err
	}
	hi, hasHi, err := parseBound(end)
	if err != nil {
		return nil, err
	}
	if !hasLo && !hasHi {
		return d.derive(slices.Clone(d.rows)), nil
	}

	rows := make([]GenericRecord, 0, len(d.rows))
	for _, r := range d.rows {
		t, ok := utils.ToTime(r[column])
		if !ok {
			continue
		}
		if hasLo && (t.Before(lo) || (!incLeft && t.Equal(lo))) {
			continue
		}
		if hasHi && (t.After(hi) || (!incRight && t.Equal(hi))) {
			continue
		}
		rows = append(rows, r)
	}
	return d.derive(rows), nil
}

func parseBound(s string) (time.Time, bool, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, false, nil
	}
	t, ok := utils.ParseTime(s)
	if !ok {
		return time.Time{}, false, fmt.Errorf("%w: %q is not a timestamp", ErrInvalidArgument, s)
	}
	return t, true, nil
}

// ------------------- Rolling Average -------------------

// RollingAverage adds rolling_avg_<column>: the mean of the last window
// numeric values, over however many are available (min_periods=1).
// With groupBy the window runs within each group; rows are then stably
// ordered by group and row_idx records each row's position in d.
func RollingAverage(d *Dataset, column string, window int, groupBy string) (*Dataset, error) {
	if err := d.requireColumns(column); err != nil {
		return nil, err
	}
	if window < 1 {
		return nil, fmt.Errorf("%w: window must be at least 1, got %d", ErrInvalidArgument, window)
	}
	outCol := "rolling_avg_" + column

	if groupBy == "" {
		return d.withColumn(outCol, rollingMeans(d.Column(column), window)), nil
	}
	if err := d.requireColumns(groupBy); err != nil {
		return nil, err
	}

	type indexed struct {
		idx int
		row GenericRecord
	}
	var rows []indexed
	for i, r := range d.rows {
		if r[groupBy] != nil {
			rows = append(rows, indexed{i, r})
		}
	}
	slices.SortStableFunc(rows, func(a, b indexed) int {
		return sortCompare(a.row[groupBy], b.row[groupBy], false)
	})

	means := make([]interface{}, len(rows))
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && sortCompare(rows[end].row[groupBy], rows[start].row[groupBy], false) == 0 {
			end++
		}
		values := make([]interface{}, 0, end-start)
		for _, ir := range rows[start:end] {
			values = append(values, ir.row[column])
		}
		copy(means[start:end], rollingMeans(values, window))
		start = end
	}

	columns := d.Columns()
	for _, c := range []string{"row_idx", outCol} {
		if !slices.Contains(columns, c) {
			columns = append(columns, c)
		}
	}
	out := make([]GenericRecord, len(rows))
	for i, ir := range rows {
		nr := ir.row.clone()
		nr["row_idx"] = float64(ir.idx)
		nr[outCol] = means[i]
		out[i] = nr
	}
	return NewDataset(columns, out), nil
}

func rollingMeans(values []interface{}, window int) []interface{} {
	out := make([]interface{}, len(values))
	for i := range values {
		var sum float64
		var count int
		for j := max(0, i-window+1); j <= i; j++ {
			if f, ok := utils.ToFloat(values[j]); ok {
				sum += f
				count++
			}
		}
		if count > 0 {
			out[i] = sum / float64(count)
		}
	}
	return out
}
