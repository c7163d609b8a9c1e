package pipeline

import (
	"fmt"
	"reflect"
	"time"

	"go-action-pipeline/pkg/utils"
)

// GenericRecord is one row of a dataset keyed by column name.
// Values are string, float64, bool, time.Time or nil for a missing cell.
type GenericRecord map[string]interface{}

// clone returns a shallow copy of the record.
func (r GenericRecord) clone() GenericRecord {
	out := make(GenericRecord, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Dataset is an ordered, immutable table. Every transform returns a new
// Dataset; records are never written after the dataset that owns them is built,
// so two datasets may share record maps safely.
type Dataset struct {
	columns  []string
	rows     []GenericRecord
	temporal map[string]bool
}

// NewDataset builds a dataset from the given columns and rows. The rows are
// copied. A column is temporal when its first non-missing value is a time.Time.
func NewDataset(columns []string, rows []GenericRecord) *Dataset {
	d := &Dataset{
		columns:  append([]string(nil), columns...),
		rows:     make([]GenericRecord, len(rows)),
		temporal: make(map[string]bool),
	}
	for i, r := range rows {
		d.rows[i] = r.clone()
	}
	for _, c := range d.columns {
		for _, r := range d.rows {
			if v := r[c]; v != nil {
				_, isTime := v.(time.Time)
				d.temporal[c] = isTime
				break
			}
		}
	}
	return d
}

// derive builds a dataset with the same schema over a different row set.
func (d *Dataset) derive(rows []GenericRecord) *Dataset {
	return &Dataset{columns: d.columns, rows: rows, temporal: d.temporal}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Columns returns a copy of the ordered column list.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// HasColumn reports whether col is part of the schema.
func (d *Dataset) HasColumn(col string) bool {
	for _, c := range d.columns {
		if c == col {
			return true
		}
	}
	return false
}

// IsTemporal reports whether col holds timestamps.
func (d *Dataset) IsTemporal(col string) bool {
	return d.temporal[col]
}

// Value returns the cell at row i, column col.
func (d *Dataset) Value(i int, col string) interface{} {
	return d.rows[i][col]
}

// Row returns a copy of row i.
func (d *Dataset) Row(i int) GenericRecord {
	return d.rows[i].clone()
}

// Rows returns copies of every row, in order.
func (d *Dataset) Rows() []GenericRecord {
	out := make([]GenericRecord, len(d.rows))
	for i, r := range d.rows {
		out[i] = r.clone()
	}
	return out
}

// Column returns the values of col in row order.
func (d *Dataset) Column(col string) []interface{} {
	out := make([]interface{}, len(d.rows))
	for i, r := range d.rows {
		out[i] = r[col]
	}
	return out
}

// Head returns the first n rows as a new dataset.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > len(d.rows) {
		n = len(d.rows)
	}
	return d.derive(d.rows[:n:n])
}

// Equal reports whether both datasets have the same columns and cell values.
func (d *Dataset) Equal(other *Dataset) bool {
	if d == nil || other == nil {
		return d == other
	}
	if !reflect.DeepEqual(d.columns, other.columns) || len(d.rows) != len(other.rows) {
		return false
	}
	for i := range d.rows {
		for _, c := range d.columns {
			if !cellEqual(d.rows[i][c], other.rows[i][c]) {
				return false
			}
		}
	}
	return true
}

// requireColumns returns ErrColumnNotFound for the first column missing from d.
func (d *Dataset) requireColumns(cols ...string) error {
	for _, c := range cols {
		if !d.HasColumn(c) {
			return fmt.Errorf("%w: %q", ErrColumnNotFound, c)
		}
	}
	return nil
}

// withColumn returns a dataset with col set to values, appending the column
// when it is new. Rows are cloned.
func (d *Dataset) withColumn(col string, values []interface{}) *Dataset {
	columns := d.columns
	if !d.HasColumn(col) {
		columns = append(append([]string(nil), d.columns...), col)
	}
	rows := make([]GenericRecord, len(d.rows))
	for i, r := range d.rows {
		nr := r.clone()
		nr[col] = values[i]
		rows[i] = nr
	}
	out := &Dataset{columns: columns, rows: rows, temporal: make(map[string]bool, len(d.temporal)+1)}
	for k, v := range d.temporal {
		out.temporal[k] = v
	}
	out.temporal[col] = false
	for _, v := range values {
		if v != nil {
			_, out.temporal[col] = v.(time.Time)
			break
		}
	}
	return out
}

// project keeps only the given columns, in the given order.
func (d *Dataset) project(cols []string) *Dataset {
	rows := make([]GenericRecord, len(d.rows))
	for i, r := range d.rows {
		nr := make(GenericRecord, len(cols))
		for _, c := range cols {
			nr[c] = r[c]
		}
		rows[i] = nr
	}
	return &Dataset{columns: append([]string(nil), cols...), rows: rows, temporal: d.temporal}
}

// numbers returns the numeric values of col, skipping anything that is not a number.
func (d *Dataset) numbers(col string) []float64 {
	out := make([]float64, 0, len(d.rows))
	for _, r := range d.rows {
		if f, ok := utils.ToFloat(r[col]); ok {
			out = append(out, f)
		}
	}
	return out
}

func cellEqual(a, b interface{}) bool {
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)
	if aok || bok {
		return aok && bok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
