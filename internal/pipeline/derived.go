package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"go-action-pipeline/pkg/utils"
)

// LastScalarPlaceholder is replaced by the most recent scalar in derived-column formulas.
const LastScalarPlaceholder = "{last_scalar}"

var columnDifference = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*-\s*([A-Za-z_][A-Za-z0-9_]*)\s*$`)

// AddDerivedColumn evaluates formula for every row of d and stores the result
// in column name. "A - B" over timestamp columns yields seconds; anything else
// is an expression over the row's columns. A row whose expression cannot be
// evaluated (for instance a missing operand) gets a missing value.
func AddDerivedColumn(d *Dataset, name, formula string) (*Dataset, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: derived column needs a name", ErrInvalidArgument)
	}
	if strings.Contains(formula, LastScalarPlaceholder) {
		return nil, fmt.Errorf("%w: formula %q", ErrPlaceholderUnresolved, formula)
	}

	if m := columnDifference.FindStringSubmatch(formula); m != nil {
		lhs, rhs := m[1], m[2]
		if d.HasColumn(lhs) && d.HasColumn(rhs) && (d.IsTemporal(lhs) || d.IsTemporal(rhs)) {
			return d.withColumn(name, secondsBetween(d, lhs, rhs)), nil
		}
	}

	program, err := expr.Compile(formula, expr.Env(sampleEnv(d)))
	if err != nil {
		return nil, fmt.Errorf("%w: formula %q: %v", ErrInvalidArgument, formula, err)
	}

	values := make([]interface{}, d.Len())
	for i, r := range d.rows {
		env := make(map[string]interface{}, len(d.columns))
		for _, c := range d.columns {
			env[c] = r[c]
		}
		out, err := expr.Run(program, env)
		if err != nil {
			continue
		}
		values[i] = normalizeResult(out)
	}
	return d.withColumn(name, values), nil
}

// secondsBetween returns end-start in seconds per row, missing where either side is not a timestamp.
func secondsBetween(d *Dataset, end, start string) []interface{} {
	values := make([]interface{}, d.Len())
	for i, r := range d.rows {
		e, ok1 := utils.ToTime(r[end])
		s, ok2 := utils.ToTime(r[start])
		if ok1 && ok2 {
			values[i] = e.Sub(s).Seconds()
		}
	}
	return values
}

// sampleEnv types every column by its first present value so the expression
// can be checked once before it runs on each row.
func sampleEnv(d *Dataset) map[string]interface{} {
	env := make(map[string]interface{}, len(d.columns))
	for _, c := range d.columns {
		env[c] = float64(0)
		for _, r := range d.rows {
			if v := r[c]; v != nil {
				env[c] = v
				break
			}
		}
	}
	return env
}

func normalizeResult(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case time.Duration:
		return val.Seconds()
	case string, bool, time.Time:
		return val
	}
	if f, ok := utils.ToFloat(v); ok {
		return normalizeResult(f)
	}
	return fmt.Sprintf("%v", v)
}
