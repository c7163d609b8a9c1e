package pipeline

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"go-action-pipeline/pkg/utils"
)

// Reductions over a list of numbers. An empty (or too short) input yields
// NaN; callers turn NaN into a missing value.

func meanOf(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

func sumOf(x []float64) float64 {
	return floats.Sum(x)
}

func minOf(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return floats.Min(x)
}

func maxOf(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return floats.Max(x)
}

// varianceOf is the sample variance (n-1 denominator).
func varianceOf(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Variance(x, nil)
}

func stdOf(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.StdDev(x, nil)
}

// quantileOf interpolates linearly between the two closest ranks, so the
// median of an even-sized sample is the mean of its middle values.
func quantileOf(x []float64, q float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func covarianceOf(x, y []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Covariance(x, y, nil)
}

func correlationOf(x, y []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// pairedNumbers returns the values of two columns over rows where both are numeric.
func pairedNumbers(rows []GenericRecord, xCol, yCol string) ([]float64, []float64) {
	xs := make([]float64, 0, len(rows))
	ys := make([]float64, 0, len(rows))
	for _, r := range rows {
		x, ok1 := utils.ToFloat(r[xCol])
		y, ok2 := utils.ToFloat(r[yCol])
		if ok1 && ok2 {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys
}

// modeOf returns the most frequent present value; ties go to the smallest.
func modeOf(values []interface{}) interface{} {
	counts := make(map[interface{}]int)
	var distinct []interface{}
	for _, v := range values {
		if v == nil {
			continue
		}
		if counts[v] == 0 {
			distinct = append(distinct, v)
		}
		counts[v]++
	}
	var best interface{}
	for _, v := range distinct {
		if best == nil || counts[v] > counts[best] ||
			(counts[v] == counts[best] && sortCompare(v, best, false) < 0) {
			best = v
		}
	}
	return best
}

// scalarValue drops NaN so that no reduction ever stores it.
func scalarValue(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
