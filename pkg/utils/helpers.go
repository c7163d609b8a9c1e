package utils

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TimeLayouts are the timestamp formats accepted for temporal cells and literals,
// tried in order.
var TimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseDuration safely parses duration string like "15s"
func ParseDuration(d string, fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return fallback
	}
	return duration
}

// ParseValue converts a raw CSV cell into nil, bool, float64 or string.
func ParseValue(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	switch s {
	case "True", "TRUE", "true":
		return true
	case "False", "FALSE", "false":
		return false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
		return f
	}
	return s
}

// ParseTime parses s with the first matching layout of TimeLayouts.
// A date without a time of day resolves to midnight.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToTime reads v as a timestamp, parsing strings when needed.
func ToTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return ParseTime(val)
	default:
		return time.Time{}, false
	}
}

// ToFloat safely converts supported types to float64. Strings are parsed,
// bools map to 1/0, anything else (including NaN) reports false.
func ToFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), !math.IsNaN(float64(val))
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Float64 {
			return rv.Convert(reflect.TypeOf(float64(0))).Float(), true
		}
		return 0, false
	}
}

// FormatValue renders a cell for display and CSV export.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(val) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
