package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go-action-pipeline/pkg/utils"
)

// Operator is a comparison operator of the condition grammar.
type Operator string

const (
	OpEq Operator = "=="
	OpNe Operator = "!="
	OpLt Operator = "<"
	OpLe Operator = "<="
	OpGt Operator = ">"
	OpGe Operator = ">="
)

// two-character operators first so "<=" is never read as "<".
var operators = []Operator{OpEq, OpNe, OpLe, OpGe, OpLt, OpGt}

// Combinator joins the two comparisons of a condition.
type Combinator string

const (
	CombineNone Combinator = ""
	CombineAnd  Combinator = "AND"
	CombineOr   Combinator = "OR"
)

// Comparison is a leaf of the condition tree: "<op> <literal>".
// Literal has surrounding quotes removed.
type Comparison struct {
	Operator Operator
	Literal  string
}

// Condition is at most two comparisons joined by one combinator.
// Right is nil when Combinator is CombineNone.
type Condition struct {
	Left       Comparison
	Combinator Combinator
	Right      *Comparison
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %q", c.Operator, c.Literal)
}

func (c Condition) String() string {
	if c.Right == nil {
		return c.Left.String()
	}
	return fmt.Sprintf("%s %s %s", c.Left, c.Combinator, *c.Right)
}

// ParseCondition parses `comparison ((AND|OR) comparison)?`. Combinators are
// matched case-insensitively, only outside quotes and only as whole words.
func ParseCondition(s string) (Condition, error) {
	splits := findCombinators(s)
	switch len(splits) {
	case 0:
		left, err := parseComparison(s)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Left: left}, nil
	case 1:
		sp := splits[0]
		left, err := parseComparison(s[:sp.start])
		if err != nil {
			return Condition{}, err
		}
		right, err := parseComparison(s[sp.end:])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Left: left, Combinator: sp.comb, Right: &right}, nil
	default:
		return Condition{}, fmt.Errorf("%w: %q has more than one AND/OR", ErrConditionSyntax, s)
	}
}

type combinatorSplit struct {
	start, end int
	comb       Combinator
}

func findCombinators(s string) []combinatorSplit {
	var out []combinatorSplit
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '"' || ch == '\'' {
			quote = ch
			continue
		}
		if !isSpace(ch) {
			continue
		}
		j := i
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		k := j
		for k < len(s) && unicode.IsLetter(rune(s[k])) {
			k++
		}
		if k == j || k >= len(s) || !isSpace(s[k]) {
			i = j - 1
			continue
		}
		word := strings.ToUpper(s[j:k])
		if word == string(CombineAnd) || word == string(CombineOr) {
			out = append(out, combinatorSplit{start: i, end: k, comb: Combinator(word)})
		}
		i = k - 1
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func parseComparison(s string) (Comparison, error) {
	s = strings.TrimSpace(s)
	for _, op := range operators {
		if !strings.HasPrefix(s, string(op)) {
			continue
		}
		lit := strings.Trim(strings.TrimSpace(s[len(op):]), ` "'`)
		if lit == "" {
			return Comparison{}, fmt.Errorf("%w: %q has no value", ErrConditionSyntax, s)
		}
		return Comparison{Operator: op, Literal: lit}, nil
	}
	return Comparison{}, fmt.Errorf("%w: %q does not start with one of == != < <= > >=", ErrConditionSyntax, s)
}

// predicate resolves the literal against column col of d and returns the row
// test. Coercion order: bool token, another column, timestamp (temporal
// columns only), number, string.
func (c Comparison) predicate(d *Dataset, col string) (func(GenericRecord) bool, error) {
	op := c.Operator
	switch c.Literal {
	case "True", "TRUE", "true":
		return literalTest(col, op, true), nil
	case "False", "FALSE", "false":
		return literalTest(col, op, false), nil
	}

	if d.HasColumn(c.Literal) {
		other := c.Literal
		return func(r GenericRecord) bool {
			cmp, ok := compareValues(r[col], r[other])
			return opHolds(op, cmp, ok)
		}, nil
	}

	if d.IsTemporal(col) {
		t, ok := utils.ParseTime(c.Literal)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a timestamp for column %s", ErrConditionSyntax, c.Literal, col)
		}
		return literalTest(col, op, t), nil
	}

	if f, err := strconv.ParseFloat(c.Literal, 64); err == nil {
		return literalTest(col, op, f), nil
	}
	return literalTest(col, op, c.Literal), nil
}

func literalTest(col string, op Operator, lit interface{}) func(GenericRecord) bool {
	return func(r GenericRecord) bool {
		cmp, ok := compareValues(r[col], lit)
		return opHolds(op, cmp, ok)
	}
}

// opHolds applies op to a three-way comparison. Values that cannot be
// compared (missing, or of different kinds) only satisfy "!=".
func opHolds(op Operator, cmp int, comparable bool) bool {
	if !comparable {
		return op == OpNe
	}
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

// compareValues orders two cells of the same kind. Numbers compare
// numerically, timestamps chronologically, strings lexically, false < true.
func compareValues(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmpOrdered(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SelectRows keeps the rows of d whose column satisfies condition. Both sides
// of a combinator are evaluated against d itself: AND keeps rows matching
// both, OR keeps rows matching either, each row at most once, in input order.
func SelectRows(d *Dataset, column, condition string) (*Dataset, error) {
	if err := d.requireColumns(column); err != nil {
		return nil, err
	}
	cond, err := ParseCondition(condition)
	if err != nil {
		return nil, err
	}
	left, err := cond.Left.predicate(d, column)
	if err != nil {
		return nil, err
	}
	match := left
	if cond.Right != nil {
		right, err := cond.Right.predicate(d, column)
		if err != nil {
			return nil, err
		}
		if cond.Combinator == CombineAnd {
			match = func(r GenericRecord) bool { return left(r) && right(r) }
		} else {
			match = func(r GenericRecord) bool { return left(r) || right(r) }
		}
	}

	rows := make([]GenericRecord, 0, len(d.rows))
	for _, r := range d.rows {
		if match(r) {
			rows = append(rows, r)
		}
	}
	return d.derive(rows), nil
}
