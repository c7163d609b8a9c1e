package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in    string
		left  Comparison
		comb  Combinator
		right *Comparison
	}{
		{in: "<= 50", left: Comparison{OpLe, "50"}},
		{in: "  >=50  ", left: Comparison{OpGe, "50"}},
		{in: `== "Low Efficiency"`, left: Comparison{OpEq, "Low Efficiency"}},
		{in: "!= 'a and b'", left: Comparison{OpNe, "a and b"}},
		{in: ">= 50 AND <= 120", left: Comparison{OpGe, "50"}, comb: CombineAnd, right: &Comparison{OpLe, "120"}},
		{in: "> 1 or < 0", left: Comparison{OpGt, "1"}, comb: CombineOr, right: &Comparison{OpLt, "0"}},
		{in: "< 2023-03-18 10:00", left: Comparison{OpLt, "2023-03-18 10:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCondition(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.left, c.Left)
			assert.Equal(t, tt.comb, c.Combinator)
			assert.Equal(t, tt.right, c.Right)
		})
	}
}

func TestParseCondition_SyntaxErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"50",
		"=> 5",
		"==",
		"> 1 AND  ",
		"> 1 AND < 5 OR > 10",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseCondition(in)
			assert.ErrorIs(t, err, ErrConditionSyntax)
		})
	}
}

func TestSelectRows_Coercion(t *testing.T) {
	jobs := loadJobs(t)

	tests := []struct {
		name      string
		column    string
		condition string
		want      []string
	}{
		{"numeric", "Processing_Time", "<= 50", []string{"J001", "J003", "J004", "J006", "J008"}},
		{"string", "Job_Status", `== "Failed"`, []string{"J003", "J005", "J007"}},
		{"string not equal", "Job_Status", "!= Failed", []string{"J001", "J002", "J004", "J006", "J008"}},
		{"column to column", "Processing_Time", "< Machine_Availability", []string{"J001", "J002", "J003", "J004", "J006", "J007", "J008"}},
		{"date assumes midnight", "Actual_Start", ">= 2023-03-19", []string{"J006", "J007", "J008"}},
		{"timestamp", "Actual_Start", "< 2023-03-18 10:00", []string{"J001", "J002"}},
		{"missing only matches not equal", "Actual_End", "!= 2023-03-18 09:02", []string{"J002", "J003", "J004", "J005", "J006", "J007", "J008"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := SelectRows(jobs, tt.column, tt.condition)
			require.NoError(t, err)
			assert.Equal(t, tt.want, jobIDs(out))
		})
	}
}

func TestSelectRows_BoolLiteral(t *testing.T) {
	d := NewDataset([]string{"id", "active"}, []GenericRecord{
		{"id": "a", "active": true},
		{"id": "b", "active": false},
		{"id": "c", "active": nil},
		{"id": "d", "active": true},
	})

	out, err := SelectRows(d, "active", "== True")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "d"}, out.Column("id"))

	out, err = SelectRows(d, "active", "< True")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"b"}, out.Column("id"))
}

func TestSelectRows_BadTimestamp(t *testing.T) {
	_, err := SelectRows(loadJobs(t), "Actual_Start", "> yesterday")
	assert.ErrorIs(t, err, ErrConditionSyntax)
}

func TestSelectRows_UnknownColumn(t *testing.T) {
	_, err := SelectRows(loadJobs(t), "Nope", "> 1")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestSelectRows_AndOrAreSetOperations(t *testing.T) {
	jobs := loadJobs(t)
	c1, c2 := ">= 40", "<= 55"

	r1, err := SelectRows(jobs, "Processing_Time", c1)
	require.NoError(t, err)
	r2, err := SelectRows(jobs, "Processing_Time", c2)
	require.NoError(t, err)
	in1 := toSet(jobIDs(r1))
	in2 := toSet(jobIDs(r2))

	var wantAnd, wantOr []string
	for _, id := range jobIDs(jobs) {
		if in1[id] && in2[id] {
			wantAnd = append(wantAnd, id)
		}
		if in1[id] || in2[id] {
			wantOr = append(wantOr, id)
		}
	}

	and, err := SelectRows(jobs, "Processing_Time", c1+" AND "+c2)
	require.NoError(t, err)
	assert.Equal(t, wantAnd, jobIDs(and))
	assert.Equal(t, []string{"J001", "J004", "J006", "J007"}, jobIDs(and))

	or, err := SelectRows(jobs, "Processing_Time", c1+" OR "+c2)
	require.NoError(t, err)
	assert.Equal(t, wantOr, jobIDs(or))
	assert.Len(t, toSet(jobIDs(or)), or.Len(), "union must not repeat rows")
}

func TestSelectRows_Idempotent(t *testing.T) {
	jobs := loadJobs(t)
	for _, cond := range []string{"<= 50", "> 40 AND < 60", "< 35 OR > 55"} {
		once, err := SelectRows(jobs, "Processing_Time", cond)
		require.NoError(t, err)
		twice, err := SelectRows(once, "Processing_Time", cond)
		require.NoError(t, err)
		assert.True(t, once.Equal(twice), cond)
	}
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
