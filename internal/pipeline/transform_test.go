package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortRows(t *testing.T) {
	jobs := loadJobs(t)

	tests := []struct {
		name   string
		column string
		order  string
		want   []string
	}{
		{"numeric desc", "Machine_Availability", "desc", []string{"J008", "J003", "J001", "J006", "J002", "J007", "J004", "J005"}},
		{"stable on ties", "Machine_ID", "asc", []string{"J001", "J002", "J007", "J003", "J004", "J008", "J005", "J006"}},
		{"default asc, missing last", "Actual_End", "", []string{"J001", "J002", "J004", "J006", "J008", "J003", "J005", "J007"}},
		{"missing last when desc", "Actual_End", "DESC", []string{"J008", "J006", "J004", "J002", "J001", "J003", "J005", "J007"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := SortRows(jobs, tt.column, tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, jobIDs(out))
		})
	}
}

func TestSortRows_InvalidOrder(t *testing.T) {
	_, err := SortRows(loadJobs(t), "Processing_Time", "sideways")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTopN_MatchesSortPrefix(t *testing.T) {
	jobs := loadJobs(t)
	sorted, err := SortRows(jobs, "Processing_Time", "desc")
	require.NoError(t, err)

	for n := 0; n <= jobs.Len(); n++ {
		top, err := TopN(jobs, "Processing_Time", "desc", n)
		require.NoError(t, err)
		assert.True(t, top.Equal(sorted.Head(n)), "n=%d", n)
	}

	top, err := TopN(jobs, "Processing_Time", "desc", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"J005", "J002", "J007"}, jobIDs(top))
}

func TestGroupTopN(t *testing.T) {
	jobs := loadJobs(t)

	out, err := GroupTopN(jobs, "Machine_ID", "Processing_Time", "desc", 1, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"J005", "J002", "J004"}, jobIDs(out))
	assert.Equal(t, jobs.Columns(), out.Columns())

	out, err = GroupTopN(jobs, "Machine_ID", "Processing_Time", "asc", 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"J003", "J008", "J006", "J001", "J007", "J005"}, jobIDs(out))
}

func TestGroupTopN_KeepsIdentifiersWithoutKeepAll(t *testing.T) {
	out, err := GroupTopN(loadJobs(t), "Machine_ID", "Processing_Time", "desc", 1, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Job_ID", "Machine_ID", "Processing_Time"}, out.Columns())
	assert.Equal(t, []string{"J005", "J002", "J004"}, jobIDs(out))
	_, hasStatus := out.Row(0)["Job_Status"]
	assert.False(t, hasStatus)
}

func TestFilterDateRange(t *testing.T) {
	jobs := loadJobs(t)

	tests := []struct {
		name       string
		start, end string
		inclusive  string
		want       []string
	}{
		{"both", "2023-03-18 10:00", "2023-03-19 09:00", "both", []string{"J003", "J004", "J006"}},
		{"neither", "2023-03-18 10:00", "2023-03-19 09:00", "neither", []string{"J003", "J004"}},
		{"left", "2023-03-18 09:00", "2023-03-18 11:00", "left", []string{"J002", "J003"}},
		{"right", "2023-03-18 09:00", "2023-03-18 11:00", "right", []string{"J003", "J004"}},
		{"open end", "2023-03-19", "", "", []string{"J006", "J007", "J008"}},
		{"no bounds", "", "", "both", []string{"J001", "J002", "J003", "J004", "J005", "J006", "J007", "J008"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := FilterDateRange(jobs, "Actual_Start", tt.start, tt.end, tt.inclusive)
			require.NoError(t, err)
			assert.Equal(t, tt.want, jobIDs(out))
		})
	}
}

func TestFilterDateRange_InvalidArguments(t *testing.T) {
	jobs := loadJobs(t)
	_, err := FilterDateRange(jobs, "Actual_Start", "soon", "", "both")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = FilterDateRange(jobs, "Actual_Start", "2023-03-18", "", "sometimes")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRollingAverage(t *testing.T) {
	jobs := loadJobs(t)

	out, err := RollingAverage(jobs, "Processing_Time", 2, "")
	require.NoError(t, err)
	assert.Equal(t, append(jobs.Columns(), "rolling_avg_Processing_Time"), out.Columns())
	assert.Equal(t,
		[]interface{}{45.0, 52.5, 45.0, 40.0, 65.0, 60.0, 47.5, 45.0},
		out.Column("rolling_avg_Processing_Time"))
	assert.False(t, jobs.HasColumn("rolling_avg_Processing_Time"), "input must not change")
}

func TestRollingAverage_Grouped(t *testing.T) {
	jobs := loadJobs(t)

	out, err := RollingAverage(jobs, "Processing_Time", 2, "Machine_ID")
	require.NoError(t, err)

	assert.Equal(t, []string{"J001", "J002", "J007", "J003", "J004", "J008", "J005", "J006"}, jobIDs(out))
	assert.Equal(t,
		[]interface{}{0.0, 1.0, 6.0, 2.0, 3.0, 7.0, 4.0, 5.0},
		out.Column("row_idx"))
	assert.Equal(t,
		[]interface{}{45.0, 52.5, 57.5, 30.0, 40.0, 42.5, 80.0, 60.0},
		out.Column("rolling_avg_Processing_Time"))
	for _, c := range jobs.Columns() {
		assert.True(t, out.HasColumn(c), c)
	}
}

func TestRollingAverage_InvalidWindow(t *testing.T) {
	_, err := RollingAverage(loadJobs(t), "Processing_Time", 0, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
