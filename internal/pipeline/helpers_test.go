package pipeline

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-action-pipeline/internal/model"
)

const jobsFixture = "testdata/jobs.csv"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadJobs loads the eight-row jobs fixture.
func loadJobs(t *testing.T) *Dataset {
	t.Helper()
	d, err := NewLoader(model.Source{Type: "csv", Path: jobsFixture}, discardLogger()).Load()
	require.NoError(t, err)
	require.Equal(t, 8, d.Len())
	return d
}

// jobIDs lists the Job_ID column of d in row order.
func jobIDs(d *Dataset) []string {
	out := make([]string, d.Len())
	for i := range out {
		out[i], _ = d.Value(i, "Job_ID").(string)
	}
	return out
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustPlan(t *testing.T, payload string) model.ActionPlan {
	t.Helper()
	plan, err := ParsePlan([]byte(payload))
	require.NoError(t, err)
	return plan
}
