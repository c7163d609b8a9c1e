package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go-action-pipeline/internal/model"
	"go-action-pipeline/pkg/utils"
)

// Render prints a result preview as an aligned table, a single value, or a
// short notice when the run produced nothing.
func Render(w io.Writer, preview model.ResultPreview) error {
	switch preview.Kind {
	case "scalar":
		_, err := fmt.Fprintf(w, "%s\n", cell(preview.Scalar))
		return err
	case "dataset", "table":
		return renderTable(w, preview)
	default:
		_, err := fmt.Fprintln(w, "(no result)")
		return err
	}
}

func renderTable(w io.Writer, preview model.ResultPreview) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(preview.Columns, "\t"))
	for _, row := range preview.Rows {
		cells := make([]string, len(preview.Columns))
		for i, c := range preview.Columns {
			cells[i] = cell(row[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if preview.TotalRows > len(preview.Rows) {
		_, err := fmt.Fprintf(w, "... %d of %d rows shown\n", len(preview.Rows), preview.TotalRows)
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", preview.TotalRows)
	return err
}

// RenderSteps prints the per-action trace of a run.
func RenderSteps(w io.Writer, steps []model.StepMetrics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFUNCTION\tSTATUS\tROWS\tDETAIL")
	for _, s := range steps {
		detail := s.Message
		if detail == "" {
			detail = s.ScalarRepr
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d -> %d\t%s\n", s.Index, s.Function, s.Status, s.RowsIn, s.RowsOut, detail)
	}
	return tw.Flush()
}

func cell(v interface{}) string {
	if v == nil {
		return "-"
	}
	return utils.FormatValue(v)
}
