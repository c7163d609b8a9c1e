package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-action-pipeline/internal/model"
	"go-action-pipeline/pkg/utils"
)

// ExportOutcome writes the final result of a run to path. The format follows
// the extension: .json writes JSON, anything else CSV. A scalar value is
// written as a single "value" column; a per-group table like a dataset.
func ExportOutcome(o *Outcome, path string) model.ExportResult {
	columns, rows := exportRows(o)

	var err error
	kind := "csv"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		kind = "json"
		err = exportToJSON(path, o.RunID, columns, rows)
	} else {
		err = exportToCSV(path, columns, rows)
	}

	result := model.ExportResult{
		Type:        kind,
		Path:        path,
		RecordCount: len(rows),
		Success:     err == nil,
		Timestamp:   time.Now(),
	}
	if err != nil {
		result.RecordCount = 0
		result.Error = err.Error()
	}
	return result
}

// exportRows flattens the outcome into columns and rows.
func exportRows(o *Outcome) ([]string, []GenericRecord) {
	if d, ok := o.Dataset(); ok {
		return d.Columns(), d.rows
	}
	if s, ok := o.Scalar(); ok {
		if s.IsTable() {
			return s.Table.Columns(), s.Table.rows
		}
		return []string{"value"}, []GenericRecord{{"value": s.Value}}
	}
	return nil, nil
}

// exportToCSV exports rows to CSV format
func exportToCSV(path string, columns []string, rows []GenericRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		record := make([]string, len(columns))
		for i, c := range columns {
			record[i] = utils.FormatValue(r[c])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// exportToJSON exports rows to JSON format along with export metadata
func exportToJSON(path, runID string, columns []string, rows []GenericRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	data := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		row := make(map[string]interface{}, len(columns))
		for _, c := range columns {
			v := r[c]
			if t, ok := v.(time.Time); ok {
				v = utils.FormatValue(t)
			}
			row[c] = v
		}
		data[i] = row
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	payload := map[string]interface{}{
		"export_info": map[string]interface{}{
			"run_id":       runID,
			"exported_at":  time.Now().UTC(),
			"record_count": len(rows),
			"columns":      columns,
		},
		"data": data,
	}
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
