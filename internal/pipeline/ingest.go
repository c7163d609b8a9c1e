package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"go-action-pipeline/internal/model"
	"go-action-pipeline/pkg/utils"
)

// SourceColumns is the schema of the manufacturing jobs table.
var SourceColumns = []string{
	"Job_ID", "Machine_ID", "Operation_Type", "Material_Used", "Processing_Time",
	"Energy_Consumption", "Machine_Availability", "Scheduled_Start", "Scheduled_End",
	"Actual_Start", "Actual_End", "Job_Status", "Optimization_Category",
}

// DefaultTimeColumns are parsed as timestamps on load.
var DefaultTimeColumns = []string{"Scheduled_Start", "Scheduled_End", "Actual_Start", "Actual_End"}

// ------------------- Ingestion -------------------

// Loader reads the baseline dataset from a tabular source.
type Loader struct {
	source model.Source
	logger *slog.Logger
}

// NewLoader creates a loader for source. An empty TimeColumns list means DefaultTimeColumns.
func NewLoader(source model.Source, logger *slog.Logger) *Loader {
	if source.TimeColumns == nil {
		source.TimeColumns = DefaultTimeColumns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, logger: logger}
}

// Load reads the source into a fresh dataset. Each call returns an
// independent copy.
func (l *Loader) Load() (*Dataset, error) {
	switch strings.ToLower(l.source.Type) {
	case "", "csv":
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", ErrSourceInvalid, l.source.Type)
	}

	file, err := os.Open(l.source.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, l.source.Path)
		}
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	d, err := ParseCSV(file, l.source.TimeColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.source.Path, err)
	}
	if err := validateDataset(d, l.source.Validation); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceInvalid, l.source.Path, err)
	}

	l.logger.Info("dataset loaded", "path", l.source.Path, "rows", d.Len(), "columns", len(d.columns))
	return d, nil
}

// ParseCSV reads a CSV table with a header row. Cells of timeColumns become
// timestamps (missing when unparseable); other cells become nil, bool,
// float64 or string.
func ParseCSV(r io.Reader, timeColumns []string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrSourceInvalid)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		// Clean header names: trim whitespace, BOM and quotes
		h = strings.TrimPrefix(h, "\ufeff")
		columns[i] = strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
	}

	isTime := make(map[string]bool, len(timeColumns))
	for _, c := range timeColumns {
		isTime[c] = true
	}

	var rows []GenericRecord
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSV read error on line %d: %w", line, err)
		}
		rec := make(GenericRecord, len(columns))
		for i, c := range columns {
			var cell string
			if i < len(record) {
				cell = record[i]
			}
			if isTime[c] {
				if t, ok := utils.ParseTime(cell); ok {
					rec[c] = t
				} else {
					rec[c] = nil
				}
				continue
			}
			rec[c] = utils.ParseValue(cell)
		}
		rows = append(rows, rec)
	}

	d := &Dataset{columns: columns, rows: rows, temporal: make(map[string]bool)}
	for _, c := range columns {
		d.temporal[c] = isTime[c]
	}
	return d, nil
}
