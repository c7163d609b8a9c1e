package model

import "time"

// ResultPreview is a bounded, render-ready view of a run's final output
type ResultPreview struct {
	Kind      string                   `json:"kind"` // "dataset", "scalar", "table", "none"
	Columns   []string                 `json:"columns,omitempty"`
	Rows      []map[string]interface{} `json:"rows,omitempty"`
	TotalRows int                      `json:"total_rows"`
	Scalar    interface{}              `json:"scalar,omitempty"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "csv", "json"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
