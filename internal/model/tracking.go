package model

import "time"

// Step statuses recorded for every action of a run
const (
	StepExecuted = "executed"
	StepSkipped  = "skipped"
	StepFailed   = "failed"
)

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// StepMetrics records what happened to one action of a run
type StepMetrics struct {
	Index      int                    `json:"index"`
	Function   string                 `json:"function"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Category   string                 `json:"category"` // "transform", "reduce", "unknown"
	Status     string                 `json:"status"`
	Message    string                 `json:"message,omitempty"`
	RowsIn     int                    `json:"rows_in"`
	RowsOut    int                    `json:"rows_out"`
	StartTime  time.Time              `json:"start_time"`
	Duration   time.Duration          `json:"duration"`
	ScalarRepr string                 `json:"scalar,omitempty"`
}

// RunMetrics represents overall run metrics
type RunMetrics struct {
	RunID         string        `json:"run_id"`
	Status        string        `json:"status"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	Duration      time.Duration `json:"duration"`
	TotalActions  int           `json:"total_actions"`
	Executed      int           `json:"executed"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Steps         []StepMetrics `json:"steps"`
	Errors        []ErrorDetail `json:"errors,omitempty"`
	BaselineRows  int           `json:"baseline_rows"`
	FinalRowCount int           `json:"final_row_count"`
}

// ErrorDetail represents a detailed error with context
type ErrorDetail struct {
	Index     int                    `json:"index"`
	Function  string                 `json:"function,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`
	ErrorType string                 `json:"error_type"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity"` // "warning", "fatal"
	Timestamp time.Time              `json:"timestamp"`
}
