package model

// Action is one named operation emitted by the planner.
type Action struct {
	Function string                 `json:"function" yaml:"function"`
	Args     map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`
}

// ActionPlan is the planner payload: an ordered list of actions.
type ActionPlan struct {
	Actions []Action `json:"actions" yaml:"actions"`
}

// ValidationRules defines requirements a loaded source must meet
type ValidationRules struct {
	RequiredFields []string `json:"requiredFields" yaml:"required_fields" mapstructure:"required_fields"` // columns that must be present
	NumericFields  []string `json:"numericFields" yaml:"numeric_fields" mapstructure:"numeric_fields"`    // columns whose non-empty cells must be numeric
}

// Source describes the tabular file backing the baseline dataset
type Source struct {
	Type        string           `json:"type"` // csv
	Path        string           `json:"path"`
	TimeColumns []string         `json:"timeColumns"`
	Validation  *ValidationRules `json:"validation,omitempty"`
}

// Export defines where the final result of a run is written
type Export struct {
	File string `json:"file" yaml:"file"` // e.g., result.csv, result.json
}

// RunSpec is the body of POST /api/v1/runs: the action plan plus output options
type RunSpec struct {
	Actions     []Action `json:"actions" yaml:"actions"`
	Export      *Export  `json:"export,omitempty" yaml:"export,omitempty"`
	PreviewRows int      `json:"preview_rows,omitempty" yaml:"preview_rows,omitempty"`
}

// Plan returns the action list without the output options.
func (s RunSpec) Plan() ActionPlan {
	return ActionPlan{Actions: s.Actions}
}
