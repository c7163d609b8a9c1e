package pipeline

import (
	"fmt"

	"go-action-pipeline/internal/model"
)

// validateDataset applies the source's validation rules to a loaded dataset.
func validateDataset(d *Dataset, rules *model.ValidationRules) error {
	if rules == nil {
		// No validation rules defined → pass through
		return nil
	}

	// Check required fields
	for _, field := range rules.RequiredFields {
		if !d.HasColumn(field) {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	// Check numeric fields
	for _, field := range rules.NumericFields {
		if !d.HasColumn(field) {
			continue
		}
		for i, r := range d.rows {
			switch val := r[field].(type) {
			case nil, float64:
				// ok
			default:
				return fmt.Errorf("row %d: field %s must be numeric, got %T %v", i+1, field, val, val)
			}
		}
	}
	return nil
}
