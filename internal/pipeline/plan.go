package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"go-action-pipeline/internal/model"
)

// ParsePlan decodes an action-list payload, JSON or YAML. A payload that is
// not structured data, or has no actions key, is an ErrInputParse.
func ParsePlan(data []byte) (model.ActionPlan, error) {
	spec, err := ParseRunSpec(data)
	if err != nil {
		return model.ActionPlan{}, err
	}
	return spec.Plan(), nil
}

// ParseRunSpec decodes an action plan together with its output options.
func ParseRunSpec(data []byte) (model.RunSpec, error) {
	var probe struct {
		Actions *[]model.Action `json:"actions" yaml:"actions"`
	}
	if err := decodePayload(data, &probe); err != nil {
		return model.RunSpec{}, err
	}
	if probe.Actions == nil {
		return model.RunSpec{}, fmt.Errorf("%w: missing actions", ErrInputParse)
	}

	var spec model.RunSpec
	if err := decodePayload(data, &spec); err != nil {
		return model.RunSpec{}, err
	}
	return spec, nil
}

// ValidateRunSpec checks a spec that was decoded elsewhere, e.g. by an HTTP handler.
func ValidateRunSpec(spec model.RunSpec) error {
	if spec.Actions == nil {
		return fmt.Errorf("%w: missing actions", ErrInputParse)
	}
	if spec.PreviewRows < 0 {
		return fmt.Errorf("%w: preview_rows must not be negative", ErrInputParse)
	}
	return nil
}

func decodePayload(data []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInputParse)
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, out); err != nil {
			return fmt.Errorf("%w: %v", ErrInputParse, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInputParse, err)
	}
	return nil
}
