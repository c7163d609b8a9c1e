package pipeline

import (
	"errors"
	"fmt"
)

// Error kinds produced while loading data and running an action plan.
var (
	ErrInputParse            = errors.New("action list could not be parsed")
	ErrSourceNotFound        = errors.New("data source not found")
	ErrSourceInvalid         = errors.New("data source failed validation")
	ErrConditionSyntax       = errors.New("bad condition syntax")
	ErrUnknownFunction       = errors.New("unknown function")
	ErrPlaceholderUnresolved = errors.New("placeholder {last_scalar} has no value")
	ErrAggregationArgument   = errors.New("invalid aggregation argument")
	ErrColumnNotFound        = errors.New("column not found")
	ErrInvalidArgument       = errors.New("invalid argument")
)

// ActionError ties a failure to the action that produced it.
type ActionError struct {
	Index    int
	Function string
	Args     map[string]interface{}
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action #%d %s(%v): %v", e.Index, e.Function, e.Args, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err only means "this action does not apply
// right now": the action is skipped and the run continues.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnknownFunction) || errors.Is(err, ErrPlaceholderUnresolved)
}

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrInputParse, "input_parse"},
	{ErrSourceNotFound, "source_not_found"},
	{ErrSourceInvalid, "source_invalid"},
	{ErrConditionSyntax, "condition_syntax"},
	{ErrUnknownFunction, "unknown_function"},
	{ErrPlaceholderUnresolved, "placeholder_unresolved"},
	{ErrAggregationArgument, "aggregation_argument"},
	{ErrColumnNotFound, "column_not_found"},
	{ErrInvalidArgument, "invalid_argument"},
}

// ErrorKind names the error class of err, "internal" when it is none of ours.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
