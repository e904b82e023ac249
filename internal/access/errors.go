package access

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes.
const (
	CodeNoSuchField       = "no_such_field"
	CodeFieldNotFound     = "field_not_found"
	CodeConstantField     = "constant_field"
	CodeDynamicField      = "dynamic_field"
	CodeMultipleValues    = "multiple_values"
	CodeInvalidType       = "invalid_type"
	CodeSchemaDrift       = "schema_drift"
	CodeUnsupportedChange = "unsupported_change"
	CodeEvaluation        = "evaluation"
)

var (
	// ErrNoSuchField is a resolution error: no template defines the name.
	ErrNoSuchField = errors.New("no template defines the field")

	// ErrFieldNotFound means the struct's own template lacks the field.
	ErrFieldNotFound = errors.New("field not found")

	ErrConstantField     = errors.New("field is constant")
	ErrDynamicField      = errors.New("field is dynamic")
	ErrMultipleValues    = errors.New("single field cannot hold multiple values")
	ErrInvalidType       = errors.New("no value has the field's type")
	ErrSchemaDrift       = errors.New("value no longer matches the field's type")
	ErrUnsupportedChange = errors.New("change is not supported by the field's type")
)

const reloadHint = "the template probably changed after this access was resolved; reload the script"

// Error is a failed field access. The struct is left unmodified.
type Error struct {
	Op       string // "resolve", "get" or a change mode
	Field    string
	Template string
	Code     string
	Hint     string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	fmt.Fprintf(&b, " field '%s'", e.Field)
	if e.Template != "" {
		fmt.Fprintf(&b, " of %s struct", e.Template)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Hint != "" {
		b.WriteString(" (")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts an *Error using errors.As.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
