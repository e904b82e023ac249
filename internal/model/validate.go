package model

import (
	"errors"
	"strings"
)

// Definition errors.
var (
	ErrEmptyName             = errors.New("name cannot be empty")
	ErrDuplicateField        = errors.New("field name is already taken")
	ErrDynamicWithoutDefault = errors.New("dynamic fields require a default value")
	ErrInvalidDefault        = errors.New("invalid default value")
	ErrNoParser              = errors.New("no expression parser")
	ErrUnknownField          = errors.New("unknown field")
	ErrInitialDynamic        = errors.New("cannot assign values to dynamic fields")
	ErrFieldNotHeld          = errors.New("field is not part of the struct's template")
	ErrTooManyValues         = errors.New("single field cannot hold multiple values")
	ErrCyclicDynamic         = errors.New("dynamic field refers to itself")
)

// ValidationError holds a list of field-level definition errors.
type ValidationError struct {
	Template string
	Errors   []FieldError
}

// FieldError represents a single failure on a named field.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	prefix := "validation failed: "
	if e.Template != "" {
		prefix = "template " + e.Template + ": " + prefix
	}
	return prefix + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the underlying causes to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	var errs []error
	for _, fe := range e.Errors {
		if fe.Err != nil {
			errs = append(errs, fe.Err)
		}
	}
	return errs
}

// Add records err against field.
func (e *ValidationError) Add(field string, err error) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: err.Error(), Err: err})
}
