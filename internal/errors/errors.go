// Package errors provides centralized error handling with component and
// category context for the processing pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryFileParsing   ErrorCategory = "file-parsing"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryIngest        ErrorCategory = "ingest"
	CategoryDetection     ErrorCategory = "detection"
	CategoryState         ErrorCategory = "state"
	CategoryGraph         ErrorCategory = "graph"
	CategoryDatabase      ErrorCategory = "database"
	CategoryNetwork       ErrorCategory = "network"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryGeneric       ErrorCategory = "generic"
)

// EnhancedError wraps an error with additional context for logging and
// diagnostics. It implements the standard error interfaces so callers can
// keep using errors.Is and errors.As.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	context   map[string]any
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As chains
func (e *EnhancedError) Unwrap() error {
	return e.Err
}

// Context returns a copy of the context data attached to the error.
func (e *EnhancedError) Context() map[string]any {
	if e.context == nil {
		return nil
	}
	out := make(map[string]any, len(e.context))
	maps.Copy(out, e.context)
	return out
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new error builder from a formatted message
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the EnhancedError
func (eb *ErrorBuilder) Build() *EnhancedError {
	category := eb.category
	if category == "" {
		category = CategoryGeneric
	}
	return &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  category,
		context:   eb.context,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// NewStd creates a plain sentinel error without enhancement. Use for
// package-level sentinels that callers match with errors.Is.
func NewStd(text string) error {
	return stderrors.New(text)
}

// CategoryOf returns the category of err if it carries one, or
// CategoryGeneric otherwise.
func CategoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	return CategoryGeneric
}
