// Package apperror provides the structured error taxonomy of the cascade engine.
// Every failure surfaced to callers is an AppError so the cause can be told
// apart with errors.As and a stable code.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes
const (
	// Collection failures (nothing mutated)
	CodeGraphIntegrity = "GRAPH_INTEGRITY_ERROR"
	CodeCyclicSchema   = "CYCLIC_SCHEMA_ERROR"

	// Execution failures (transaction rolled back)
	CodeNotification = "NOTIFICATION_ERROR"
	CodeStorage      = "STORAGE_ERROR"

	// Caller errors
	CodeValidation = "VALIDATION_ERROR"

	// Everything else
	CodeInternal = "INTERNAL_ERROR"
)

// AppError is the standard error type for the engine.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (refs, columns, types)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewGraphIntegrity reports a foreign key that points at a missing row.
func NewGraphIntegrity(child, column, parent string) *AppError {
	return &AppError{
		Code:    CodeGraphIntegrity,
		Message: fmt.Sprintf("%s references missing %s via %s", child, parent, column),
		Details: map[string]any{"child": child, "column": column, "parent": parent},
	}
}

// NewMissingRoot reports a cascade root that does not exist.
func NewMissingRoot(ref string) *AppError {
	return &AppError{
		Code:    CodeGraphIntegrity,
		Message: fmt.Sprintf("root %s does not exist", ref),
		Details: map[string]any{"root": ref},
	}
}

// NewCyclicSchema reports entity types whose references form a cycle.
func NewCyclicSchema(types []string) *AppError {
	sorted := append([]string(nil), types...)
	sort.Strings(sorted)
	return &AppError{
		Code:    CodeCyclicSchema,
		Message: fmt.Sprintf("reference cycle among types: %s", strings.Join(sorted, ", ")),
		Details: map[string]any{"types": sorted},
	}
}

// NewNotification wraps a failing lifecycle handler.
func NewNotification(event, ref string, err error) *AppError {
	return &AppError{
		Code:    CodeNotification,
		Message: fmt.Sprintf("%s handler failed for %s", event, ref),
		Details: map[string]any{"event": event, "ref": ref},
		Err:     err,
	}
}

// NewStorage wraps a failed statement, commit or rollback.
func NewStorage(op string, err error) *AppError {
	return &AppError{
		Code:    CodeStorage,
		Message: fmt.Sprintf("storage failure during %s", op),
		Details: map[string]any{"op": op},
		Err:     err,
	}
}

// NewValidation creates a validation error
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewInternal creates an internal error
func NewInternal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal error",
		Err:     err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost AppError, or "" for foreign errors.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// IsGraphIntegrity checks if error is CodeGraphIntegrity
func IsGraphIntegrity(err error) bool {
	return CodeOf(err) == CodeGraphIntegrity
}

// IsCyclicSchema checks if error is CodeCyclicSchema
func IsCyclicSchema(err error) bool {
	return CodeOf(err) == CodeCyclicSchema
}

// IsNotification checks if error is CodeNotification
func IsNotification(err error) bool {
	return CodeOf(err) == CodeNotification
}

// IsStorage checks if error is CodeStorage
func IsStorage(err error) bool {
	return CodeOf(err) == CodeStorage
}

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}
