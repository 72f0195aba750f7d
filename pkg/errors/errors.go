// Package errors defines the categorized error type used across the invoice
// generator.
//
// Errors carry a category (which drives the process exit code), a specific
// code, an operator-facing suggestion, and structured context. The taxonomy
// mirrors the failure policy of the batch run: source-file and configuration
// problems are fatal, while data-quality gaps are surfaced as diagnostic
// sheets and never raised through this package.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category groups errors by the part of the pipeline that produced them.
type Category string

const (
	CategoryFile          Category = "file"
	CategoryParse         Category = "parse"
	CategoryValidation    Category = "validation"
	CategoryConfiguration Category = "configuration"
	CategoryState         Category = "state"   // carry ledger / reference counters
	CategoryBilling       Category = "billing" // reconciliation and rule engine
)

// Code identifies a specific error within a category.
type Code string

const (
	CodeFileNotFound  Code = "file_not_found"
	CodeFileUnreadble Code = "file_unreadable"
	CodeWriteFailed   Code = "write_failed"

	CodeMissingColumn Code = "missing_column"
	CodeMissingSheet  Code = "missing_sheet"
	CodeInvalidFormat Code = "invalid_format"

	CodeEmptyRoster Code = "empty_roster"

	CodeInvalidConfig Code = "invalid_config"

	CodeCorruptState Code = "corrupt_state"

	CodeUnknownCreditGroup Code = "unknown_credit_group"
)

// Error is the concrete error type carried through the pipeline.
type Error struct {
	Category   Category               `json:"category"`
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode maps the error category to a process exit code.
func (e *Error) ExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryState:
		return 5
	case CategoryBilling:
		return 6
	default:
		return 1
	}
}

// WithContext attaches a key-value pair to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSuggestion attaches an operator-facing hint.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a categorized error.
func New(category Category, code Code, message string) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Newf creates a categorized error with a formatted message.
func Newf(category Category, code Code, format string, args ...interface{}) *Error {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with category and code. Returns nil for a nil
// cause.
func Wrap(err error, category Category, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    err,
	}
}

// FileError builds an error for a source or state file problem.
func FileError(code Code, path string, err error) *Error {
	var message, suggestion string
	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check that the file path is correct and the file exists"
	case CodeFileUnreadble:
		message = fmt.Sprintf("file is not readable: %s", path)
		suggestion = "check file permissions"
	case CodeWriteFailed:
		message = fmt.Sprintf("failed to write file: %s", path)
		suggestion = "check that the directory exists and is writable"
	default:
		message = fmt.Sprintf("file error: %s", path)
	}

	result := Wrap(err, CategoryFile, code, message)
	if result == nil {
		result = New(CategoryFile, code, message)
	}
	return result.WithSuggestion(suggestion).WithContext("path", path)
}

// ParseError builds an error for a malformed source table.
func ParseError(code Code, file string, detail string, err error) *Error {
	var message, suggestion string
	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column %q in %s", detail, file)
		suggestion = "verify the file has all required columns with the expected headers"
	case CodeMissingSheet:
		message = fmt.Sprintf("missing required sheet %q in %s", detail, file)
		suggestion = "verify the workbook contains the expected sheets"
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in %s: %s", file, detail)
		suggestion = "check that the file is a valid CSV or XLSX table"
	default:
		message = fmt.Sprintf("parse error in %s: %s", file, detail)
	}

	result := Wrap(err, CategoryParse, code, message)
	if result == nil {
		result = New(CategoryParse, code, message)
	}
	return result.WithSuggestion(suggestion).WithContext("file", file)
}

// StateError builds an error for carry-ledger or reference-counter problems.
func StateError(code Code, path string, err error) *Error {
	message := fmt.Sprintf("persisted state error in %s", path)
	if code == CodeCorruptState {
		message = fmt.Sprintf("persisted state file is corrupt: %s", path)
	}
	result := Wrap(err, CategoryState, code, message)
	if result == nil {
		result = New(CategoryState, code, message)
	}
	return result.
		WithSuggestion("restore the file from the previous run or delete it to re-seed").
		WithContext("path", path)
}

// BillingError builds an error raised by the reconciliation or rule engine.
func BillingError(code Code, operation string, err error) *Error {
	message := fmt.Sprintf("billing error during %s", operation)
	if code == CodeUnknownCreditGroup {
		message = fmt.Sprintf("unexpected credit-memo group value during %s", operation)
	}
	result := Wrap(err, CategoryBilling, code, message)
	if result == nil {
		result = New(CategoryBilling, code, message)
	}
	return result.WithContext("operation", operation)
}

// ConfigurationError builds an error for invalid or missing configuration.
func ConfigurationError(code Code, setting string, err error) *Error {
	message := fmt.Sprintf("configuration error for %q", setting)
	result := Wrap(err, CategoryConfiguration, code, message)
	if result == nil {
		result = New(CategoryConfiguration, code, message)
	}
	return result.WithContext("setting", setting)
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ExitCode returns the exit code for any error, defaulting to 1 for errors
// outside this taxonomy and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := As(err); ok {
		return e.ExitCode()
	}
	return 1
}
