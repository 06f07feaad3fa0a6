package errors

import (
	stderrors "errors"
	"fmt"
)

// ClassifiedError represents a structured error with category, severity, and context.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	message  string
	cause    error
	context  ErrorContext
}

// Error implements the standard error interface.
func (e *ClassifiedError) Error() string {
	label := string(e.category)
	if code := e.Code(); code != "" {
		label = string(code)
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", label, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", label, e.severity, e.message)
}

// Unwrap implements Go 1.13+ error unwrapping.
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// Category returns the error category.
func (e *ClassifiedError) Category() ErrorCategory {
	return e.category
}

// Severity returns the error severity.
func (e *ClassifiedError) Severity() ErrorSeverity {
	return e.severity
}

// Message returns the error message.
func (e *ClassifiedError) Message() string {
	return e.message
}

// Cause returns the underlying error.
func (e *ClassifiedError) Cause() error {
	return e.cause
}

// Context returns the error context.
func (e *ClassifiedError) Context() ErrorContext {
	return e.context
}

// Code returns the error code stored in the context, if any.
func (e *ClassifiedError) Code() ErrorCode {
	if v, ok := e.context.Get(ContextKeyCode); ok {
		if code, ok := v.(ErrorCode); ok {
			return code
		}
	}
	return ""
}

// WithContext adds context to the error and returns a new error.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	return &ClassifiedError{
		category: e.category,
		severity: e.severity,
		message:  e.message,
		cause:    e.cause,
		context:  e.context.clone().Set(key, value),
	}
}

// WithSeverity returns a copy of the error with a different severity.
func (e *ClassifiedError) WithSeverity(severity ErrorSeverity) *ClassifiedError {
	return &ClassifiedError{
		category: e.category,
		severity: severity,
		message:  e.message,
		cause:    e.cause,
		context:  e.context.clone(),
	}
}

// Is implements error comparison for Go 1.13+ error handling.
func (e *ClassifiedError) Is(target error) bool {
	if other, ok := target.(*ClassifiedError); ok {
		return e.category == other.category && e.message == other.message
	}
	return false
}

// IsCategory checks if the error belongs to a specific category.
func (e *ClassifiedError) IsCategory(category ErrorCategory) bool {
	return e.category == category
}

// IsFatal checks if the error is fatal (should stop execution).
func (e *ClassifiedError) IsFatal() bool {
	return e.severity == SeverityFatal
}

// AsClassified finds the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// IsClassified checks if an error chain contains a ClassifiedError.
func IsClassified(err error) bool {
	_, ok := AsClassified(err)
	return ok
}

// HasCategory checks if the error chain carries a category.
func HasCategory(err error, category ErrorCategory) bool {
	if classified, ok := AsClassified(err); ok {
		return classified.IsCategory(category)
	}
	return false
}

// HasCode checks if the error chain carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return Code(err) == code
}

// Code extracts the error code from an error, or returns "".
func Code(err error) ErrorCode {
	if classified, ok := AsClassified(err); ok {
		return classified.Code()
	}
	return ""
}

// GetCategory extracts the category from an error, or returns CategoryInternal.
func GetCategory(err error) ErrorCategory {
	if classified, ok := AsClassified(err); ok {
		return classified.Category()
	}
	return CategoryInternal
}

// GetSeverity extracts the severity from an error, or returns SeverityError.
func GetSeverity(err error) ErrorSeverity {
	if classified, ok := AsClassified(err); ok {
		return classified.Severity()
	}
	return SeverityError
}

// IsFatal reports whether err is a fatal classified error.
func IsFatal(err error) bool {
	return GetSeverity(err) == SeverityFatal
}
