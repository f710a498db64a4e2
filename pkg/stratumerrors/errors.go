// Package stratumerrors provides structured error handling for Stratum with
// rich context, stack traces, and error categorization. It enables consistent
// error handling patterns across the configuration and secrets pipeline.
//
// # Basic Usage
//
//	// Create a new error
//	err := stratumerrors.New(stratumerrors.ErrorTypeValidation, "invalid snapshot")
//
//	// Add context
//	err = err.WithDetail("field", "BACKEND_PORT")
//
//	// Wrap existing errors
//	if err := decode(raw); err != nil {
//	    return stratumerrors.Wrap(err, stratumerrors.ErrorTypeFile, "failed to decode config file").
//	        WithDetail("path", path)
//	}
//
// # Error Types
//
// Errors are categorized by type, which drives handling strategies: validation
// failures abort snapshot construction, secret failures are swallowed by the
// bulk resolver but propagated on direct lookups, and file/format/dependency
// failures propagate through the merge.
package stratumerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents schema/type/constraint failures during
	// snapshot construction
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeFormat represents unsupported configuration file formats
	ErrorTypeFormat ErrorType = "format"
	// ErrorTypeDependency represents a missing parser dependency for a format
	ErrorTypeDependency ErrorType = "dependency"
	// ErrorTypeSecret represents secret resolution failures
	ErrorTypeSecret ErrorType = "secret"
	// ErrorTypeConfig represents configuration system misuse (lifecycle, setup)
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeWatch represents file watcher errors
	ErrorTypeWatch ErrorType = "watch"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack captured at the
// error creation point.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface, returning a formatted message that
// includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. This method can be chained
// for adding multiple details.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
