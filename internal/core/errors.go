// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Input errors
	ErrInvalidInput        = &Error{Code: "INVALID_INPUT", Message: "invalid input"}
	ErrInvalidStopPrice    = &Error{Code: "INVALID_STOP_PRICE", Message: "stop price equals entry price"}
	ErrInsufficientHistory = &Error{Code: "INSUFFICIENT_HISTORY", Message: "insufficient history for analysis"}
	ErrNoData              = &Error{Code: "NO_DATA", Message: "no data available"}

	// Strategy errors
	ErrStrategyNotFound = &Error{Code: "STRATEGY_NOT_FOUND", Message: "strategy not found"}

	// Persistence errors
	ErrPersistenceFailure = &Error{Code: "PERSISTENCE_FAILURE", Message: "persistence write failed"}
	ErrNotFound           = &Error{Code: "NOT_FOUND", Message: "record not found"}

	// Risk errors
	ErrOrderNotActive   = &Error{Code: "ORDER_NOT_ACTIVE", Message: "stop-loss order is not active"}
	ErrDuplicateTrigger = &Error{Code: "DUPLICATE_TRIGGER", Message: "stop-loss order already triggered"}
	ErrBreakerOpen      = &Error{Code: "BREAKER_OPEN", Message: "circuit breaker is open"}
	ErrLimitExceeded    = &Error{Code: "LIMIT_EXCEEDED", Message: "risk limit exceeded"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
