package repositories

import "fmt"

// CounterErrorCode enumerates failure reasons for counter operations.
type CounterErrorCode string

const (
	// CounterErrorUnknown represents an unspecified failure.
	CounterErrorUnknown CounterErrorCode = "counter_unknown"
	// CounterErrorInvalidInput indicates the caller supplied invalid arguments.
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
)

// CounterError wraps counter-specific failures with machine readable codes.
type CounterError struct {
	Op      string
	Code    CounterErrorCode
	Message string
	Err     error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCounterError constructs a typed counter error.
func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Code: code, Message: message, Err: err}
}

// ValidateCounterInput checks the arguments shared by every counter backend.
func ValidateCounterInput(counterID string, step int64) error {
	if counterID == "" {
		return NewCounterError(CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return NewCounterError(CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}
	return nil
}
