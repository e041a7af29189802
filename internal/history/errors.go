package history

import "errors"

// Validation failure codes (caller's fault, never retried).
const (
	CodeStartAfterEnd    = "start_after_end"
	CodeRangeTooLong     = "range_too_long"
	CodeInvalidPeriodKey = "invalid_period_key"
)

// Service failure codes (backend trouble, retried once then degraded).
const (
	CodeBackendUnavailable    = "backend_unavailable"
	CodeQueryTimeoutExhausted = "query_timeout_exhausted"
)

// Sentinel errors returned by backend adapters. The service maps them to
// ServiceError codes after the retry policy has run:
//
//	if errors.Is(err, history.ErrQueryTimeout) {
//	    // retry with a widened interval
//	}
var (
	// ErrBackendUnavailable indicates the backing store cannot be reached.
	ErrBackendUnavailable = errors.New("history: backend unavailable")

	// ErrQueryTimeout indicates a single backend call exceeded its deadline.
	ErrQueryTimeout = errors.New("history: query timed out")
)

// ValidationError reports a request the caller must fix.
type ValidationError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

// ServiceError reports a backend failure the caller may retry later.
type ServiceError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}

// newValidationError builds a ValidationError.
func newValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}
