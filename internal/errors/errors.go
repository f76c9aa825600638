package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// FoldError is the structured error type for foldrank.
// It carries the context needed for handling, logging and user presentation.
type FoldError struct {
	// Code is the unique error code (e.g., "ERR_302_PROVIDER_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Provider, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *FoldError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FoldError) Unwrap() error {
	return e.Cause
}

// Is matches another FoldError by code.
func (e *FoldError) Is(target error) bool {
	if t, ok := target.(*FoldError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *FoldError) WithDetail(key, value string) *FoldError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *FoldError) WithSuggestion(suggestion string) *FoldError {
	e.Suggestion = suggestion
	return e
}

// New creates a new FoldError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *FoldError {
	return &FoldError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a FoldError from an existing error.
// The error's message becomes the FoldError message.
func Wrap(code string, err error) *FoldError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *FoldError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ProviderError creates an embedding provider failure.
func ProviderError(message string, cause error) *FoldError {
	return New(ErrCodeProviderFailed, message, cause)
}

// InvalidInputError creates a validation error for malformed caller input.
func InvalidInputError(message string, cause error) *FoldError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *FoldError {
	return New(ErrCodeInternal, message, cause)
}

// Cancelled wraps a context error so callers can tell it from provider failures.
func Cancelled(cause error) *FoldError {
	return New(ErrCodeCancelled, "operation cancelled", cause)
}

// as finds the first FoldError in err's chain.
func as(err error) (*FoldError, bool) {
	var fe *FoldError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if fe, ok := as(err); ok {
		return fe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if fe, ok := as(err); ok {
		return fe.Severity == SeverityFatal
	}
	return false
}

// IsProviderError reports whether err came from the embedding provider.
func IsProviderError(err error) bool {
	if fe, ok := as(err); ok {
		return fe.Category == CategoryProvider
	}
	return false
}

// IsInvalidInput reports whether err is a validation error.
func IsInvalidInput(err error) bool {
	if fe, ok := as(err); ok {
		return fe.Category == CategoryValidation
	}
	return false
}

// IsCancelled reports whether err is a cancellation, structured or raw.
// A FoldError is judged by its code alone, so a provider timeout that wraps
// context.DeadlineExceeded is not a cancellation.
func IsCancelled(err error) bool {
	if fe, ok := as(err); ok {
		return fe.Code == ErrCodeCancelled
	}
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// GetCode extracts the error code from a FoldError.
// Returns empty string if not a FoldError.
func GetCode(err error) string {
	if fe, ok := as(err); ok {
		return fe.Code
	}
	return ""
}

// GetCategory extracts the category from a FoldError.
// Returns empty string if not a FoldError.
func GetCategory(err error) Category {
	if fe, ok := as(err); ok {
		return fe.Category
	}
	return ""
}

// HTTPStatus maps an error to the status a transport layer should return:
// 4xx for invalid input, 5xx for provider and internal failures.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	fe, ok := as(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch fe.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryProvider:
		switch fe.Code {
		case ErrCodeNetworkTimeout:
			return http.StatusGatewayTimeout
		case ErrCodeProviderUnavailable, ErrCodeProviderRateLimited:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}
