package async

import (
	"context"
	"strings"

	"github.com/teranos/cadence/errors"
)

// ErrorCode represents the classification of an error
type ErrorCode string

const (
	ErrorCodeTimeout       ErrorCode = "timeout"
	ErrorCodeRateLimited   ErrorCode = "rate_limited"
	ErrorCodeNetworkError  ErrorCode = "network_error"
	ErrorCodeAuthError     ErrorCode = "auth_error"
	ErrorCodeInvalidInput  ErrorCode = "invalid_input"
	ErrorCodeNotFound      ErrorCode = "not_found"
	ErrorCodeDatabaseError ErrorCode = "database_error"
	ErrorCodeCanceled      ErrorCode = "canceled"
	ErrorCodeUnknown       ErrorCode = "unknown"
)

// ErrorContext provides structured error information for a failed step
type ErrorContext struct {
	Stage     string    // Where the error occurred
	Code      ErrorCode // Error classification
	Message   string    // Human-readable message
	Retryable bool      // Would the same call plausibly succeed later?
}

// ClassifyError categorizes a collaborator or storage error for logs and metrics
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{
			Stage:   stage,
			Code:    ErrorCodeUnknown,
			Message: "unknown error",
		}
	}

	errMsg := err.Error()
	errLower := strings.ToLower(errMsg)

	ctx := ErrorContext{
		Stage:   stage,
		Message: errMsg,
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errors.ErrTimeout) ||
		strings.Contains(errLower, "deadline exceeded") || strings.Contains(errLower, "timed out") ||
		strings.Contains(errLower, "timeout"):
		ctx.Code = ErrorCodeTimeout
		ctx.Retryable = true

	case errors.Is(err, context.Canceled):
		ctx.Code = ErrorCodeCanceled
		ctx.Retryable = true

	case strings.Contains(errLower, "429") || strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "too many requests"):
		ctx.Code = ErrorCodeRateLimited
		ctx.Retryable = true

	case errors.Is(err, errors.ErrUnauthorized) || errors.Is(err, errors.ErrForbidden) ||
		strings.Contains(errLower, "401") || strings.Contains(errLower, "403") ||
		strings.Contains(errLower, "unauthorized") || strings.Contains(errLower, "api key"):
		ctx.Code = ErrorCodeAuthError

	case errors.IsNotFoundError(err):
		ctx.Code = ErrorCodeNotFound

	case strings.Contains(errLower, "connection") || strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "no such host") || strings.Contains(errLower, "eof"):
		ctx.Code = ErrorCodeNetworkError
		ctx.Retryable = true

	case strings.Contains(errLower, "database") || strings.Contains(errLower, "sql"):
		ctx.Code = ErrorCodeDatabaseError
		ctx.Retryable = true

	case errors.IsInvalidRequestError(err) || strings.Contains(errLower, "invalid") ||
		strings.Contains(errLower, "unmarshal") || strings.Contains(errLower, "400"):
		ctx.Code = ErrorCodeInvalidInput

	default:
		ctx.Code = ErrorCodeUnknown
	}

	return ctx
}
