package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrNetwork        = errors.New("network error")
	ErrAPI            = errors.New("api error")
	ErrResponseFormat = errors.New("response format error")

	// ErrTimeout marks requests that exceeded their deadline. A timeout is a
	// retryable transport failure, so errors tagged with it also match
	// ErrNetwork.
	ErrTimeout error = timeoutError{}
)

type timeoutError struct{}

func (timeoutError) Error() string { return "timeout" }

func (timeoutError) Is(target error) bool { return target == ErrNetwork }

// Machine-readable codes surfaced to callers.
const (
	CodeNoItems              = "NO_ITEMS"
	CodeNoJobID              = "NO_JOB_ID"
	CodeCredentialRequired   = "CREDENTIAL_REQUIRED"
	CodeUnsupportedExtension = "UNSUPPORTED_EXTENSION"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeInvalidURL           = "INVALID_URL"
	CodeNoDownloadURL        = "NO_DOWNLOAD_URL"
	CodeConversionActive     = "CONVERSION_ACTIVE"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ValidationError describes rejected user input. Never retryable.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes ValidationError match the ErrValidation sentinel.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError constructs a coded validation failure.
func NewValidationError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// APIError describes a non-2xx or malformed success response from the
// conversion service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	parts := make([]string, 0, 3)
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.StatusCode))
	}
	if len(parts) == 0 {
		return "api error"
	}
	return strings.Join(parts, ": ")
}

// Is makes APIError match the ErrAPI sentinel.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// Retryable reports whether re-dispatching the item could succeed. Server-side
// validation rejections (400-class) are final; everything else may be retried.
func (e *APIError) Retryable() bool {
	return e.StatusCode < 400 || e.StatusCode >= 500
}

// ErrorCode extracts the machine-readable code carried by validation or API
// errors, or "" when the error carries none.
func ErrorCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
