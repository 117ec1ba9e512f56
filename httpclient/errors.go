package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vapeshed/cis-bricks/logger"
)

// ErrorType classifies failures surfaced by the client.
type ErrorType int

const (
	// ConfigurationError means the client cannot be built; never retried.
	ConfigurationError ErrorType = iota + 1
	// TransportError covers connection, DNS, timeout and cancellation failures.
	TransportError
	// RetryableAPIError is a response with status 408, 429, 500, 502, 503 or 504.
	RetryableAPIError
	// NonRetryableAPIError is any other non-2xx response.
	NonRetryableAPIError
	// RetriesExhaustedError wraps the last retryable failure once all attempts are spent.
	RetriesExhaustedError
	// ValidationError reports a malformed request (bad path, unserializable body).
	ValidationError
	// InterceptorError reports a failing request or response interceptor.
	InterceptorError
)

var errorTypeNames = map[ErrorType]string{
	ConfigurationError:    "configuration",
	TransportError:        "transport",
	RetryableAPIError:     "retryable_api",
	NonRetryableAPIError:  "non_retryable_api",
	RetriesExhaustedError: "retries_exhausted",
	ValidationError:       "validation",
	InterceptorError:      "interceptor",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ClientError is implemented by every error the client returns.
type ClientError interface {
	error
	Type() ErrorType
}

type configurationError struct {
	field   string
	message string
}

// NewConfigurationError reports an unusable client configuration.
func NewConfigurationError(field, message string) ClientError {
	return &configurationError{field: field, message: message}
}

func (e *configurationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.field, e.message)
	}
	return "configuration error: " + e.message
}

func (e *configurationError) Type() ErrorType { return ConfigurationError }

// Field returns the configuration field at fault.
func (e *configurationError) Field() string { return e.field }

type transportError struct {
	message string
	timeout time.Duration
	err     error
}

// NewTransportError reports a network-level failure.
func NewTransportError(message string, err error) ClientError {
	return &transportError{message: message, err: err}
}

// NewTimeoutError reports an attempt that exceeded its timeout.
func NewTimeoutError(message string, timeout time.Duration, err error) ClientError {
	return &transportError{message: message, timeout: timeout, err: err}
}

func (e *transportError) Error() string {
	msg := "transport error: " + e.message
	if e.timeout > 0 {
		msg += fmt.Sprintf(" (timeout %s)", e.timeout)
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *transportError) Type() ErrorType { return TransportError }

func (e *transportError) Unwrap() error { return e.err }

// Timeout reports whether the attempt ran out of time.
func (e *transportError) Timeout() bool { return e.timeout > 0 }

type apiError struct {
	statusCode int
	body       []byte
	excerpt    string
	retryable  bool
}

// NewAPIError reports a non-2xx response. Retryability follows IsRetryableStatus.
// The message carries a body excerpt with sensitive JSON keys masked.
func NewAPIError(statusCode int, body []byte) ClientError {
	return newAPIError(statusCode, body, logger.NewSensitiveDataFilter(nil))
}

func newAPIError(statusCode int, body []byte, filter *logger.SensitiveDataFilter) *apiError {
	return &apiError{
		statusCode: statusCode,
		body:       body,
		excerpt:    bodyExcerpt(maskBody(filter, body), maxErrorBodyExcerpt),
		retryable:  IsRetryableStatus(statusCode),
	}
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("HTTP error: status %d", e.statusCode)
	if text := http.StatusText(e.statusCode); text != "" {
		msg += " " + text
	}
	if e.excerpt != "" {
		msg += ": " + e.excerpt
	}
	return msg
}

func (e *apiError) Type() ErrorType {
	if e.retryable {
		return RetryableAPIError
	}
	return NonRetryableAPIError
}

// StatusCode returns the HTTP status of the response.
func (e *apiError) StatusCode() int { return e.statusCode }

// Body returns the raw response body.
func (e *apiError) Body() []byte { return e.body }

type retriesExhaustedError struct {
	attempts int
	last     error
}

// NewRetriesExhaustedError wraps the last observed failure after attempts tries.
func NewRetriesExhaustedError(attempts int, last error) ClientError {
	return &retriesExhaustedError{attempts: attempts, last: last}
}

func (e *retriesExhaustedError) Error() string {
	if e.last == nil {
		return fmt.Sprintf("retries exhausted after %d attempts", e.attempts)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.attempts, e.last)
}

func (e *retriesExhaustedError) Type() ErrorType { return RetriesExhaustedError }

func (e *retriesExhaustedError) Unwrap() error { return e.last }

// Attempts returns the number of physical attempts made.
func (e *retriesExhaustedError) Attempts() int { return e.attempts }

type validationError struct {
	message string
	field   string
}

// NewValidationError reports a malformed request.
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.field, e.message)
	}
	return "validation error: " + e.message
}

func (e *validationError) Type() ErrorType { return ValidationError }

type interceptorError struct {
	message string
	stage   string
	err     error
}

// NewInterceptorError reports a failing interceptor at the given stage.
func NewInterceptorError(message, stage string, err error) ClientError {
	return &interceptorError{message: message, stage: stage, err: err}
}

func (e *interceptorError) Error() string {
	msg := fmt.Sprintf("interceptor error: %s (stage %s)", e.message, e.stage)
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *interceptorError) Type() ErrorType { return InterceptorError }

func (e *interceptorError) Unwrap() error { return e.err }

// IsErrorType reports whether any ClientError in err's chain has type t.
func IsErrorType(err error, t ErrorType) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ce, ok := e.(ClientError); ok && ce.Type() == t {
			return true
		}
	}
	return false
}

// StatusCodeOf returns the HTTP status carried by err, or 0 when err holds none.
func StatusCodeOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// AttemptsOf returns the attempt count of a RetriesExhaustedError in err's chain, or 0.
func AttemptsOf(err error) int {
	var ex *retriesExhaustedError
	if errors.As(err, &ex) {
		return ex.attempts
	}
	return 0
}

// IsHTTPStatusError reports whether err carries the given HTTP status.
func IsHTTPStatusError(err error, statusCode int) bool {
	return err != nil && StatusCodeOf(err) == statusCode
}

// IsSuccessStatus reports whether statusCode is 2xx.
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryableStatus reports whether statusCode signals a transient upstream condition.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
