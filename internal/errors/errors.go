// Package errors defines the client-facing error taxonomy of the service.
// Only the service layer constructs these values; transports serialize them.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Stable error codes returned in the "code" field of error bodies.
const (
	CodeMalformedBody        = "malformed_body"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeValidationFailed     = "validation_failed"
	CodeNotFound             = "not_found"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodeConflict             = "conflict"
	CodeRateLimited          = "rate_limited"
	CodeOverloaded           = "overloaded"
	CodeUnavailable          = "unavailable"
	CodeTimeout              = "timeout"
	CodeInternal             = "internal"
)

// ServiceError is an error that knows how it is presented to a caller.
type ServiceError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ClientError reports whether the error was caused by the caller.
func (e *ServiceError) ClientError() bool {
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}

// MalformedBody reports a request body that could not be decoded.
func MalformedBody(message string) *ServiceError {
	return &ServiceError{Code: CodeMalformedBody, Message: message, HTTPStatus: http.StatusBadRequest}
}

// BadParameter reports an unusable path or query parameter.
func BadParameter(name, message string) *ServiceError {
	return &ServiceError{
		Code:       CodeMalformedBody,
		Message:    fmt.Sprintf("parameter %q %s", name, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// UnsupportedMediaType reports a body that is not JSON.
func UnsupportedMediaType(contentType string) *ServiceError {
	return &ServiceError{
		Code:       CodeUnsupportedMediaType,
		Message:    fmt.Sprintf("content type %q is not supported, use application/json", contentType),
		HTTPStatus: http.StatusUnsupportedMediaType,
	}
}

// Validation reports domain validation failures keyed by field.
func Validation(fields map[string]string) *ServiceError {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+fields[k])
	}
	return &ServiceError{
		Code:       CodeValidationFailed,
		Message:    strings.Join(parts, "; "),
		Fields:     fields,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NotFound reports a missing resource.
func NotFound(kind, id string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %q not found", kind, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// RouteNotFound reports a path no route matches.
func RouteNotFound(path string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("no route for %s", path),
		HTTPStatus: http.StatusNotFound,
	}
}

// MethodNotAllowed reports a known path requested with an unsupported method.
func MethodNotAllowed(method, path string) *ServiceError {
	return &ServiceError{
		Code:       CodeMethodNotAllowed,
		Message:    fmt.Sprintf("method %s not allowed on %s", method, path),
		HTTPStatus: http.StatusMethodNotAllowed,
	}
}

// Conflict reports a write that contradicts existing state.
func Conflict(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict, Err: err}
}

// RateLimitExceeded reports a caller over its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Overloaded reports that the in-flight request bound was reached.
func Overloaded() *ServiceError {
	return &ServiceError{
		Code:       CodeOverloaded,
		Message:    "server is at capacity, retry later",
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Unavailable reports a transient infrastructure failure that outlived retries.
func Unavailable(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeUnavailable,
		Message:    "storage temporarily unavailable, retry later",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// Timeout reports a request that ran past its deadline.
func Timeout(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeTimeout,
		Message:    "request deadline exceeded",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// Internal hides an unexpected failure behind a generic message.
func Internal(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// From returns err as a ServiceError, wrapping unknown errors as Internal.
func From(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return Internal(err)
}
