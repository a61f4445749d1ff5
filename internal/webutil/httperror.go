package webutil

import (
	"errors"
	"net/http"
)

const (
	msgBadRequest     = "Bad Request"
	msgNotFound       = "Resource not found"
	msgInternalServer = "Internal Server Error"
	msgUnauthorized   = "Unauthorized"
	msgForbidden      = "Forbidden"
	msgConflict       = "Conflict"
)

// HTTPError is an error with an HTTP status code and a user-facing message.
// It renders as {"error": Message} unless Key names another field.
type HTTPError struct {
	cause   error
	Code    int
	Message string
	Key     string
}

// WithKey sets the JSON field the message is rendered under
func (he *HTTPError) WithKey(key string) *HTTPError {
	he.Key = key
	return he
}

func (he *HTTPError) body() map[string]string {
	key := he.Key
	if key == "" {
		key = "error"
	}
	return map[string]string{key: he.Message}
}

func (he *HTTPError) Error() string {
	return he.Message
}

func (he *HTTPError) Unwrap() error {
	return he.cause
}

func defaultMessageIfEmpty(msg, defaultVal string) string {
	if msg == "" {
		return defaultVal
	}
	return msg
}

// NewHTTPError creates an HTTPError with a code and message
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{cause: errors.New(message), Code: code, Message: message}
}

// NewHTTPErrorWrap creates an HTTPError that keeps the underlying cause for logging
func NewHTTPErrorWrap(code int, message string, cause error) *HTTPError {
	return &HTTPError{cause: cause, Code: code, Message: message}
}

func ErrBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, defaultMessageIfEmpty(message, msgBadRequest))
}

func ErrBadRequestWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusBadRequest, defaultMessageIfEmpty(message, msgBadRequest), cause)
}

func ErrUnauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, defaultMessageIfEmpty(message, msgUnauthorized))
}

func ErrForbiddenWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusForbidden, defaultMessageIfEmpty(message, msgForbidden), cause)
}

func ErrNotFoundWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusNotFound, defaultMessageIfEmpty(message, msgNotFound), cause)
}

func ErrConflictWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusConflict, defaultMessageIfEmpty(message, msgConflict), cause)
}

func ErrServiceUnavailableWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusServiceUnavailable, message, cause)
}

func ErrGatewayTimeoutWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusGatewayTimeout, message, cause)
}
