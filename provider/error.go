package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass partitions upstream failures into the buckets the router acts
// on. Adapters assign the class at the point the failure is first observed.
type ErrorClass string

const (
	ClassAuth      ErrorClass = "auth"
	ClassRateLimit ErrorClass = "rate_limit"
	ClassNetwork   ErrorClass = "network"
	ClassMalformed ErrorClass = "malformed_response"
	ClassUpstream  ErrorClass = "upstream"
)

// Error is a structured upstream failure. StatusCode is zero for transport
// errors that never produced an HTTP response.
type Error struct {
	Class      ErrorClass
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Class, e.Message)
}

// NewStatusError classifies a non-2xx upstream response by status code.
func NewStatusError(statusCode int, body string) *Error {
	class := ClassUpstream
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		class = ClassAuth
	case statusCode == http.StatusTooManyRequests:
		class = ClassRateLimit
	}
	return &Error{Class: class, StatusCode: statusCode, Message: body}
}

// NewNetworkError wraps a transport failure or timeout. Timeouts are treated
// identically to network failures for fallback purposes.
func NewNetworkError(err error) *Error {
	return &Error{Class: ClassNetwork, Message: err.Error()}
}

// NewMalformedError marks an empty or unparseable success response, which is
// a failure, not an empty success.
func NewMalformedError(detail string) *Error {
	return &Error{Class: ClassMalformed, Message: detail}
}

// Classify extracts the error class from err, defaulting to network for
// plain transport errors. Cancellation is reported separately so the router
// can treat it as a neutral non-attempt.
func Classify(err error) ErrorClass {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Class
	}
	return ClassNetwork
}

// IsCancellation reports whether err stems from the caller going away rather
// than the upstream failing.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
