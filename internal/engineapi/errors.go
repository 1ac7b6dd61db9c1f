package engineapi

import (
	"fmt"
	"strings"
)

// Engine error codes preserved verbatim from {code, error} bodies.
const (
	codeNotConnected       = "NOT_CONNECTED"
	codeAlreadyInitialized = "ALREADY_INITIALIZED"
	codeNotFound           = "NOT_FOUND"
)

// requestError is a failed engine API call. The engine-reported code is kept
// verbatim so callers can branch on it.
type requestError struct {
	operation string
	status    int
	apiCode   string
	message   string
}

func (e requestError) Error() string {
	if e.apiCode != "" {
		return fmt.Sprintf("%s: %s (status %d, code %s)", e.operation, e.message, e.status, e.apiCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.operation, e.message, e.status)
}

// IsNotConnected reports whether the engine answered NOT_CONNECTED.
func IsNotConnected(err error) bool {
	e, ok := err.(requestError)
	return ok && e.apiCode == codeNotConnected
}

// IsRepositoryAlreadyExists reports whether the engine answered
// ALREADY_INITIALIZED for a create call.
func IsRepositoryAlreadyExists(err error) bool {
	e, ok := err.(requestError)
	return ok && e.apiCode == codeAlreadyInitialized
}

// IsNotFound reports whether the resource is missing, either via the NOT_FOUND
// code or a plain HTTP 404.
func IsNotFound(err error) bool {
	e, ok := err.(requestError)
	return ok && (e.apiCode == codeNotFound || e.status == 404)
}

// IsPolicyNotFound reports whether a policy call answered NOT_FOUND: the
// target simply has no policy defined yet.
func IsPolicyNotFound(err error) bool {
	e, ok := err.(requestError)
	return ok && strings.HasPrefix(e.operation, "policy ") && (e.apiCode == codeNotFound || e.status == 404)
}

// IsRequestError reports whether err is a failed engine API call of any kind.
func IsRequestError(err error) bool {
	_, ok := err.(requestError)
	return ok
}

// APICode returns the engine-reported error code, if any.
func APICode(err error) string {
	if e, ok := err.(requestError); ok {
		return e.apiCode
	}
	return ""
}

// HTTPStatus returns the HTTP status of a failed engine API call, or 0.
func HTTPStatus(err error) int {
	if e, ok := err.(requestError); ok {
		return e.status
	}
	return 0
}

// parseError signals a 2xx engine response whose body did not decode into the
// expected type.
type parseError struct {
	expected string
	message  string
}

func (e parseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.expected, e.message)
}

// IsParseError reports whether err indicates an undecodable engine response.
func IsParseError(err error) bool {
	_, ok := err.(parseError)
	return ok
}
