package webhook

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthenticationFailed is returned when the auth hook explicitly denies the request.
	ErrAuthenticationFailed = errors.New("the authentication hook has denied to execute the request")

	ErrRoleSessionVariableNotFound     = errors.New("'x-hasura-role' session variable not found in the webhook response")
	ErrRoleSessionVariableMustBeString = errors.New("'x-hasura-role' session variable in the webhook response was not a string")
)

// UnexpectedStatusError is returned when the auth hook answers with a status other than 200 or 401.
type UnexpectedStatusError struct {
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("the authentication hook has returned the status %d. Only 200 and 401 response status are recognized", e.StatusCode)
}

// HeaderValueError is returned when a client header value cannot be converted to a string.
type HeaderValueError struct {
	Name string
}

func (e *HeaderValueError) Error() string {
	return fmt.Sprintf("error in converting the header value corresponding to the %s to a string: invalid UTF-8", e.Name)
}

// InvalidURLError is returned when the auth hook URL cannot be resolved or parsed.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid URL %q: %v", e.URL, e.Err)
}

func (e *InvalidURLError) Unwrap() error {
	return e.Err
}

// InternalError wraps every failure that is not an explicit denial by the hook.
// These indicate misconfiguration or network failures.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error - %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internalError(op string, err error) error {
	return &InternalError{Op: op, Err: err}
}

// IsInternal reports whether err is an internal authentication fault.
func IsInternal(err error) bool {
	var internal *InternalError
	return errors.As(err, &internal)
}

// StatusCode maps an authentication error to the HTTP status returned to the client.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthenticationFailed):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
