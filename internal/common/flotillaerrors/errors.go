// Package flotillaerrors holds the error types the HTTP layer knows how to
// translate into response status codes. Handlers and services return these;
// the middleware calls CodeFromError on whatever comes back.
//
// A function that hits several problems at once (say a submission breaking
// more than one validation rule) should collect them into a
// github.com/hashicorp/go-multierror Error so every cause reaches the client.
package flotillaerrors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoPermission is returned when a principal attempts an action it is not
// allowed to perform, e.g., submitting to a restricted queue it is not on.
type ErrNoPermission struct {
	Principal string
	Queue     string // queue the action referred to, if any
	Action    string
	Message   string
}

func (err *ErrNoPermission) Error() string {
	s := fmt.Sprintf("%s is not permitted to %s", err.Principal, err.Action)
	if err.Queue != "" {
		s += " on queue " + err.Queue
	}
	return withMessage(s, err.Message)
}

// ErrAlreadyExists reports that a resource already exists. Type and Message
// are optional.
type ErrAlreadyExists struct {
	Type    string // resource type, e.g., "restricted queue"
	Value   string // resource name
	Message string
}

func (err *ErrAlreadyExists) Error() string {
	return resourceMessage(err.Type, err.Value, "already exists", err.Message)
}

// ErrNotFound reports that a resource does not exist. Type and Message are
// optional.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() string {
	return resourceMessage(err.Type, err.Value, "does not exist", err.Message)
}

// ErrInvalidArgument reports a bad value for a named field.
type ErrInvalidArgument struct {
	Name    string      // field name, e.g., "job_priority"
	Value   interface{} // the offending value
	Message string      // optionally, why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	return withMessage(fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name), err.Message)
}

// ErrMissingCredentials is returned by an auth service when the request
// carries no credentials that method recognizes. The caller should move on to
// the next configured auth service.
type ErrMissingCredentials struct {
	AuthService string
	Message     string
}

func (err *ErrMissingCredentials) Error() string {
	return withMessage(fmt.Sprintf("no credentials for auth service %q", err.AuthService), err.Message)
}

// ErrInvalidCredentials is returned by an auth service when credentials were
// supplied but failed to authenticate.
type ErrInvalidCredentials struct {
	Username    string
	AuthService string
	Message     string
}

func (err *ErrInvalidCredentials) Error() string {
	s := fmt.Sprintf("invalid credentials via auth service %q", err.AuthService)
	if err.Username != "" {
		s = fmt.Sprintf("invalid credentials for user %q via auth service %q", err.Username, err.AuthService)
	}
	return withMessage(s, err.Message)
}

// ErrStateConflict is returned when an operation requires the job to be in a
// state it no longer occupies, e.g., asking for the queue position of a job
// that has already been claimed.
type ErrStateConflict struct {
	JobId   string
	State   string // the state the job is actually in
	Message string
}

func (err *ErrStateConflict) Error() string {
	return withMessage(fmt.Sprintf("job %s is in state %s", err.JobId, err.State), err.Message)
}

// ErrProvisioningFailed is returned by the multi-device allocation saga when
// the fleet could not be brought up and the children have been compensated.
type ErrProvisioningFailed struct {
	Reason       string
	FailedJobIds []string
}

func (err *ErrProvisioningFailed) Error() string {
	if len(err.FailedJobIds) == 0 {
		return fmt.Sprintf("provisioning failed: %s", err.Reason)
	}
	return fmt.Sprintf("provisioning failed: %s; failed jobs [%s]",
		err.Reason, strings.Join(err.FailedJobIds, ", "))
}

func resourceMessage(kind, value, what, message string) string {
	s := fmt.Sprintf("resource %q %s", value, what)
	if kind != "" {
		s = fmt.Sprintf("resource %q of type %q %s", value, kind, what)
	}
	return withMessage(s, message)
}

func withMessage(s, message string) string {
	if message == "" {
		return s
	}
	return s + "; " + message
}

// as reports whether any error in the chain is of type T.
func as[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// CodeFromError maps an error to the HTTP status code to respond with. It
// walks the whole chain, so wrapped and aggregated errors resolve the same as
// bare ones.
func CodeFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case as[*ErrInvalidArgument](err):
		return http.StatusBadRequest
	case as[*ErrNoPermission](err):
		return http.StatusForbidden
	case as[*ErrMissingCredentials](err), as[*ErrInvalidCredentials](err):
		return http.StatusUnauthorized
	case as[*ErrNotFound](err):
		return http.StatusNotFound
	case as[*ErrAlreadyExists](err), as[*ErrStateConflict](err):
		return http.StatusConflict
	case as[*ErrProvisioningFailed](err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
