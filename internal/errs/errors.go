package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a categorised application error. Two errors match under errors.Is
// when their codes are equal, so wrapped copies still compare against the
// catalogue values below.
type Error struct {
	Code       int
	HTTPStatus int
	Message    string
	Err        error
}

// New creates a catalogue error.
func New(code int, httpStatus int, message string) *Error {
	return &Error{Code: code, HTTPStatus: httpStatus, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, HTTPStatus: e.HTTPStatus, Message: e.Message, Err: cause}
}

// Wrapf returns a copy of e carrying a formatted cause.
func (e *Error) Wrapf(format string, args ...any) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// Error codes
var (
	ErrDataNotFound   = New(1001, http.StatusServiceUnavailable, "dataset file not found")
	ErrSchema         = New(1002, http.StatusUnprocessableEntity, "dataset schema mismatch")
	ErrModelLoad      = New(2001, http.StatusServiceUnavailable, "embedding model could not be loaded")
	ErrIndexMissing   = New(3001, http.StatusServiceUnavailable, "index has not been built")
	ErrIndexWrite     = New(3002, http.StatusInternalServerError, "index could not be written")
	ErrIndexCorrupt   = New(3003, http.StatusInternalServerError, "index and metadata are out of sync")
	ErrNetwork        = New(4001, http.StatusBadGateway, "language model endpoint unreachable")
	ErrAuthentication = New(4002, http.StatusUnauthorized, "language model credential rejected")
	ErrUpstream       = New(4003, http.StatusBadGateway, "language model endpoint returned an error")
	ErrEmptyQuestion  = New(5001, http.StatusBadRequest, "question is empty")
	ErrInvalidConfig  = New(5002, http.StatusInternalServerError, "invalid configuration")
)

// HTTPStatus returns the status code attached to err, or 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// UserMessage renders err as the inline text shown next to a chat answer.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataNotFound):
		return "The loan dataset is missing. Place 'Training Dataset.csv' in the working directory and run loanquery-setup."
	case errors.Is(err, ErrIndexMissing):
		return "No index has been built yet. Run loanquery-setup (or use Run setup on the dashboard) first."
	case errors.Is(err, ErrIndexCorrupt):
		return "The index does not match its metadata. Rebuild it with loanquery-setup -force."
	case errors.Is(err, ErrAuthentication):
		return "The API key was rejected. Check the key in settings; showing a demo answer instead."
	case errors.Is(err, ErrNetwork):
		return "Could not reach the language model service; showing a demo answer instead."
	case errors.Is(err, ErrUpstream):
		return "The language model service returned an error; showing a demo answer instead."
	case errors.Is(err, ErrEmptyQuestion):
		return "Please type a question first."
	}
	return "Something went wrong: " + err.Error()
}
