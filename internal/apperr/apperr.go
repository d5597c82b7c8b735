// Package apperr defines the error taxonomy shared by the workspace agent.
//
// Every error that crosses a package boundary is classified by wrapping one
// of the sentinel kinds below, so callers can use errors.Is regardless of how
// much context was added on the way up.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrNotFound indicates a missing project, type, mixin, or path.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a name collision or a failed type estimation.
	ErrConflict = errors.New("conflict")

	// ErrForbidden indicates an ACL denial.
	ErrForbidden = errors.New("forbidden")

	// ErrServer indicates an I/O, provider, or VCS backend failure.
	ErrServer = errors.New("server error")

	// ErrProjectTypeConstraint indicates an invalid combination of project types.
	ErrProjectTypeConstraint = errors.New("project type constraint violated")

	// ErrValueStorage indicates a value provider could not compute or store a value.
	ErrValueStorage = errors.New("value storage error")
)

var kinds = []error{
	ErrNotFound,
	ErrConflict,
	ErrForbidden,
	ErrProjectTypeConstraint,
	ErrValueStorage,
	ErrServer,
}

type kindError struct {
	kind error
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.err }

func newf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns an ErrNotFound error with a formatted message.
func NotFoundf(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

// Conflictf returns an ErrConflict error with a formatted message.
func Conflictf(format string, args ...any) error { return newf(ErrConflict, format, args...) }

// Forbiddenf returns an ErrForbidden error with a formatted message.
func Forbiddenf(format string, args ...any) error { return newf(ErrForbidden, format, args...) }

// Serverf returns an ErrServer error with a formatted message.
func Serverf(format string, args ...any) error { return newf(ErrServer, format, args...) }

// Constraintf returns an ErrProjectTypeConstraint error with a formatted message.
func Constraintf(format string, args ...any) error {
	return newf(ErrProjectTypeConstraint, format, args...)
}

// ValueStoragef returns an ErrValueStorage error with a formatted message.
func ValueStoragef(format string, args ...any) error { return newf(ErrValueStorage, format, args...) }

// Wrap classifies err as kind, keeping err in the chain.
func Wrap(kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, msg: msg, err: err}
}

// Kind returns the sentinel kind of err, or nil when err is unclassified.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ServerBoundary classifies any unclassified error as ErrServer. Already
// classified errors pass through unchanged.
func ServerBoundary(err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	return Wrap(ErrServer, err, "internal error")
}

// IsNotFound reports whether err is classified as ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is classified as ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsForbidden reports whether err is classified as ErrForbidden.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsServer reports whether err is classified as ErrServer.
func IsServer(err error) bool { return errors.Is(err, ErrServer) }

// IsConstraint reports whether err is classified as ErrProjectTypeConstraint.
func IsConstraint(err error) bool { return errors.Is(err, ErrProjectTypeConstraint) }

// IsValueStorage reports whether err is classified as ErrValueStorage.
func IsValueStorage(err error) bool { return errors.Is(err, ErrValueStorage) }
