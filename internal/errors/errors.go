package errors

import (
	"errors"
	"fmt"
)

// Base error types
var (
	ErrNotConnected            = errors.New("not connected to MongoDB")
	ErrMisconfiguredConnection = errors.New("configured connection string is not valid")
	ErrAuthenticationRequired  = errors.New("atlas API credentials are required")
	ErrTelemetrySendFailure    = errors.New("telemetry send failed")
	ErrCredentialRevocation    = errors.New("credential revocation failed")
	ErrInvalidArguments        = errors.New("invalid arguments")
	ErrInternal                = errors.New("internal error")
	ErrAPI                     = errors.New("management API error")
)

// Kind identifies the category of a failure raised by the server core.
type Kind string

const (
	KindNotConnected                Kind = "not_connected"
	KindMisconfiguredConnection     Kind = "misconfigured_connection"
	KindAuthenticationRequired      Kind = "authentication_required"
	KindTelemetrySendFailure        Kind = "telemetry_send_failure"
	KindCredentialRevocationFailure Kind = "credential_revocation_failure"
	KindInvalidArguments            Kind = "invalid_arguments"
	KindAPI                         Kind = "api"
	KindInternal                    Kind = "internal"
)

// Error is a failure tagged with an explicit Kind.
type Error struct {
	Kind Kind
	Op   string // Operation that failed (e.g. "ensure_connected", "revoke_credential")
	Err  error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.message()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.message())
}

func (e *Error) message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if s := sentinel(e.Kind); s != nil {
		return s.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if s := sentinel(e.Kind); s != nil && target == s {
		return true
	}
	return errors.Is(e.Err, target)
}

// New creates a new Error. A nil err is replaced by the sentinel for kind.
func New(kind Kind, op string, err error) *Error {
	if err == nil {
		err = sentinel(kind)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a new Error with a formatted underlying message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind carried by err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HasKind reports whether err carries an explicit Kind.
func HasKind(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Message returns the message of err without the operation prefix of the
// outermost Error it carries.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e == err {
		return e.message()
	}
	return err.Error()
}

// Helper functions

// IsNotConnected checks if an error is a missing-connection error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsAuthenticationRequired checks if an error is a missing-credentials error
func IsAuthenticationRequired(err error) bool {
	return errors.Is(err, ErrAuthenticationRequired)
}

func sentinel(kind Kind) error {
	switch kind {
	case KindNotConnected:
		return ErrNotConnected
	case KindMisconfiguredConnection:
		return ErrMisconfiguredConnection
	case KindAuthenticationRequired:
		return ErrAuthenticationRequired
	case KindTelemetrySendFailure:
		return ErrTelemetrySendFailure
	case KindCredentialRevocationFailure:
		return ErrCredentialRevocation
	case KindInvalidArguments:
		return ErrInvalidArguments
	case KindAPI:
		return ErrAPI
	case KindInternal:
		return ErrInternal
	default:
		return nil
	}
}
