package errdefs

import "errors"

type ErrorType int

const (
	ErrTypeServiceUnavailable ErrorType = iota
	ErrTypeActivationFailed
	ErrTypeDeactivationFailed
	ErrTypeConnectivityCheckFailed
	ErrTypeInitializationFailed
	ErrTypeGeneric
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeServiceUnavailable:
		return "service unavailable"
	case ErrTypeActivationFailed:
		return "activation failed"
	case ErrTypeDeactivationFailed:
		return "deactivation failed"
	case ErrTypeConnectivityCheckFailed:
		return "connectivity check failed"
	case ErrTypeInitializationFailed:
		return "initialization failed"
	default:
		return "error"
	}
}

type CustomError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *CustomError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *CustomError) Unwrap() error {
	return e.Cause
}

// Is matches any CustomError of the same Type, so a sentinel can be compared
// against errors that carry a cause.
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func NewCustomError(errType ErrorType, message string) error {
	return &CustomError{
		Type:    errType,
		Message: message,
	}
}

func wrap(errType ErrorType, cause error) error {
	return &CustomError{
		Type:    errType,
		Message: errType.String(),
		Cause:   cause,
	}
}

func NewActivationFailed(cause error) error {
	return wrap(ErrTypeActivationFailed, cause)
}

func NewDeactivationFailed(cause error) error {
	return wrap(ErrTypeDeactivationFailed, cause)
}

func NewConnectivityCheckFailed(cause error) error {
	return wrap(ErrTypeConnectivityCheckFailed, cause)
}

func NewInitializationFailed(cause error) error {
	return wrap(ErrTypeInitializationFailed, cause)
}

// IsType reports whether err, or anything it wraps, is a CustomError of errType.
func IsType(err error, errType ErrorType) bool {
	var ce *CustomError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Type == errType
}

var (
	ErrServiceUnavailable = NewCustomError(ErrTypeServiceUnavailable, "network service unavailable")
	ErrActivationFailed   = NewCustomError(ErrTypeActivationFailed, "activation failed")
	ErrDeactivationFailed = NewCustomError(ErrTypeDeactivationFailed, "deactivation failed")
	ErrConnectivityCheck  = NewCustomError(ErrTypeConnectivityCheckFailed, "connectivity check failed")
	ErrInitialization     = NewCustomError(ErrTypeInitializationFailed, "initialization failed")
)

// Device failure reason codes reported alongside device state changes.
const (
	ErrBadCredentials   = "bad-credentials"
	ErrUserCanceled     = "user-canceled"
	ErrNoSuchSSID       = "no-such-ssid"
	ErrDhcpTimeout      = "dhcp-timeout"
	ErrAssocTimeout     = "assoc-timeout"
	ErrConnectionFailed = "connection-failed"
)
