package realtime

import "errors"

var (
	// ErrUnauthorized is returned when a setup credential is invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a user acts on a room they do not belong to.
	ErrForbidden = errors.New("forbidden")
	// ErrNotAuthenticated is returned for room events sent before setup.
	ErrNotAuthenticated = errors.New("connection is not authenticated")
	// ErrAlreadyAuthenticated is returned when setup is repeated on a connection.
	ErrAlreadyAuthenticated = errors.New("connection is already authenticated")
	// ErrInvalidEvent is returned for malformed or unknown inbound events.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("connection closed")
	// ErrUnavailable is returned when a collaborator needed for an event is not wired.
	ErrUnavailable = errors.New("service unavailable")
	// ErrRateLimited is returned when a connection sends faster than allowed.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// errorCode maps an error to the code carried in an outbound error event.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrAlreadyAuthenticated):
		return "already_authenticated"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid_event"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
