package proc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState       = errors.New("operation not valid in current server state")
	ErrNotRunning         = errors.New("server process is not running")
	ErrUnauthorized       = errors.New("actor is not allowed to perform this action")
	ErrNotFound           = errors.New("announcement session not found")
	ErrExpired            = errors.New("announcement session expired")
	ErrNoChannelSelected  = errors.New("no destination channel selected")
	ErrStaleImage         = errors.New("image url is older than the session ttl")
	ErrChannelUnavailable = errors.New("destination channel unavailable")
	ErrValidation         = errors.New("invalid field value")
	ErrDelivery           = errors.New("announcement delivery failed")
)

// ErrForbidden is returned when someone other than the panel owner acts on it.
var ErrForbidden = ErrUnauthorized

// SpawnError wraps an OS-level failure to launch the server process.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func validationErrorf(format string, v ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, v...))
}
