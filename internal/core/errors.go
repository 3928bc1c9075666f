package core

import "errors"

// Error codes for client errors.
const (
	ErrCodeConfiguration  = "configuration"
	ErrCodeInvalidHandler = "invalid_handler"
	ErrCodeNotConnected   = "not_connected"
	ErrCodeLoginInFlight  = "login_in_flight"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrInvalidHandler = errors.New("invalid message handler")
	ErrNotConnected   = errors.New("not connected")
	ErrLoginInFlight  = errors.New("login already in flight")
)

// CoreError wraps a code and human-readable message around one of the
// sentinel errors above, so errors.Is works against the sentinel.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}
