package auth

import "errors"

var (
	// ErrAuthTimeout means the polling window elapsed before the user
	// completed authorization in the browser.
	ErrAuthTimeout = errors.New("authentication timed out")

	// ErrAuthExpired means the server invalidated the session before it
	// was completed.
	ErrAuthExpired = errors.New("authentication session expired")
)
