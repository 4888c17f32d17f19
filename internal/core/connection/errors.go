package connection

import "errors"

var (
	ErrAlreadyConnected   = errors.New("connection is already open or connecting")
	ErrConnectionDisposed = errors.New("connection has been disposed")
)
