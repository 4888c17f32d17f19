package mode

import "errors"

// ErrAuthRequired signals that the caller must complete the
// authentication flow before the transition can be retried.
var ErrAuthRequired = errors.New("authentication required to go online")
