package syncengine

import "errors"

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrEngineNotReady = errors.New("sync engine is not initialized")
)
