package remote

import "fmt"

// ConflictError reports that the remote rejected a write because a newer
// version of the resource exists there.
type ConflictError struct {
	WorkspaceID string
	ResourceID  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %s in workspace %s was modified remotely", e.ResourceID, e.WorkspaceID)
}
