package syncengine

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ResourceType classifies the syncable units of a workspace.
type ResourceType string

const (
	ResourceTable           ResourceType = "table"
	ResourceRelationship    ResourceType = "relationship"
	ResourceDataFlowDiagram ResourceType = "data_flow_diagram"
)

// Resource is one syncable unit of a workspace snapshot.
type Resource struct {
	ID      string       `json:"id"`
	Type    ResourceType `json:"type"`
	Content []byte       `json:"content"`
}

// Snapshot is the in-memory representation of a workspace handed to the
// engine for reconciliation.
type Snapshot struct {
	WorkspaceID string     `json:"workspace_id"`
	Resources   []Resource `json:"resources"`
}

// SyncStatus of a tracked resource.
type SyncStatus string

const (
	StatusSynced   SyncStatus = "synced"
	StatusModified SyncStatus = "modified"
	StatusNew      SyncStatus = "new"
)

// Metadata is the per-resource sync record used to compute the minimal
// push set.
type Metadata struct {
	ResourceID   string
	ResourceType ResourceType
	ContentHash  string
	LastSyncTime time.Time
	Status       SyncStatus
}

// SyncError describes one resource that failed to push.
type SyncError struct {
	EntityType ResourceType
	ResourceID string
	Message    string
}

// Result is the outcome of one reconciliation pass. Never persisted.
type Result struct {
	Success bool
	Pushed  int
	Skipped int
	Errors  []SyncError
}

// Stats summarizes current sync metadata.
type Stats struct {
	TotalFiles    int
	SyncedFiles   int
	ModifiedFiles int
	LastSyncAt    time.Time
}

func hashContent(content []byte) string {
	return strconv.FormatUint(xxhash.Sum64(content), 16)
}
