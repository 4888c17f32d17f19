// Package syncengine reconciles a local, possibly offline-edited
// workspace against the remote persisted representation. Reconciliation
// is hash-based: resources whose content hash differs from the recorded
// sync metadata are pushed; overlapping edits resolve last-write-wins at
// the remote store.
package syncengine

import (
	"context"
	"sync/atomic"

	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/pkg/clock"
)

// RemoteStore is the remote persisted representation of workspaces.
type RemoteStore interface {
	SaveResource(ctx context.Context, workspaceID string, res Resource) error
	// LoadWorkspace returns nil when the workspace does not exist remotely.
	LoadWorkspace(ctx context.Context, workspaceID string) (*Snapshot, error)
}

// MetadataStore persists per-resource sync metadata across restarts.
type MetadataStore interface {
	// Get returns nil when no metadata exists for the resource.
	Get(resourceID string) (*Metadata, error)
	Put(meta Metadata) error
	All() ([]Metadata, error)
}

// Engine runs reconciliation passes. Only one SyncFromMemory pass may be
// in flight per instance; concurrent callers get ErrSyncInProgress.
type Engine struct {
	remote RemoteStore
	meta   MetadataStore
	clock  clock.Clock
	logger log.Log

	syncing atomic.Bool
}

func New(remote RemoteStore, meta MetadataStore, clk clock.Clock, logger log.Log) *Engine {
	return &Engine{
		remote: remote,
		meta:   meta,
		clock:  clk,
		logger: logger.With(log.String("component", "syncengine")),
	}
}

// IsSyncing reports whether a SyncFromMemory pass is in flight.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// SyncFromMemory pushes every new or modified resource of the snapshot to
// the remote store. A failed push is recorded and the batch continues;
// metadata is updated only for resources that were actually pushed.
func (e *Engine) SyncFromMemory(ctx context.Context, snap Snapshot) (Result, error) {
	if e.remote == nil || e.meta == nil {
		return Result{}, ErrEngineNotReady
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	var result Result
	for _, res := range snap.Resources {
		hash := hashContent(res.Content)

		existing, err := e.meta.Get(res.ID)
		if err != nil {
			result.Errors = append(result.Errors, SyncError{
				EntityType: res.Type,
				ResourceID: res.ID,
				Message:    err.Error(),
			})
			continue
		}
		if existing != nil && existing.ContentHash == hash {
			result.Skipped++
			continue
		}

		if err := e.remote.SaveResource(ctx, snap.WorkspaceID, res); err != nil {
			e.logger.Warn("resource push failed",
				log.String("resource_id", res.ID),
				log.String("resource_type", string(res.Type)),
				log.Error(err))
			result.Errors = append(result.Errors, SyncError{
				EntityType: res.Type,
				ResourceID: res.ID,
				Message:    err.Error(),
			})
			e.markModified(existing)
			continue
		}

		result.Pushed++
		if err := e.meta.Put(Metadata{
			ResourceID:   res.ID,
			ResourceType: res.Type,
			ContentHash:  hash,
			LastSyncTime: e.clock.Now().UTC(),
			Status:       StatusSynced,
		}); err != nil {
			result.Errors = append(result.Errors, SyncError{
				EntityType: res.Type,
				ResourceID: res.ID,
				Message:    err.Error(),
			})
		}
	}

	result.Success = len(result.Errors) == 0
	e.logger.Info("sync pass complete",
		log.String("workspace_id", snap.WorkspaceID),
		log.Int("pushed", result.Pushed),
		log.Int("skipped", result.Skipped),
		log.Int("errors", len(result.Errors)))
	return result, nil
}

// LoadFromDatabase pulls the authoritative remote representation. It is a
// read path and never mutates sync metadata. Returns nil when the
// workspace does not exist remotely.
func (e *Engine) LoadFromDatabase(ctx context.Context, workspaceID string) (*Snapshot, error) {
	if e.remote == nil {
		return nil, ErrEngineNotReady
	}
	return e.remote.LoadWorkspace(ctx, workspaceID)
}

// HasFileChanged is the cheap pre-check before attempting a push: true
// when no metadata exists or the stored hash differs.
func (e *Engine) HasFileChanged(resourceID string, content []byte) bool {
	meta, err := e.meta.Get(resourceID)
	if err != nil || meta == nil {
		return true
	}
	return meta.ContentHash != hashContent(content)
}

// RecordFileSync updates metadata for a resource synced through a channel
// other than SyncFromMemory, such as a single-resource save.
func (e *Engine) RecordFileSync(resourceID string, resourceType ResourceType, content []byte) error {
	return e.meta.Put(Metadata{
		ResourceID:   resourceID,
		ResourceType: resourceType,
		ContentHash:  hashContent(content),
		LastSyncTime: e.clock.Now().UTC(),
		Status:       StatusSynced,
	})
}

// GetSyncStats scans current metadata. O(n) in resource count and
// uncached; it is polled at low frequency.
func (e *Engine) GetSyncStats() (Stats, error) {
	all, err := e.meta.All()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalFiles: len(all)}
	for _, m := range all {
		if m.Status == StatusSynced {
			stats.SyncedFiles++
		} else {
			stats.ModifiedFiles++
		}
		if m.LastSyncTime.After(stats.LastSyncAt) {
			stats.LastSyncAt = m.LastSyncTime
		}
	}
	return stats, nil
}

func (e *Engine) markModified(existing *Metadata) {
	if existing == nil {
		return
	}
	existing.Status = StatusModified
	if err := e.meta.Put(*existing); err != nil {
		e.logger.Warn("failed to mark metadata modified",
			log.String("resource_id", existing.ResourceID),
			log.Error(err))
	}
}
