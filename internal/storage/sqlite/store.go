// Package sqlite persists local state that must survive restarts: the
// per-resource sync metadata and the mode preference. Everything else in
// the application is in-memory.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/modelworks/modelsync/internal/core/mode"
	"github.com/modelworks/modelsync/internal/core/syncengine"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_metadata (
	resource_id    TEXT PRIMARY KEY,
	resource_type  TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	last_sync_time INTEGER NOT NULL,
	status         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mode_preference (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	mode               TEXT NOT NULL,
	is_manual_override INTEGER NOT NULL
);
`

// Store is a sqlite-backed persistence layer. It serves as the engine's
// metadata store and the mode controller's preference store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns nil when no metadata exists for the resource.
func (s *Store) Get(resourceID string) (*syncengine.Metadata, error) {
	row := s.db.QueryRow(
		`SELECT resource_id, resource_type, content_hash, last_sync_time, status
		 FROM sync_metadata WHERE resource_id = ?`, resourceID)

	meta, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query sync metadata")
	}
	return meta, nil
}

func (s *Store) Put(meta syncengine.Metadata) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_metadata (resource_id, resource_type, content_hash, last_sync_time, status)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (resource_id) DO UPDATE SET
			resource_type = excluded.resource_type,
			content_hash = excluded.content_hash,
			last_sync_time = excluded.last_sync_time,
			status = excluded.status`,
		meta.ResourceID, string(meta.ResourceType), meta.ContentHash,
		meta.LastSyncTime.UnixNano(), string(meta.Status))
	return errors.Wrap(err, "upsert sync metadata")
}

func (s *Store) All() ([]syncengine.Metadata, error) {
	rows, err := s.db.Query(
		`SELECT resource_id, resource_type, content_hash, last_sync_time, status
		 FROM sync_metadata`)
	if err != nil {
		return nil, errors.Wrap(err, "query sync metadata")
	}
	defer rows.Close()

	var metas []syncengine.Metadata
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan sync metadata")
		}
		metas = append(metas, *meta)
	}
	return metas, errors.Wrap(rows.Err(), "iterate sync metadata")
}

// LoadMode returns nil when no preference has ever been saved.
func (s *Store) LoadMode() (*mode.State, error) {
	var value string
	var manual bool
	err := s.db.QueryRow(
		`SELECT mode, is_manual_override FROM mode_preference WHERE id = 1`).
		Scan(&value, &manual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query mode preference")
	}
	return &mode.State{Value: mode.Value(value), IsManualOverride: manual}, nil
}

func (s *Store) SaveMode(state mode.State) error {
	_, err := s.db.Exec(
		`INSERT INTO mode_preference (id, mode, is_manual_override)
		 VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			mode = excluded.mode,
			is_manual_override = excluded.is_manual_override`,
		string(state.Value), state.IsManualOverride)
	return errors.Wrap(err, "upsert mode preference")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row scanner) (*syncengine.Metadata, error) {
	var meta syncengine.Metadata
	var resourceType, status string
	var lastSync int64
	if err := row.Scan(&meta.ResourceID, &resourceType, &meta.ContentHash, &lastSync, &status); err != nil {
		return nil, err
	}
	meta.ResourceType = syncengine.ResourceType(resourceType)
	meta.Status = syncengine.SyncStatus(status)
	meta.LastSyncTime = time.Unix(0, lastSync).UTC()
	return &meta, nil
}
