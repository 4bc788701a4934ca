// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package configstore implements the single-writer, atomically-written
// JSON configuration document of spec §4.1/§3: databases, storage
// targets, schedules, global settings, and the config-sync pointer.
// Every mutation is flushed by writing the whole document to a temp
// file and renaming it over the original, then (if a config-sync
// target is configured) mirrored to remote storage through an injected
// sync hook — failures from that hook are swallowed, never propagated
// to the mutator, per §4.1.
package configstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/logging"
	"github.com/dbvault/dbmanager/internal/model"
)

// SyncHook is invoked after every successful mutation; whether a
// config-sync target is configured is for the hook itself to check. It
// is set once via SetSyncHook; nil means no mirroring (e.g. in tests).
// Errors are logged, never returned to the caller.
type SyncHook func() error

// Store owns the single config document. All reads and writes go
// through its lock; nothing else is allowed to hold a second writable
// copy of the document.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *model.Config

	syncMu   sync.Mutex
	syncHook SyncHook
}

// New loads the document at path, starting from an empty in-memory
// document if it doesn't exist (nothing is written until the first
// mutation), and applies the one-shot legacy-key migration (§4.1, Design
// Note 3).
func New(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var cfg model.Config
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
			return nil, dberrors.Wrap(jsonErr, "parse config document %s", path)
		}
		s.cfg = &cfg
	case os.IsNotExist(err):
		s.cfg = &model.Config{}
	default:
		return nil, dberrors.Wrap(err, "read config document %s", path)
	}

	s.migrateLocked()
	return s, nil
}

// migrateLocked renames the legacy "s3_buckets" key to "storage_targets"
// and folds each database's legacy S3BucketID into StorageTargetIDs, if
// not already migrated. Must run before any caller observes the
// document. It persists the migration immediately so it only ever runs
// once.
func (s *Store) migrateLocked() {
	migrated := false

	if len(s.cfg.S3Buckets) > 0 {
		s.cfg.StorageTargets = append(s.cfg.StorageTargets, s.cfg.S3Buckets...)
		s.cfg.S3Buckets = nil
		migrated = true
	}

	for i := range s.cfg.Databases {
		db := &s.cfg.Databases[i]
		if db.S3BucketID == nil {
			continue
		}
		if !containsInt(db.StorageTargetIDs, *db.S3BucketID) {
			db.StorageTargetIDs = append(db.StorageTargetIDs, *db.S3BucketID)
		}
		db.S3BucketID = nil
		migrated = true
	}

	if migrated {
		logging.Info().Msg("migrated legacy s3_buckets/s3_bucket_id config keys to storage_targets/storage_target_ids")
		if err := s.persistLocked(); err != nil {
			logging.Warn().Err(err).Msg("failed to persist config migration")
		}
	}
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// SetSyncHook installs the config-sync mirror callback. Called once
// during wiring; nil is a valid value (disables mirroring).
func (s *Store) SetSyncHook(hook SyncHook) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.syncHook = hook
}

// persistLocked writes the document atomically: write to a temp file in
// the same directory, then rename over the original. Caller must hold
// s.mu for writing.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return dberrors.Wrap(err, "marshal config document")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dberrors.Wrap(err, "create config directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json.tmp")
	if err != nil {
		return dberrors.Wrap(err, "create temp config file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return dberrors.Wrap(err, "write temp config file")
	}
	if err := tmp.Close(); err != nil {
		return dberrors.Wrap(err, "close temp config file")
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return dberrors.Wrap(err, "chmod temp config file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return dberrors.Wrap(err, "rename temp config file into place")
	}
	return nil
}

// mutate runs fn with the write lock held, persists the result, and
// fires the sync hook (best-effort) on success, after releasing the
// write lock so the hook can read the store. fn returns an error to
// abort the mutation before it's ever persisted.
func (s *Store) mutate(fn func(*model.Config) error) error {
	s.mu.Lock()
	if err := fn(s.cfg); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.persistLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.syncMu.Lock()
	hook := s.syncHook
	s.syncMu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			logging.Warn().Err(err).Msg("config-sync mirror failed after mutation")
		}
	}
	return nil
}

func nextID[T any](existing []T, idOf func(T) int) int {
	max := 0
	for _, item := range existing {
		if id := idOf(item); id > max {
			max = id
		}
	}
	return max + 1
}
