// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package configstore

import "github.com/dbvault/dbmanager/internal/model"

// GlobalSettings returns a copy of the current compression/encryption
// settings.
func (s *Store) GlobalSettings() model.GlobalSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.GlobalSettings
}

// UpdateGlobalSettings replaces the compression/encryption block.
func (s *Store) UpdateGlobalSettings(gs model.GlobalSettings) error {
	return s.mutate(func(cfg *model.Config) error {
		cfg.GlobalSettings = gs
		return nil
	})
}

// ConfigSyncTargetID returns the currently nominated config-sync
// storage target, if any.
func (s *Store) ConfigSyncTargetID() *int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.ConfigSyncBucketID == nil {
		return nil
	}
	id := *s.cfg.ConfigSyncBucketID
	return &id
}

// SetConfigSyncTargetID nominates (or clears, with nil) the storage
// target config-sync mirrors the document to.
func (s *Store) SetConfigSyncTargetID(id *int) error {
	return s.mutate(func(cfg *model.Config) error {
		cfg.ConfigSyncBucketID = id
		return nil
	})
}

// Auth returns a copy of the auth settings block.
func (s *Store) Auth() model.AuthSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Auth
}

// Path returns the on-disk location of the document (used by configsync
// for mtime comparisons and timestamped backups).
func (s *Store) Path() string { return s.path }

// Raw returns the full document, for config-sync marshaling. Callers
// must not mutate the returned value's slices/maps in place.
func (s *Store) Raw() model.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Reload swaps the in-memory snapshot for cfg under the write lock,
// implementing the hot-reload design note: after config-sync downloads
// a newer remote document and atomically replaces the local file, it
// calls Reload to make the new content visible without restarting the
// process.
func (s *Store) Reload(cfg model.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &cfg
}
