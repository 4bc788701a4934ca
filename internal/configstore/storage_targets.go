// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package configstore

import (
	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

// ListStorageTargets returns a copy of every configured storage target.
func (s *Store) ListStorageTargets() []model.StorageTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StorageTarget, len(s.cfg.StorageTargets))
	copy(out, s.cfg.StorageTargets)
	return out
}

// GetStorageTarget returns the target with the given id.
func (s *Store) GetStorageTarget(id int) (model.StorageTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.cfg.StorageTargets {
		if t.ID == id {
			return t, nil
		}
	}
	return model.StorageTarget{}, dberrors.NotFoundf("storage target %d", id)
}

// AddStorageTarget validates the record's struct tags, assigns t.ID, and
// persists it.
func (s *Store) AddStorageTarget(t model.StorageTarget) (model.StorageTarget, error) {
	if err := model.Validate(&t); err != nil {
		return model.StorageTarget{}, dberrors.Validationf("%v", err)
	}
	err := s.mutate(func(cfg *model.Config) error {
		t.ID = nextID(cfg.StorageTargets, func(x model.StorageTarget) int { return x.ID })
		cfg.StorageTargets = append(cfg.StorageTargets, t)
		return nil
	})
	if err != nil {
		return model.StorageTarget{}, err
	}
	return t, nil
}

// UpdateStorageTarget replaces the stored record matching t.ID.
func (s *Store) UpdateStorageTarget(t model.StorageTarget) error {
	if err := model.Validate(&t); err != nil {
		return dberrors.Validationf("%v", err)
	}
	return s.mutate(func(cfg *model.Config) error {
		for i, existing := range cfg.StorageTargets {
			if existing.ID == t.ID {
				cfg.StorageTargets[i] = t
				return nil
			}
		}
		return dberrors.NotFoundf("storage target %d", t.ID)
	})
}

// DeleteStorageTarget refuses with dberrors.InUse when id is still
// referenced by a database or by the config-sync pointer (spec §4.3).
func (s *Store) DeleteStorageTarget(id int) error {
	return s.mutate(func(cfg *model.Config) error {
		if inUseLocked(cfg, id) {
			return dberrors.InUsef("storage target %d is referenced by a database or config-sync", id)
		}
		for i, t := range cfg.StorageTargets {
			if t.ID == id {
				cfg.StorageTargets = append(cfg.StorageTargets[:i], cfg.StorageTargets[i+1:]...)
				return nil
			}
		}
		return dberrors.NotFoundf("storage target %d", id)
	})
}

func inUseLocked(cfg *model.Config, id int) bool {
	if cfg.ConfigSyncBucketID != nil && *cfg.ConfigSyncBucketID == id {
		return true
	}
	for _, db := range cfg.Databases {
		if containsInt(db.StorageTargetIDs, id) {
			return true
		}
	}
	return false
}

// IsTargetInUse reports whether id is referenced by any database or by
// the config-sync pointer. Exposed so storage.Manager (which owns the
// InUse guard presented to API callers) can be wired without an import
// cycle back into configstore.
func (s *Store) IsTargetInUse(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inUseLocked(s.cfg, id)
}
