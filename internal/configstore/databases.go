// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package configstore

import (
	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

// ListDatabases returns a copy of every registered database.
func (s *Store) ListDatabases() []model.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Database, len(s.cfg.Databases))
	copy(out, s.cfg.Databases)
	return out
}

// GetDatabase returns the database with the given id.
func (s *Store) GetDatabase(id int) (model.Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, db := range s.cfg.Databases {
		if db.ID == id {
			return db, nil
		}
	}
	return model.Database{}, dberrors.NotFoundf("database %d", id)
}

// AddDatabase validates the record's struct tags, that targetIDs
// reference live storage targets, assigns db.ID, and persists it.
func (s *Store) AddDatabase(db model.Database) (model.Database, error) {
	if err := model.Validate(&db); err != nil {
		return model.Database{}, dberrors.Validationf("%v", err)
	}
	if !model.ValidDBProviders[db.Provider] {
		return model.Database{}, dberrors.Validationf("unknown database provider %q", db.Provider)
	}

	err := s.mutate(func(cfg *model.Config) error {
		if err := validateTargetRefs(cfg, db.StorageTargetIDs); err != nil {
			return err
		}
		db.ID = nextID(cfg.Databases, func(d model.Database) int { return d.ID })
		cfg.Databases = append(cfg.Databases, db)
		return nil
	})
	if err != nil {
		return model.Database{}, err
	}
	return db, nil
}

// UpdateDatabase replaces the stored record matching db.ID.
func (s *Store) UpdateDatabase(db model.Database) error {
	if err := model.Validate(&db); err != nil {
		return dberrors.Validationf("%v", err)
	}
	if !model.ValidDBProviders[db.Provider] {
		return dberrors.Validationf("unknown database provider %q", db.Provider)
	}
	return s.mutate(func(cfg *model.Config) error {
		if err := validateTargetRefs(cfg, db.StorageTargetIDs); err != nil {
			return err
		}
		for i, existing := range cfg.Databases {
			if existing.ID == db.ID {
				cfg.Databases[i] = db
				return nil
			}
		}
		return dberrors.NotFoundf("database %d", db.ID)
	})
}

// RemoveDatabase deletes the database with the given id.
func (s *Store) RemoveDatabase(id int) error {
	return s.mutate(func(cfg *model.Config) error {
		for i, db := range cfg.Databases {
			if db.ID == id {
				cfg.Databases = append(cfg.Databases[:i], cfg.Databases[i+1:]...)
				return nil
			}
		}
		return dberrors.NotFoundf("database %d", id)
	})
}

func validateTargetRefs(cfg *model.Config, targetIDs []int) error {
	for _, id := range targetIDs {
		found := false
		for _, t := range cfg.StorageTargets {
			if t.ID == id {
				found = true
				break
			}
		}
		if !found {
			return dberrors.Validationf("storage_target_ids references unknown target %d", id)
		}
	}
	return nil
}
