// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package configstore

import (
	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

// ListSchedules returns a copy of every configured schedule.
func (s *Store) ListSchedules() []model.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Schedule, len(s.cfg.Schedules))
	copy(out, s.cfg.Schedules)
	return out
}

// GetSchedule returns the schedule with the given id.
func (s *Store) GetSchedule(id int) (model.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sch := range s.cfg.Schedules {
		if sch.ID == id {
			return sch, nil
		}
	}
	return model.Schedule{}, dberrors.NotFoundf("schedule %d", id)
}

// AddSchedule validates the record's struct tags and that database_id
// references a live database, assigns sch.ID, and persists it.
func (s *Store) AddSchedule(sch model.Schedule) (model.Schedule, error) {
	if err := model.Validate(&sch); err != nil {
		return model.Schedule{}, dberrors.Validationf("%v", err)
	}
	err := s.mutate(func(cfg *model.Config) error {
		if !databaseExists(cfg, sch.DatabaseID) {
			return dberrors.Validationf("schedule references unknown database %d", sch.DatabaseID)
		}
		sch.ID = nextID(cfg.Schedules, func(x model.Schedule) int { return x.ID })
		cfg.Schedules = append(cfg.Schedules, sch)
		return nil
	})
	if err != nil {
		return model.Schedule{}, err
	}
	return sch, nil
}

// UpdateSchedule replaces the stored record matching sch.ID. Used both
// for CRUD and for the scheduler's own last_run/next_run bookkeeping.
func (s *Store) UpdateSchedule(sch model.Schedule) error {
	if err := model.Validate(&sch); err != nil {
		return dberrors.Validationf("%v", err)
	}
	return s.mutate(func(cfg *model.Config) error {
		for i, existing := range cfg.Schedules {
			if existing.ID == sch.ID {
				cfg.Schedules[i] = sch
				return nil
			}
		}
		return dberrors.NotFoundf("schedule %d", sch.ID)
	})
}

// DeleteSchedule removes the schedule with the given id.
func (s *Store) DeleteSchedule(id int) error {
	return s.mutate(func(cfg *model.Config) error {
		for i, sch := range cfg.Schedules {
			if sch.ID == id {
				cfg.Schedules = append(cfg.Schedules[:i], cfg.Schedules[i+1:]...)
				return nil
			}
		}
		return dberrors.NotFoundf("schedule %d", id)
	})
}

func databaseExists(cfg *model.Config, id int) bool {
	for _, db := range cfg.Databases {
		if db.ID == id {
			return true
		}
	}
	return false
}
