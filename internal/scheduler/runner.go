// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package scheduler

import (
	"context"
	"time"

	"github.com/dbvault/dbmanager/internal/logging"
	"github.com/dbvault/dbmanager/internal/model"
)

// ConfigStore is the narrow slice of *configstore.Store the runner
// needs, kept local to avoid a scheduler -> configstore -> ... import
// cycle and to make the runner trivially fakeable in tests.
type ConfigStore interface {
	ListSchedules() []model.Schedule
	GetDatabase(id int) (model.Database, error)
	UpdateSchedule(sch model.Schedule) error
}

// PollInterval is how often the runner re-checks every enabled
// schedule's due time. A minute granularity matches cron's own.
const PollInterval = time.Minute

// Runner is a suture.Service (Serve/String) that polls enabled
// schedules once per PollInterval and fires any whose NextRun has
// passed, the in-process equivalent of the OS crontab entries CronLine
// describes, grounded on the donor's runScheduler timer/select loop
// generalized from a single interval to per-database cron schedules.
type Runner struct {
	Config  ConfigStore
	Backup  func(ctx context.Context, dbID int, tag string) (string, error)
	nowFunc func() time.Time
}

// NewRunner builds a Runner backed by cfg and the given backup
// function (typically (*pipeline.Pipeline).Backup with a nil progress
// handle, since scheduled runs are unattended).
func NewRunner(cfg ConfigStore, backup func(ctx context.Context, dbID int, tag string) (string, error)) *Runner {
	return &Runner{Config: cfg, Backup: backup, nowFunc: time.Now}
}

// Serve implements suture.Service: it ticks every PollInterval until
// ctx is cancelled, firing due schedules on each tick.
func (r *Runner) Serve(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (r *Runner) String() string { return "schedule-runner" }

func (r *Runner) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now()
}

// tick evaluates every enabled schedule once. A schedule with no
// recorded NextRun is given one without running (first tick after
// creation just primes the clock, matching cron's own behavior of
// never firing retroactively for time already elapsed before it was
// installed).
func (r *Runner) tick(ctx context.Context) {
	now := r.now()
	for _, sched := range r.Config.ListSchedules() {
		if !sched.Enabled {
			continue
		}
		if _, err := r.Config.GetDatabase(sched.DatabaseID); err != nil {
			logging.Warn().Int("schedule_id", sched.ID).Int("database_id", sched.DatabaseID).Msg("schedule references missing database, skipping")
			continue
		}

		next, err := NextRun(sched.CronExpression, now)
		if err != nil {
			logging.Warn().Int("schedule_id", sched.ID).Err(err).Msg("schedule has invalid cron expression, skipping")
			continue
		}

		if sched.NextRun == nil {
			r.recordNext(sched, next)
			continue
		}
		if sched.NextRun.After(now) {
			continue
		}

		r.fire(ctx, sched, now, next)
	}
}

func (r *Runner) fire(ctx context.Context, sched model.Schedule, now, next time.Time) {
	logging.Info().Int("schedule_id", sched.ID).Int("database_id", sched.DatabaseID).Msg("scheduled backup firing")
	if _, err := r.Backup(ctx, sched.DatabaseID, ""); err != nil {
		logging.Error().Err(err).Int("database_id", sched.DatabaseID).Msg("scheduled backup failed")
	}
	r.recordNext(sched, next, now)
}

func (r *Runner) recordNext(sched model.Schedule, next time.Time, lastRun ...time.Time) {
	sched.NextRun = &next
	if len(lastRun) > 0 {
		t := lastRun[0]
		sched.LastRun = &t
	}
	if err := r.Config.UpdateSchedule(sched); err != nil {
		logging.Warn().Err(err).Int("schedule_id", sched.ID).Msg("failed to persist schedule timestamps")
	}
}
