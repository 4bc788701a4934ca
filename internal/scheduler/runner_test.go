// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dbvault/dbmanager/internal/model"
)

// fakeConfigStore is a scheduler.ConfigStore stub backed by an
// in-memory schedule slice, avoiding a dependency on configstore's
// on-disk JSON store for unit tests of the polling loop itself.
type fakeConfigStore struct {
	mu        sync.Mutex
	schedules map[int]model.Schedule
	databases map[int]model.Database
	updates   []model.Schedule
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{schedules: make(map[int]model.Schedule), databases: make(map[int]model.Database)}
}

func (f *fakeConfigStore) ListSchedules() []model.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Schedule, 0, len(f.schedules))
	for _, s := range f.schedules {
		out = append(out, s)
	}
	return out
}

func (f *fakeConfigStore) GetDatabase(id int) (model.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	db, ok := f.databases[id]
	if !ok {
		return model.Database{}, fmt.Errorf("database %d not found", id)
	}
	return db, nil
}

func (f *fakeConfigStore) UpdateSchedule(sch model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[sch.ID] = sch
	f.updates = append(f.updates, sch)
	return nil
}

func newRunnerTestFixture(t *testing.T) (*fakeConfigStore, *Runner, *int32Counter) {
	t.Helper()
	store := newFakeConfigStore()
	store.databases[1] = model.Database{ID: 1, Name: "accounts"}

	calls := &int32Counter{}
	runner := NewRunner(store, func(ctx context.Context, dbID int, tag string) (string, error) {
		calls.add(1)
		return "/tmp/fake.sql", nil
	})
	return store, runner, calls
}

type int32Counter struct {
	mu  sync.Mutex
	val int
}

func (c *int32Counter) add(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val += n
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

func TestTickPrimesNextRunWithoutFiring(t *testing.T) {
	t.Parallel()

	store, runner, calls := newRunnerTestFixture(t)
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	runner.nowFunc = func() time.Time { return now }

	store.schedules[1] = model.Schedule{ID: 1, DatabaseID: 1, CronExpression: "0 3 * * *", Enabled: true}

	runner.tick(context.Background())

	if calls.get() != 0 {
		t.Errorf("expected no backup fired on the priming tick, got %d calls", calls.get())
	}
	updated := store.schedules[1]
	if updated.NextRun == nil {
		t.Fatal("expected NextRun to be primed")
	}
}

func TestTickFiresWhenNextRunHasPassed(t *testing.T) {
	t.Parallel()

	store, runner, calls := newRunnerTestFixture(t)
	now := time.Date(2026, 7, 31, 3, 0, 1, 0, time.UTC)
	past := now.Add(-time.Minute)
	runner.nowFunc = func() time.Time { return now }

	store.schedules[1] = model.Schedule{ID: 1, DatabaseID: 1, CronExpression: "0 3 * * *", Enabled: true, NextRun: &past}

	runner.tick(context.Background())

	if calls.get() != 1 {
		t.Fatalf("expected exactly 1 backup fired, got %d", calls.get())
	}
	updated := store.schedules[1]
	if updated.NextRun == nil || !updated.NextRun.After(now) {
		t.Errorf("expected NextRun advanced past %v, got %v", now, updated.NextRun)
	}
	if updated.LastRun == nil || !updated.LastRun.Equal(now) {
		t.Errorf("expected LastRun recorded as %v, got %v", now, updated.LastRun)
	}
}

func TestTickSkipsDisabledSchedule(t *testing.T) {
	t.Parallel()

	store, runner, calls := newRunnerTestFixture(t)
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runner.nowFunc = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	store.schedules[1] = model.Schedule{ID: 1, DatabaseID: 1, CronExpression: "0 3 * * *", Enabled: false, NextRun: &past}

	runner.tick(context.Background())

	if calls.get() != 0 {
		t.Errorf("expected a disabled schedule never to fire, got %d calls", calls.get())
	}
}

func TestTickSkipsScheduleForMissingDatabase(t *testing.T) {
	t.Parallel()

	store, runner, calls := newRunnerTestFixture(t)
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runner.nowFunc = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	store.schedules[1] = model.Schedule{ID: 1, DatabaseID: 999, CronExpression: "0 3 * * *", Enabled: true, NextRun: &past}

	runner.tick(context.Background())

	if calls.get() != 0 {
		t.Errorf("expected a schedule pointing at a missing database never to fire, got %d calls", calls.get())
	}
}

func TestTickSkipsInvalidCronExpression(t *testing.T) {
	t.Parallel()

	store, runner, calls := newRunnerTestFixture(t)
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runner.nowFunc = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	store.schedules[1] = model.Schedule{ID: 1, DatabaseID: 1, CronExpression: "garbage", Enabled: true, NextRun: &past}

	runner.tick(context.Background())

	if calls.get() != 0 {
		t.Errorf("expected an invalid cron expression never to fire, got %d calls", calls.get())
	}
}

func TestServeStopsOnContextCancellation(t *testing.T) {
	t.Parallel()

	_, runner, _ := newRunnerTestFixture(t)
	runner.nowFunc = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runner.Serve(ctx); err == nil {
		t.Error("expected Serve to return ctx.Err() once cancelled")
	}
}

func TestRunnerString(t *testing.T) {
	t.Parallel()

	_, runner, _ := newRunnerTestFixture(t)
	if runner.String() != "schedule-runner" {
		t.Errorf("String() = %q, want %q", runner.String(), "schedule-runner")
	}
}
