// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package task

import (
	"sync"
	"time"

	"github.com/dbvault/dbmanager/internal/model"
)

// Status is the pipeline-internal progress state machine of spec §5,
// distinct from (and mapped onto) model.TaskStatus by the callback
// bridge below.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPreparing Status = "preparing"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) taskStatus() model.TaskStatus {
	switch s {
	case StatusCompleted:
		return model.TaskCompleted
	case StatusFailed:
		return model.TaskFailed
	case StatusIdle:
		return model.TaskPending
	default:
		return model.TaskRunning
	}
}

// Snapshot is a read-only copy of a Handle's fields, the value
// passed to callbacks and returned by Handle.Snapshot.
type Snapshot struct {
	Status     Status
	Percentage int
	Message    string
	Step       int
	TotalSteps int
	StartedAt  time.Time
	EndedAt    time.Time
	Err        error
}

// Callback receives a Snapshot after every mutation. It is always
// invoked outside the handle's lock to avoid priority inversion with
// whatever the callback itself does (e.g. acquiring the task table's
// lock); a panicking callback is recovered and swallowed, per spec §5.
type Callback func(Snapshot)

// Handle is the mutex-protected progress record of spec §5: every
// accessor acquires the lock, and the optional callback fires outside
// it after each update.
type Handle struct {
	mu       sync.Mutex
	snapshot Snapshot
	callback Callback
}

// NewHandle builds a Handle with totalSteps steps and starts it in
// StatusIdle. callback may be nil.
func NewHandle(totalSteps int, callback Callback) *Handle {
	return &Handle{
		snapshot: Snapshot{Status: StatusIdle, TotalSteps: totalSteps, StartedAt: time.Now().UTC()},
		callback: callback,
	}
}

func (h *Handle) mutate(fn func(*Snapshot)) {
	h.mu.Lock()
	fn(&h.snapshot)
	snap := h.snapshot
	h.mu.Unlock()

	h.invoke(snap)
}

func (h *Handle) invoke(snap Snapshot) {
	if h.callback == nil {
		return
	}
	defer func() { _ = recover() }()
	h.callback(snap)
}

// Begin transitions to StatusPreparing and records the start time.
func (h *Handle) Begin() {
	h.mutate(func(s *Snapshot) {
		s.Status = StatusPreparing
		s.StartedAt = time.Now().UTC()
	})
}

// Step advances to step n of TotalSteps, sets StatusRunning, and
// reports message; percentage is derived from n/TotalSteps.
func (h *Handle) Step(n int, message string) {
	h.mutate(func(s *Snapshot) {
		s.Status = StatusRunning
		s.Step = n
		s.Message = message
		if s.TotalSteps > 0 {
			s.Percentage = n * 100 / s.TotalSteps
		}
	})
}

// Update reports a message without advancing the step counter —
// satisfies dbprovider.Progress for mid-step tool output.
func (h *Handle) Update(message string) {
	h.mutate(func(s *Snapshot) {
		s.Status = StatusRunning
		s.Message = message
	})
}

// Complete transitions to StatusCompleted at 100%.
func (h *Handle) Complete() {
	h.mutate(func(s *Snapshot) {
		s.Status = StatusCompleted
		s.Percentage = 100
		s.Message = "completed"
		s.EndedAt = time.Now().UTC()
	})
}

// Fail transitions to StatusFailed carrying err.
func (h *Handle) Fail(err error) {
	h.mutate(func(s *Snapshot) {
		s.Status = StatusFailed
		s.Err = err
		s.Message = err.Error()
		s.EndedAt = time.Now().UTC()
	})
}

// Snapshot returns a copy of the current state.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot
}

// BindToTask returns a Callback that bridges a Handle's updates into a
// Manager-owned task record, mapping the five-state pipeline status
// onto model.TaskStatus and copying percentage/message/error, setting
// CompletedAt on terminal states (spec §4.7).
func BindToTask(m *Manager, taskID string) Callback {
	return func(snap Snapshot) {
		status := snap.Status.taskStatus()
		switch status {
		case model.TaskCompleted:
			m.Complete(taskID, nil)
		case model.TaskFailed:
			err := snap.Err
			if err == nil {
				err = errMessage(snap.Message)
			}
			m.Fail(taskID, err)
		default:
			m.Update(taskID, status, snap.Percentage, snap.Message)
		}
	}
}

type plainError string

func (e plainError) Error() string { return string(e) }

func errMessage(msg string) error {
	if msg == "" {
		msg = "task failed"
	}
	return plainError(msg)
}
