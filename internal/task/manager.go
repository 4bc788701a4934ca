// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package task implements the id-keyed task table of spec §4.7: every
// long-running pipeline operation gets a UUID, a thread-safe status
// record, and a live Progress handle (§5) that bridges into the table
// via callback. A subscriber Hub fans out task updates to anything
// watching a given id (the out-of-scope HTTP/WebSocket layer polls the
// table directly instead of holding a subscription).
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

var (
	tasksCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbmanager_tasks_created_total",
		Help: "Number of tasks created, by type.",
	}, []string{"type"})
	tasksCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbmanager_tasks_completed_total",
		Help: "Number of tasks reaching a terminal state, by type and outcome.",
	}, []string{"type", "outcome"})
	taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dbmanager_task_duration_seconds",
		Help:    "Wall-clock duration of tasks from creation to terminal state.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(tasksCreated, tasksCompleted, taskDuration)
}

// Manager is the thread-safe UUID->Task table of spec §4.7.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task

	hub *Hub
}

// NewManager builds an empty task table with its subscriber hub.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*model.Task), hub: newHub()}
}

// Hub returns the subscriber fan-out registry for this manager.
func (m *Manager) Hub() *Hub { return m.hub }

// Create inserts a new pending task and returns its id.
func (m *Manager) Create(taskType, description string) string {
	id := uuid.NewString()
	now := time.Now().UTC()
	t := &model.Task{
		ID:          id,
		Type:        taskType,
		Description: description,
		Status:      model.TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.tasks[id] = t
	m.mu.Unlock()

	tasksCreated.WithLabelValues(taskType).Inc()
	m.hub.publish(id, t.Clone())
	return id
}

// Get returns a copy of the task with the given id.
func (m *Manager) Get(id string) (model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return model.Task{}, dberrors.NotFoundf("task %s", id)
	}
	return *t, nil
}

// Update mutates fields of an in-flight task. Once a task has reached a
// terminal status, later Update calls are ignored (spec §5's
// cooperative-cancellation note: "the worker continues but its terminal
// write is ignored by the task record thereafter" applies symmetrically
// to any write after a terminal state).
func (m *Manager) Update(id string, status model.TaskStatus, progress int, message string) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok || isTerminal(t.Status) {
		m.mu.Unlock()
		return
	}
	t.Status = status
	t.Progress = progress
	t.Message = message
	t.UpdatedAt = time.Now().UTC()
	snapshot := t.Clone()
	m.mu.Unlock()

	m.hub.publish(id, snapshot)
}

// Complete marks a task completed with progress=100 and an optional
// result payload.
func (m *Manager) Complete(id string, result any) {
	m.finish(id, model.TaskCompleted, "", result)
}

// Fail marks a task failed with the given error.
func (m *Manager) Fail(id string, err error) {
	m.finish(id, model.TaskFailed, err.Error(), nil)
}

func (m *Manager) finish(id string, status model.TaskStatus, errMsg string, result any) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok || isTerminal(t.Status) {
		m.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	t.Status = status
	t.UpdatedAt = now
	t.CompletedAt = &now
	t.Error = errMsg
	t.Result = result
	if status == model.TaskCompleted {
		t.Progress = 100
	}
	duration := now.Sub(t.CreatedAt).Seconds()
	taskType := t.Type
	snapshot := t.Clone()
	m.mu.Unlock()

	outcome := "completed"
	if status == model.TaskFailed {
		outcome = "failed"
	}
	tasksCompleted.WithLabelValues(taskType, outcome).Inc()
	taskDuration.WithLabelValues(taskType).Observe(duration)
	m.hub.publish(id, snapshot)
}

func isTerminal(s model.TaskStatus) bool {
	return s == model.TaskCompleted || s == model.TaskFailed
}

// CleanupOlderThan removes completed/failed tasks whose CompletedAt is
// older than the given age, bounding the table's growth.
func (m *Manager) CleanupOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.tasks {
		if isTerminal(t.Status) && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}
