// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package task

import (
	"sort"
	"sync"

	"github.com/dbvault/dbmanager/internal/model"
)

// subscriber is one registered watcher of a single task id's updates.
type subscriber struct {
	seq int64
	ch  chan model.Task
}

// Hub fans task-update events out to subscribers registered against a
// specific task id. It never blocks a publisher: an update for a
// subscriber whose channel is full is dropped (the subscriber stays
// registered) rather than stalling the pipeline that produced it,
// matching the donor hub's non-blocking-send
// behavior adapted here from a multi-client broadcast to a per-task
// watch list.
type Hub struct {
	mu      sync.Mutex
	subs    map[string][]*subscriber
	nextSeq int64
}

func newHub() *Hub {
	return &Hub{subs: make(map[string][]*subscriber)}
}

// Subscribe registers a new watcher for taskID and returns a channel
// that receives every subsequent update (buffered, so a slow reader
// doesn't stall the publisher) and an unsubscribe function. Callers
// should unsubscribe once the task reaches a terminal state or they
// stop watching.
func (h *Hub) Subscribe(taskID string) (<-chan model.Task, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	sub := &subscriber{seq: h.nextSeq, ch: make(chan model.Task, 16)}
	h.subs[taskID] = append(h.subs[taskID], sub)

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.subs[taskID]
		for i, s := range list {
			if s == sub {
				h.subs[taskID] = append(list[:i], list[i+1:]...)
				close(sub.ch)
				break
			}
		}
		if len(h.subs[taskID]) == 0 {
			delete(h.subs, taskID)
		}
	}
	return sub.ch, unsubscribe
}

// publish delivers snapshot to every subscriber of taskID, in
// deterministic subscription order, dropping instead of blocking on any
// full channel.
func (h *Hub) publish(taskID string, snapshot model.Task) {
	h.mu.Lock()
	list := append([]*subscriber(nil), h.subs[taskID]...)
	h.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	for _, sub := range list {
		select {
		case sub.ch <- snapshot:
		default:
		}
	}
}

// SubscriberCount reports how many watchers are registered for taskID,
// used by tests and diagnostics.
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}
