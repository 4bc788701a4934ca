// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package task

import (
	"testing"
	"time"
)

func TestHubSubscribeAndPublish(t *testing.T) {
	m := NewManager()
	id := m.Create("backup", "watched")

	ch, unsubscribe := m.Hub().Subscribe(id)
	defer unsubscribe()

	if got := m.Hub().SubscriberCount(id); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	m.Update(id, "running", 10, "dumping")

	select {
	case update := <-ch:
		if update.Progress != 10 || update.Message != "dumping" {
			t.Fatalf("unexpected update: %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published update")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager()
	id := m.Create("backup", "watched")

	ch, unsubscribe := m.Hub().Subscribe(id)
	unsubscribe()

	if got := m.Hub().SubscriberCount(id); got != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", got)
	}

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestHubPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	m := NewManager()
	id := m.Create("backup", "slow-consumer")

	_, unsubscribe := m.Hub().Subscribe(id)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			m.Update(id, "running", i, "tick")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}
}
