// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package model

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestUserMarshalUnmarshalRoundTrip(t *testing.T) {
	u := User{
		ID: 7,
		Extra: map[string]any{
			"username":      "alice",
			"password_hash": "$2a$10$abc",
			"roles":         []any{"admin"},
		},
	}

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out User
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if out.ID != u.ID {
		t.Fatalf("ID = %d, want %d", out.ID, u.ID)
	}
	if out.Extra["username"] != "alice" {
		t.Fatalf("Extra[username] = %v, want alice", out.Extra["username"])
	}
	if out.Extra["password_hash"] != "$2a$10$abc" {
		t.Fatalf("Extra[password_hash] lost on round trip: %v", out.Extra["password_hash"])
	}
	if _, stillThere := out.Extra["id"]; stillThere {
		t.Fatal("id field should be lifted out of Extra, not duplicated")
	}
}

func TestUserMarshalOmitsEmptyExtra(t *testing.T) {
	u := User{ID: 3}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected only the id field, got %v", raw)
	}
}
