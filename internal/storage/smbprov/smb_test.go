// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package smbprov

import "testing"

func TestFullPathJoinsBaseAndKey(t *testing.T) {
	p := &Provider{cfg: Config{RemotePath: "backups"}}
	got := p.fullPath("1/acct_20260101_000000.dump")
	want := `backups\1\acct_20260101_000000.dump`
	if got != want {
		t.Fatalf("fullPath = %q, want %q", got, want)
	}
}

func TestFullPathWithoutBase(t *testing.T) {
	p := &Provider{cfg: Config{}}
	got := p.fullPath("backups/1/acct.dump")
	want := `backups\1\acct.dump`
	if got != want {
		t.Fatalf("fullPath = %q, want %q", got, want)
	}
}

func TestFullPathNormalizesLeadingSlashesAndBaseSlashes(t *testing.T) {
	p := &Provider{cfg: Config{RemotePath: "/data/backups/"}}
	got := p.fullPath("/backups/1/acct.dump")
	want := `data\backups\backups\1\acct.dump`
	if got != want {
		t.Fatalf("fullPath = %q, want %q", got, want)
	}
}

func TestMetadataKeySuffix(t *testing.T) {
	if got, want := metadataKey("backups/1/acct.dump"), "backups/1/acct.dump.metadata.json"; got != want {
		t.Fatalf("metadataKey = %q, want %q", got, want)
	}
}

func TestNewRequiresServerAndShare(t *testing.T) {
	if _, err := New(Config{Server: "", ShareName: "share"}); err == nil {
		t.Fatal("expected error for missing server")
	}
	if _, err := New(Config{Server: "host", ShareName: ""}); err == nil {
		t.Fatal("expected error for missing share name")
	}
	if _, err := New(Config{Server: "host", ShareName: "share"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
