// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStorageTargetCRUDAndDatabaseRefValidation(t *testing.T) {
	s := newTestStore(t)

	target, err := s.AddStorageTarget(model.StorageTarget{Name: "primary", Provider: model.TargetS3, Bucket: "backups"})
	if err != nil {
		t.Fatalf("AddStorageTarget: %v", err)
	}
	if target.ID != 1 {
		t.Fatalf("expected first id to be 1, got %d", target.ID)
	}

	second, err := s.AddStorageTarget(model.StorageTarget{Name: "secondary", Provider: model.TargetSMB})
	if err != nil {
		t.Fatalf("AddStorageTarget second: %v", err)
	}
	if second.ID != 2 {
		t.Fatalf("expected second id to be 2, got %d", second.ID)
	}

	if _, err := s.AddDatabase(model.Database{
		Name:             "acct",
		Provider:         model.ProviderPostgres,
		StorageTargetIDs: []int{999},
	}); err == nil {
		t.Fatal("expected validation error referencing unknown storage target")
	} else if kind, _ := dberrors.KindOf(err); kind != dberrors.Validation {
		t.Fatalf("expected Validation kind, got %v", kind)
	}

	db, err := s.AddDatabase(model.Database{
		Name:             "acct",
		Provider:         model.ProviderPostgres,
		StorageTargetIDs: []int{target.ID},
		Retention:        2,
	})
	if err != nil {
		t.Fatalf("AddDatabase: %v", err)
	}
	if db.ID != 1 {
		t.Fatalf("expected database id 1, got %d", db.ID)
	}

	if err := s.DeleteStorageTarget(target.ID); err == nil {
		t.Fatal("expected InUse error deleting a referenced target")
	} else if kind, _ := dberrors.KindOf(err); kind != dberrors.InUse {
		t.Fatalf("expected InUse kind, got %v", kind)
	}

	if err := s.DeleteStorageTarget(second.ID); err != nil {
		t.Fatalf("expected unreferenced target to delete cleanly: %v", err)
	}

	if err := s.RemoveDatabase(db.ID); err != nil {
		t.Fatalf("RemoveDatabase: %v", err)
	}
	if err := s.DeleteStorageTarget(target.ID); err != nil {
		t.Fatalf("expected target to delete once unreferenced: %v", err)
	}

	if _, err := s.GetDatabase(db.ID); err == nil {
		t.Fatal("expected NotFound after removal")
	} else if kind, _ := dberrors.KindOf(err); kind != dberrors.NotFound {
		t.Fatalf("expected NotFound kind, got %v", kind)
	}
}

func TestLegacyKeyMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	legacyBucketID := 5
	legacy := map[string]any{
		"s3_buckets": []map[string]any{
			{"id": 5, "name": "legacy-bucket", "provider": "s3", "bucket": "old"},
		},
		"databases": []map[string]any{
			{"id": 1, "name": "acct", "provider": "postgres", "s3_bucket_id": legacyBucketID},
		},
	}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal legacy fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write legacy fixture: %v", err)
	}

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	targets := s.ListStorageTargets()
	if len(targets) != 1 || targets[0].ID != 5 || targets[0].Name != "legacy-bucket" {
		t.Fatalf("expected migrated storage target, got %+v", targets)
	}

	db, err := s.GetDatabase(1)
	if err != nil {
		t.Fatalf("GetDatabase: %v", err)
	}
	found := false
	for _, id := range db.StorageTargetIDs {
		if id == legacyBucketID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected legacy s3_bucket_id folded into storage_target_ids, got %v", db.StorageTargetIDs)
	}

	persisted, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted config: %v", err)
	}
	var roundTrip map[string]any
	if err := json.Unmarshal(persisted, &roundTrip); err != nil {
		t.Fatalf("unmarshal persisted config: %v", err)
	}
	if _, present := roundTrip["s3_buckets"]; present {
		t.Fatal("expected legacy s3_buckets key to be dropped after migration persist")
	}
}

func TestMutationFiresSyncHookBestEffort(t *testing.T) {
	s := newTestStore(t)

	calls := 0
	s.SetSyncHook(func() error {
		calls++
		return nil
	})

	if _, err := s.AddStorageTarget(model.StorageTarget{Name: "t1", Provider: model.TargetS3}); err != nil {
		t.Fatalf("AddStorageTarget: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected sync hook called once, got %d", calls)
	}

	s.SetSyncHook(func() error { return dberrors.RemoteFailure(nil, "simulated sync failure") })
	if _, err := s.AddStorageTarget(model.StorageTarget{Name: "t2", Provider: model.TargetSMB}); err != nil {
		t.Fatalf("mutation must succeed even when sync hook fails: %v", err)
	}
}

func TestPersistenceAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.AddStorageTarget(model.StorageTarget{Name: "t", Provider: model.TargetS3}); err != nil {
		t.Fatalf("AddStorageTarget: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "config.json" {
			t.Fatalf("expected no leftover temp files, found %s", e.Name())
		}
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reopened.ListStorageTargets()) != 1 {
		t.Fatalf("expected persisted target to survive reopen")
	}
}
