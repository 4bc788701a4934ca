// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"testing"

	"github.com/dbvault/dbmanager/internal/model"
	"github.com/dbvault/dbmanager/internal/storage"
)

func sha256Hex(t *testing.T, contents string) string {
	t.Helper()
	sum := sha256.Sum256([]byte(contents))
	return hex.EncodeToString(sum[:])
}

// memoryObjectStore is an in-memory storage.Provider backing a single
// fake storage target, letting tests exercise the s3 restore/verify
// paths without a real bucket.
type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte), meta: make(map[string]map[string]string)}
}

func (m *memoryObjectStore) put(key string, data []byte, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.meta[key] = metadata
}

func (m *memoryObjectStore) Upload(ctx context.Context, localPath, key string, metadata map[string]string, dedupRef string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.put(key, data, metadata)
	return nil
}

func (m *memoryObjectStore) Download(ctx context.Context, key, localPath string) error {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(localPath, data, 0o600)
}

func (m *memoryObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.meta, key)
	return nil
}

func (m *memoryObjectStore) List(ctx context.Context, prefix string, maxKeys int) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for k, v := range m.objects {
		out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v)), Metadata: m.meta[k]})
	}
	return out, nil
}

func (m *memoryObjectStore) GetInfo(ctx context.Context, key string) (storage.ObjectInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, false, nil
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), Metadata: m.meta[key]}, true, nil
}

func (m *memoryObjectStore) TestConnection(ctx context.Context) error { return nil }
func (m *memoryObjectStore) Close() error                            { return nil }

// withFakeStorageFactory swaps storage.Factory to hand back store for
// every target and restores the original on test cleanup.
func withFakeStorageFactory(t *testing.T, store *memoryObjectStore) {
	t.Helper()
	orig := storage.Factory
	storage.Factory = func(model.StorageTarget) (storage.Provider, error) { return store, nil }
	t.Cleanup(func() { storage.Factory = orig })
}

func TestVerifyRemoteUsesMetadataHashFallback(t *testing.T) {
	t.Parallel()

	backend := newMemoryObjectStore()
	withFakeStorageFactory(t, backend)

	store := newTestStore(t)
	target, err := store.AddStorageTarget(model.StorageTarget{Name: "primary", Provider: model.TargetS3, Bucket: "backups"})
	if err != nil {
		t.Fatalf("AddStorageTarget: %v", err)
	}
	db, err := store.AddDatabase(model.Database{
		Name: "accounts", Provider: model.ProviderSQLite, StorageTargetIDs: []int{target.ID},
	})
	if err != nil {
		t.Fatalf("AddDatabase: %v", err)
	}

	p := newTestPipeline(t, store, &fakeProvider{})

	key := "backups/1/accounts.sql"
	backend.put(key, []byte("dump contents"), map[string]string{"hash": sha256Hex(t, "dump contents")})

	result, err := p.Verify(context.Background(), key, LocationS3, db.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid=true via metadata hash fallback, got message %q", result.Message)
	}
}

func TestVerifyRemoteNotFoundOnAnyTarget(t *testing.T) {
	t.Parallel()

	backend := newMemoryObjectStore()
	withFakeStorageFactory(t, backend)

	store := newTestStore(t)
	target, _ := store.AddStorageTarget(model.StorageTarget{Name: "primary", Provider: model.TargetS3, Bucket: "backups"})
	db, _ := store.AddDatabase(model.Database{
		Name: "accounts", Provider: model.ProviderSQLite, StorageTargetIDs: []int{target.ID},
	})

	p := newTestPipeline(t, store, &fakeProvider{})

	_, err := p.Verify(context.Background(), "backups/1/does-not-exist.sql", LocationS3, db.ID)
	if err == nil {
		t.Fatal("expected an error for a key present on no configured target")
	}
}

func TestRestoreRemoteDownloadsAndRestores(t *testing.T) {
	t.Parallel()

	backend := newMemoryObjectStore()
	withFakeStorageFactory(t, backend)

	store := newTestStore(t)
	target, _ := store.AddStorageTarget(model.StorageTarget{Name: "primary", Provider: model.TargetS3, Bucket: "backups"})
	db, _ := store.AddDatabase(model.Database{
		Name: "accounts", Provider: model.ProviderSQLite, StorageTargetIDs: []int{target.ID},
	})

	provider := &fakeProvider{}
	p := newTestPipeline(t, store, provider)

	key := "backups/1/accounts.sql"
	backend.put(key, []byte("dump contents"), map[string]string{"hash": sha256Hex(t, "dump contents")})

	err := p.Restore(context.Background(), db.ID, key, LocationS3, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.restoredAt) != 1 {
		t.Fatalf("expected provider.Restore to be called once, got %d", len(provider.restoredAt))
	}
}
