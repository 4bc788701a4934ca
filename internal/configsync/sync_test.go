// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package configsync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dbvault/dbmanager/internal/model"
	"github.com/dbvault/dbmanager/internal/storage"
)

// memoryObjectStore is a minimal in-memory storage.Provider fake, swapped
// in through storage.Factory so tests never touch a real bucket.
type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	mtimes  map[string]int64
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{
		objects: make(map[string][]byte),
		meta:    make(map[string]map[string]string),
		mtimes:  make(map[string]int64),
	}
}

func (m *memoryObjectStore) Upload(ctx context.Context, localPath, key string, metadata map[string]string, dedupRef string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.meta[key] = metadata
	m.mtimes[key] = time.Now().Unix()
	m.mu.Unlock()
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
	delete(m.mtimes, key)
	return nil
}

func (m *memoryObjectStore) List(ctx context.Context, prefix string, maxKeys int) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for k, v := range m.objects {
		out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v)), Metadata: m.meta[k], LastModified: m.mtimes[k]})
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
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), Metadata: m.meta[key], LastModified: m.mtimes[key]}, true, nil
}

func (m *memoryObjectStore) TestConnection(ctx context.Context) error { return nil }
func (m *memoryObjectStore) Close() error                            { return nil }

func withFakeStorageFactory(t *testing.T, store *memoryObjectStore) {
	t.Helper()
	orig := storage.Factory
	storage.Factory = func(model.StorageTarget) (storage.Provider, error) { return store, nil }
	t.Cleanup(func() { storage.Factory = orig })
}

// fakeConfigStore is the minimal ConfigStore seam configsync.Syncer needs.
type fakeConfigStore struct {
	mu       sync.Mutex
	path     string
	targetID *int
	reloaded *model.Config
}

func (f *fakeConfigStore) Path() string               { return f.path }
func (f *fakeConfigStore) ConfigSyncTargetID() *int    { return f.targetID }
func (f *fakeConfigStore) Reload(cfg model.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := cfg
	f.reloaded = &c
}

func targetIDPtr(id int) *int { return &id }

func TestSyncToStorageUploadsConfigAndMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"databases":[]}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	backend := newMemoryObjectStore()
	withFakeStorageFactory(t, backend)

	store := &fakeConfigStore{path: path, targetID: targetIDPtr(1)}
	resolve := func(id int) (model.StorageTarget, error) {
		return model.StorageTarget{ID: id, Name: "mirror", Provider: model.TargetS3, Bucket: "cfg"}, nil
	}
	manager := storage.NewManager(nil)
	syncer := New(store, resolve, manager)

	if err := syncer.SyncToStorage(context.Background(), false); err != nil {
		t.Fatalf("SyncToStorage: %v", err)
	}

	if _, ok := backend.objects["config/config.json"]; !ok {
		t.Fatal("expected config object to be uploaded")
	}
	if _, ok := backend.objects["config/metadata.json"]; !ok {
		t.Fatal("expected metadata object to be uploaded")
	}
	if backend.meta["config/config.json"]["sync_time"] == "" {
		t.Fatal("expected sync_time metadata to be set")
	}
}

func TestSyncToStorageSilentSwallowsErrors(t *testing.T) {
	backend := newMemoryObjectStore()
	withFakeStorageFactory(t, backend)

	store := &fakeConfigStore{path: filepath.Join(t.TempDir(), "missing-config.json"), targetID: targetIDPtr(1)}
	resolve := func(id int) (model.StorageTarget, error) {
		return model.StorageTarget{ID: id, Name: "mirror", Provider: model.TargetS3, Bucket: "cfg"}, nil
	}
	manager := storage.NewManager(nil)
	syncer := New(store, resolve, manager)

	// Config file doesn't exist on disk; silent=true must swallow the error.
	if err := syncer.SyncToStorage(context.Background(), true); err != nil {
		t.Fatalf("expected silent sync to swallow the error, got %v", err)
	}

	// Non-silent must surface it.
	if err := syncer.SyncToStorage(context.Background(), false); err == nil {
		t.Fatal("expected non-silent sync to return the error")
	}
}

func TestSyncToStorageNoopWhenUnconfigured(t *testing.T) {
	backend := newMemoryObjectStore()
	withFakeStorageFactory(t, backend)

	store := &fakeConfigStore{path: filepath.Join(t.TempDir(), "config.json"), targetID: nil}
	manager := storage.NewManager(nil)
	syncer := New(store, nil, manager)

	if err := syncer.SyncToStorage(context.Background(), false); err != nil {
		t.Fatalf("expected no-op when config-sync target is unset, got %v", err)
	}
	if len(backend.objects) != 0 {
		t.Fatal("expected no objects uploaded when config-sync is unconfigured")
	}
}

func TestSyncFromStorageRefusesWhenLocalNewerNonInteractive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"databases":[]}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	backend := newMemoryObjectStore()
	withFakeStorageFactory(t, backend)
	backend.objects["config/config.json"] = []byte(`{"databases":[{"id":1}]}`)
	backend.mtimes["config/config.json"] = time.Now().Add(-1 * time.Hour).Unix()

	store := &fakeConfigStore{path: path, targetID: targetIDPtr(1)}
	resolve := func(id int) (model.StorageTarget, error) {
		return model.StorageTarget{ID: id, Name: "mirror", Provider: model.TargetS3, Bucket: "cfg"}, nil
	}
	manager := storage.NewManager(nil)
	syncer := New(store, resolve, manager)

	err := syncer.SyncFromStorage(context.Background(), false, false)
	if err == nil {
		t.Fatal("expected refusal when local config is newer than remote and non-interactive")
	}
}

func TestSyncFromStorageDownloadsAndReloadsWhenForced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"databases":[]}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	backend := newMemoryObjectStore()
	withFakeStorageFactory(t, backend)
	backend.objects["config/config.json"] = []byte(`{"databases":[{"id":42,"name":"remote-db","provider":"postgres"}]}`)
	backend.mtimes["config/config.json"] = time.Now().Unix()

	store := &fakeConfigStore{path: path, targetID: targetIDPtr(1)}
	resolve := func(id int) (model.StorageTarget, error) {
		return model.StorageTarget{ID: id, Name: "mirror", Provider: model.TargetS3, Bucket: "cfg"}, nil
	}
	manager := storage.NewManager(nil)
	syncer := New(store, resolve, manager)

	if err := syncer.SyncFromStorage(context.Background(), true, false); err != nil {
		t.Fatalf("SyncFromStorage: %v", err)
	}

	if store.reloaded == nil || len(store.reloaded.Databases) != 1 || store.reloaded.Databases[0].ID != 42 {
		t.Fatalf("expected Reload to be called with the downloaded config, got %+v", store.reloaded)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	backedUp := false
	for _, e := range entries {
		if e.Name() != "config.json" {
			backedUp = true
		}
	}
	if !backedUp {
		t.Fatal("expected a timestamped backup of the local config before overwrite")
	}
}
