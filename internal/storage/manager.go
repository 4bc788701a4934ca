// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/logging"
	"github.com/dbvault/dbmanager/internal/model"
	"github.com/dbvault/dbmanager/internal/storage/s3prov"
	"github.com/dbvault/dbmanager/internal/storage/smbprov"
)

// Factory constructs the concrete Provider for a target. Exposed as a
// variable so tests can substitute a fake provider.
var Factory = func(t model.StorageTarget) (Provider, error) {
	switch {
	case t.Provider == model.TargetSMB:
		return smbprov.New(smbprov.Config{
			Server:     t.Server,
			ShareName:  t.ShareName,
			Username:   t.SMBUser,
			Password:   t.SMBPass,
			Domain:     t.Domain,
			RemotePath: t.RemotePath,
		})
	case t.Provider.IsS3Family():
		return s3prov.New(s3prov.Config{
			Bucket:      t.Bucket,
			AccessKey:   t.AccessKey,
			SecretKey:   t.SecretKey,
			EndpointURL: t.EndpointURL,
			Region:      t.Region,
		})
	default:
		return nil, dberrors.Validationf("unknown storage target provider %q", t.Provider)
	}
}

// InUseChecker reports whether target id is still referenced by a
// database or by the config-sync pointer; Manager.CanDelete returns an
// InUse error when true. Provided by configstore to avoid an import cycle.
type InUseChecker func(targetID int) bool

// guardedTarget bundles a provider with its per-target circuit breaker
// and rate limiter. Upload, Download and Delete go through both; List
// goes through the breaker only; GetInfo and TestStorage use neither.
type guardedTarget struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[any]
	limiter  *rate.Limiter
}

// Manager owns provider construction and caching, the InUse guard and
// the dedup probe. Creating, updating and deleting target records is
// ConfigStore's job; Manager is handed the target record on each call.
type Manager struct {
	mu      sync.Mutex
	cache   map[int]*guardedTarget
	inUse   InUseChecker
}

// NewManager builds a Manager. inUse may be nil (no InUse protection,
// used in tests).
func NewManager(inUse InUseChecker) *Manager {
	return &Manager{cache: make(map[int]*guardedTarget), inUse: inUse}
}

func breakerName(id int) string { return fmt.Sprintf("storage-target-%d", id) }

func (m *Manager) get(t model.StorageTarget) (*guardedTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.cache[t.ID]; ok {
		return g, nil
	}

	p, err := Factory(t)
	if err != nil {
		return nil, err
	}

	settings := gobreaker.Settings{
		Name:    breakerName(t.ID),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("storage target circuit breaker state change")
		},
	}

	g := &guardedTarget{
		provider: p,
		breaker:  gobreaker.NewCircuitBreaker[any](settings),
		limiter:  rate.NewLimiter(rate.Limit(8), 4),
	}
	m.cache[t.ID] = g
	return g, nil
}

// Invalidate drops a cached provider, forcing Factory to rebuild it on
// next use (e.g. after the target's credentials changed).
func (m *Manager) Invalidate(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.cache[id]; ok {
		_ = g.provider.Close()
		delete(m.cache, id)
	}
}

func (m *Manager) call(ctx context.Context, t model.StorageTarget, fn func(Provider) error) error {
	g, err := m.get(t)
	if err != nil {
		return err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return dberrors.RemoteFailure(err, "rate limiter wait for target %d", t.ID)
	}
	_, err = g.breaker.Execute(func() (any, error) {
		return nil, fn(g.provider)
	})
	if err != nil {
		return dberrors.RemoteFailure(err, "storage target %d (%s)", t.ID, t.Name)
	}
	return nil
}

// Upload uploads localPath to key on target t, through the circuit
// breaker and rate limiter.
func (m *Manager) Upload(ctx context.Context, t model.StorageTarget, localPath, key string, metadata map[string]string, dedupRef string) error {
	return m.call(ctx, t, func(p Provider) error {
		return p.Upload(ctx, localPath, key, metadata, dedupRef)
	})
}

// Download fetches key from target t into localPath.
func (m *Manager) Download(ctx context.Context, t model.StorageTarget, key, localPath string) error {
	return m.call(ctx, t, func(p Provider) error {
		return p.Download(ctx, key, localPath)
	})
}

// Delete removes key from target t. Idempotent.
func (m *Manager) Delete(ctx context.Context, t model.StorageTarget, key string) error {
	return m.call(ctx, t, func(p Provider) error {
		return p.Delete(ctx, key)
	})
}

// List returns objects under prefix on target t.
func (m *Manager) List(ctx context.Context, t model.StorageTarget, prefix string, maxKeys int) ([]ObjectInfo, error) {
	g, err := m.get(t)
	if err != nil {
		return nil, err
	}
	res, err := g.breaker.Execute(func() (any, error) {
		return g.provider.List(ctx, prefix, maxKeys)
	})
	if err != nil {
		return nil, dberrors.RemoteFailure(err, "list on target %d (%s)", t.ID, t.Name)
	}
	return res.([]ObjectInfo), nil
}

// GetInfo returns metadata for key on target t.
func (m *Manager) GetInfo(ctx context.Context, t model.StorageTarget, key string) (ObjectInfo, bool, error) {
	g, err := m.get(t)
	if err != nil {
		return ObjectInfo{}, false, err
	}
	info, ok, err := g.provider.GetInfo(ctx, key)
	if err != nil {
		return ObjectInfo{}, false, dberrors.RemoteFailure(err, "getInfo on target %d (%s)", t.ID, t.Name)
	}
	return info, ok, nil
}

// TestStorage constructs the provider for t and calls TestConnection.
func (m *Manager) TestStorage(ctx context.Context, t model.StorageTarget) error {
	g, err := m.get(t)
	if err != nil {
		return err
	}
	if err := g.provider.TestConnection(ctx); err != nil {
		return dberrors.RemoteFailure(err, "test connection to target %d (%s)", t.ID, t.Name)
	}
	return nil
}

// CanDelete returns an InUse error if target id is still referenced.
func (m *Manager) CanDelete(id int) error {
	if m.inUse != nil && m.inUse(id) {
		return dberrors.InUsef("storage target %d is referenced by a database or config-sync", id)
	}
	return nil
}

// ProbeDedup implements spec §4.4 step 7's deduplication probe: list the
// objects under prefix, inspect the one with the newest LastModified,
// and return the dedup_ref this upload should use (empty if no match).
// Flattening is single-hop: if the newest object is itself a pointer,
// its own dedup_ref is reused rather than pointing at a pointer.
func (m *Manager) ProbeDedup(ctx context.Context, t model.StorageTarget, prefix, currentHash string) (dedupRef string, err error) {
	objs, err := m.List(ctx, t, prefix, 0)
	if err != nil {
		return "", err
	}
	if len(objs) == 0 {
		return "", nil
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].LastModified > objs[j].LastModified })
	newest := objs[0]

	info, ok, err := m.GetInfo(ctx, t, newest.Key)
	if err != nil || !ok {
		return "", err
	}
	if info.Metadata["hash"] != currentHash {
		return "", nil
	}
	if ref, isPointer := info.Metadata[DedupRefKey]; isPointer && ref != "" {
		return ref, nil
	}
	return newest.Key, nil
}
