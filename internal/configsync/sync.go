// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package configsync mirrors the ConfigStore document to a single
// nominated storage target, per spec §4.8: it uploads on every config
// mutation (silent, best-effort), and on startup compares local mtime
// against the remote object's last-modified time to decide whether to
// pull down a newer copy.
package configsync

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/logging"
	"github.com/dbvault/dbmanager/internal/model"
	"github.com/dbvault/dbmanager/internal/storage"
)

const (
	configKey   = "config/config.json"
	metadataKey = "config/metadata.json"
)

// Version is reported in the remote metadata.json sidecar.
const Version = "1.0"

// Metadata is the content of the config/metadata.json sidecar.
type Metadata struct {
	SyncTime time.Time `json:"sync_time"`
	Hostname string    `json:"hostname"`
	Version  string    `json:"version"`
}

// ConfigStore is the subset of configstore.Store this package needs;
// declared locally to avoid an import cycle (configstore wires a
// Syncer's SyncToStorage as its mutation hook).
type ConfigStore interface {
	Path() string
	ConfigSyncTargetID() *int
	Reload(model.Config)
}

// TargetResolver resolves a storage target id to its current config
// record, so Syncer doesn't need to import configstore's CRUD surface.
type TargetResolver func(id int) (model.StorageTarget, error)

// Syncer mirrors the config document to its nominated storage target.
type Syncer struct {
	store    ConfigStore
	resolve  TargetResolver
	manager  *storage.Manager
	hostname string
}

// New builds a Syncer. manager is the storage.Manager used to reach the
// nominated target.
func New(store ConfigStore, resolve TargetResolver, manager *storage.Manager) *Syncer {
	hostname, _ := os.Hostname()
	return &Syncer{store: store, resolve: resolve, manager: manager, hostname: hostname}
}

func (s *Syncer) target(ctx context.Context) (model.StorageTarget, bool, error) {
	id := s.store.ConfigSyncTargetID()
	if id == nil {
		return model.StorageTarget{}, false, nil
	}
	t, err := s.resolve(*id)
	if err != nil {
		return model.StorageTarget{}, false, err
	}
	return t, true, nil
}

// SyncToStorage uploads the current document to the nominated target.
// When silent is true (the mutation-hook path, §4.1) all errors are
// logged and swallowed; when false they're returned to the caller
// (used by an explicit CLI-driven sync).
func (s *Syncer) SyncToStorage(ctx context.Context, silent bool) error {
	target, ok, err := s.target(ctx)
	if err != nil {
		return s.maybeSwallow(err, silent)
	}
	if !ok {
		return nil
	}

	path := s.store.Path()
	if _, err := os.Stat(path); err != nil {
		return s.maybeSwallow(dberrors.Wrap(err, "config file %s not found for sync", path), silent)
	}

	meta := Metadata{SyncTime: time.Now().UTC(), Hostname: s.hostname, Version: Version}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return s.maybeSwallow(err, silent)
	}

	if err := s.manager.Upload(ctx, target, path, configKey, map[string]string{
		"sync_time": meta.SyncTime.Format(time.RFC3339),
		"hostname":  meta.Hostname,
		"version":   meta.Version,
	}, ""); err != nil {
		return s.maybeSwallow(err, silent)
	}

	tmpMeta, err := os.CreateTemp("", "config-metadata-*.json")
	if err != nil {
		return s.maybeSwallow(err, silent)
	}
	tmpMetaPath := tmpMeta.Name()
	defer os.Remove(tmpMetaPath)
	if _, err := tmpMeta.Write(metaJSON); err != nil {
		tmpMeta.Close()
		return s.maybeSwallow(err, silent)
	}
	tmpMeta.Close()

	if err := s.manager.Upload(ctx, target, tmpMetaPath, metadataKey, nil, ""); err != nil {
		return s.maybeSwallow(err, silent)
	}

	logging.Info().Str("target", target.Name).Msg("config synced to remote storage")
	return nil
}

func (s *Syncer) maybeSwallow(err error, silent bool) error {
	if err == nil {
		return nil
	}
	if silent {
		logging.Warn().Err(err).Msg("config-sync mirror failed")
		return nil
	}
	return err
}

// SyncFromStorage downloads the remote document over the local one.
// If force is false and the local file is newer than the remote
// object, it refuses (non-interactive) unless interactive is true, in
// which case the caller is expected to have already confirmed (the
// terminal prompt itself is out of scope per §1). Before overwriting,
// the local file is copied to a timestamped ".backup.<ts>" sibling.
func (s *Syncer) SyncFromStorage(ctx context.Context, force, interactive bool) error {
	target, ok, err := s.target(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return dberrors.Validationf("config-sync is not configured")
	}

	info, ok, err := s.manager.GetInfo(ctx, target, configKey)
	if err != nil {
		return err
	}
	if !ok {
		return dberrors.NotFoundf("no config found on remote storage")
	}

	path := s.store.Path()
	if localInfo, statErr := os.Stat(path); statErr == nil && !force {
		if localInfo.ModTime().Unix() > info.LastModified {
			if !interactive {
				return dberrors.Validationf("local config is newer than remote; refusing non-interactive overwrite")
			}
		}
	}

	if _, statErr := os.Stat(path); statErr == nil {
		backupPath := fmt.Sprintf("%s.backup.%s", path, time.Now().Format("20060102_150405"))
		if err := copyFile(path, backupPath); err != nil {
			return dberrors.Wrap(err, "backup local config before overwrite")
		}
		logging.Info().Str("backup", backupPath).Msg("local config backed up before remote overwrite")
	}

	if err := s.manager.Download(ctx, target, configKey, path); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return dberrors.Wrap(err, "read downloaded config")
	}
	var cfg model.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return dberrors.Wrap(err, "parse downloaded config")
	}
	s.store.Reload(cfg)

	logging.Info().Str("target", target.Name).Msg("config downloaded from remote storage")
	return nil
}

// SyncOnStartup compares local mtime to the remote object's
// last-modified time and downloads when the remote is newer, or when
// the local file is missing entirely.
func (s *Syncer) SyncOnStartup(ctx context.Context) error {
	target, ok, err := s.target(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	info, ok, err := s.manager.GetInfo(ctx, target, configKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	path := s.store.Path()
	localInfo, statErr := os.Stat(path)
	if statErr != nil || localInfo.ModTime().Unix() < info.LastModified {
		return s.SyncFromStorage(ctx, true, false)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}
