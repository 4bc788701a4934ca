// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dbvault/dbmanager/internal/configstore"
	"github.com/dbvault/dbmanager/internal/configsync"
	"github.com/dbvault/dbmanager/internal/pipeline"
	"github.com/dbvault/dbmanager/internal/storage"
)

// app bundles the components every subcommand needs, wired once in
// newApp and reused across the process's single invocation (each CLI
// invocation is one cron-triggered operation, not a long-lived server,
// per §1's scope: the HTTP surface and its scheduler daemon are
// collaborators this binary's subcommands feed, not things it runs
// itself — except for `run-scheduler`, which does host the supervised
// loop).
type app struct {
	cfg      runtimeConfig
	store    *configstore.Store
	storage  *storage.Manager
	syncer   *configsync.Syncer
	pipeline *pipeline.Pipeline
}

func newApp(cfg runtimeConfig) (*app, error) {
	configPath := filepath.Join(cfg.DataDir, "config.json")
	store, err := configstore.New(configPath)
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}

	storageMgr := storage.NewManager(store.IsTargetInUse)
	syncer := configsync.New(store, store.GetStorageTarget, storageMgr)
	store.SetSyncHook(func() error { return syncer.SyncToStorage(context.Background(), true) })

	pipe := pipeline.New(store, storageMgr, cfg.DataDir)

	return &app{cfg: cfg, store: store, storage: storageMgr, syncer: syncer, pipeline: pipe}, nil
}
