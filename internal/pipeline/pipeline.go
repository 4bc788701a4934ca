// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package pipeline implements the backup and restore orchestration of
// spec §4.4/§4.5: dump -> checksum -> compress -> encrypt -> fan-out
// upload -> retention, and the transactional safety-snapshot + rollback
// restore. It is adapted from the donor's internal/backup package
// (manager.go's orchestration entry points, manager_archive.go's
// ordered-closer/checksum-while-writing staging, restore.go's
// staged-temp-dir restore, retention.go's sorted-by-mtime pruning),
// generalized from a single DuckDB file to the multi-engine,
// multi-target artifact this spec describes.
package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dbvault/dbmanager/internal/configstore"
	"github.com/dbvault/dbmanager/internal/dbprovider"
	"github.com/dbvault/dbmanager/internal/logging"
	"github.com/dbvault/dbmanager/internal/model"
	"github.com/dbvault/dbmanager/internal/storage"
	"github.com/dbvault/dbmanager/internal/task"
)

// Pipeline wires the config store, storage manager and provider factory
// together into the backup/restore orchestrator. DataDir is the root
// $DBMANAGER_DATA_DIR (or $HOME/.dbmanager) directory under which the
// local backups/ tree lives.
type Pipeline struct {
	Config  *configstore.Store
	Storage *storage.Manager
	DataDir string

	// NewProvider constructs the engine driver for a database. A field
	// (rather than a direct dbprovider.New call) so tests can substitute
	// a fake provider without shelling out to real dump tools.
	NewProvider func(model.Database) (dbprovider.Provider, error)
}

// New builds a Pipeline with the real dbprovider factory.
func New(cfg *configstore.Store, storageMgr *storage.Manager, dataDir string) *Pipeline {
	return &Pipeline{Config: cfg, Storage: storageMgr, DataDir: dataDir, NewProvider: dbprovider.New}
}

// BackupsRoot returns <DataDir>/backups.
func (p *Pipeline) BackupsRoot() string { return filepath.Join(p.DataDir, "backups") }

// DatabaseDir returns the per-database artifact directory, spec §3:
// <root>/backups/<db_id>_<sanitized_name>/.
func (p *Pipeline) DatabaseDir(db model.Database) string {
	return filepath.Join(p.BackupsRoot(), fmt.Sprintf("%d_%s", db.ID, sanitizeName(db.Name)))
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func sanitizeName(name string) string {
	s := unsafeNameChars.ReplaceAllString(name, "_")
	return strings.Trim(s, "_")
}

// progressAdapter satisfies dbprovider.Progress by forwarding to a
// task.Handle without this package importing the pipeline-external
// detail of how steps map to percentages; Update is a free-text,
// non-stepped report.
type progressAdapter struct{ h *task.Handle }

func (a progressAdapter) Update(message string) {
	if a.h != nil {
		a.h.Update(message)
	}
}

func logOrNil(h *task.Handle, step int, msg string) {
	if h == nil {
		return
	}
	h.Step(step, msg)
}

func warnf(format string, args ...any) {
	logging.Warn().Msgf(format, args...)
}
