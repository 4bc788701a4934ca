// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultBackupAllConcurrency bounds the worker pool BackupAll uses
// when concurrency <= 0 is passed, matching the donor's
// backup_all_databases(max_workers=2).
const DefaultBackupAllConcurrency = 2

// BackupAllResult pairs a database with the outcome of backing it up.
type BackupAllResult struct {
	DatabaseID int
	Path       string
	Err        error
}

// BackupAll runs Backup for every configured database through a
// bounded worker pool (default DefaultBackupAllConcurrency), per spec
// §5's concurrency model. One database's failure does not cancel the
// others; every result is collected and returned, none dropped.
func (p *Pipeline) BackupAll(ctx context.Context, tag string, concurrency int) []BackupAllResult {
	if concurrency <= 0 {
		concurrency = DefaultBackupAllConcurrency
	}

	databases := p.Config.ListDatabases()
	results := make([]BackupAllResult, len(databases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, db := range databases {
		i, db := i, db
		g.Go(func() error {
			path, err := p.Backup(gctx, db.ID, tag, nil)
			results[i] = BackupAllResult{DatabaseID: db.ID, Path: path, Err: err}
			return nil // per-database failures are collected, not fatal to the group
		})
	}
	_ = g.Wait()

	return results
}
