// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package dbprovider

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

type sqliteProvider struct {
	db     model.Database
	dbFile string
}

func newSQLite(db model.Database) *sqliteProvider {
	return &sqliteProvider{db: db, dbFile: stringOf(db.Params, "database")}
}

func (p *sqliteProvider) CheckConnection(ctx context.Context) bool {
	if _, err := os.Stat(p.dbFile); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	conn, err := sql.Open("sqlite3", p.dbFile)
	if err != nil {
		return false
	}
	defer conn.Close()
	var name string
	row := conn.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' LIMIT 1")
	if err := row.Scan(&name); err != nil && err != sql.ErrNoRows {
		return false
	}
	return true
}

// Backup copies the database file directly. The driver surfaces
// database/sql only, not sqlite3's native online-backup API, so this
// mirrors the original implementation's shutil.copy2 fallback path
// rather than its primary sqlite3.Connection.backup() path.
func (p *sqliteProvider) Backup(ctx context.Context, dir string, progress Progress) (string, error) {
	if progress != nil {
		progress.Update("copying database file")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", dberrors.ToolFailure(err, "create backup directory %s", dir)
	}

	base := strings.TrimSuffix(filepath.Base(p.dbFile), filepath.Ext(p.dbFile))
	dest := filepath.Join(dir, fmt.Sprintf("%s_%s.sqlite", base, time.Now().Format("20060102_150405")))

	if err := copyFile(p.dbFile, dest); err != nil {
		return "", dberrors.ToolFailure(err, "copy sqlite database %s", p.dbFile)
	}

	if progress != nil {
		progress.Update("backup complete")
	}
	return dest, nil
}

// Restore overwrites the live database file, first preserving it as
// "<file>.before_restore" in case the restore needs to be undone.
func (p *sqliteProvider) Restore(ctx context.Context, file string, progress Progress) error {
	if progress != nil {
		progress.Update("starting sqlite restore")
	}

	if _, err := os.Stat(p.dbFile); err == nil {
		beforeRestore := p.dbFile + ".before_restore"
		if err := copyFile(p.dbFile, beforeRestore); err != nil {
			return dberrors.ToolFailure(err, "preserve current database before restore")
		}
		if progress != nil {
			progress.Update(fmt.Sprintf("current database preserved at %s", beforeRestore))
		}
	}

	if progress != nil {
		progress.Update("restoring database file")
	}
	if err := copyFile(file, p.dbFile); err != nil {
		return dberrors.ToolFailure(err, "copy %s over %s", file, p.dbFile)
	}

	if progress != nil {
		progress.Update("verifying restored database")
	}
	if !p.CheckConnection(ctx) {
		return dberrors.IntegrityFailuref("restored database %s failed verification", p.dbFile)
	}

	if progress != nil {
		progress.Update("restore complete")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
