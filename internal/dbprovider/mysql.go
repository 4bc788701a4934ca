// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package dbprovider

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

// mysqlProvider backs both MySQL and MariaDB: they share the wire
// protocol and the mysqldump/mysql tool pair, per spec §4.6.
type mysqlProvider struct {
	db model.Database
}

func newMySQL(db model.Database) *mysqlProvider { return &mysqlProvider{db: db} }

func (p *mysqlProvider) dsn() string {
	params := p.db.Params
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?timeout=3s",
		stringOf(params, "user"), stringOf(params, "password"),
		p.db.Host(), p.db.Port(), stringOf(params, "database"))
}

func (p *mysqlProvider) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	conn, err := sql.Open("mysql", p.dsn())
	if err != nil {
		return false
	}
	defer conn.Close()
	return conn.PingContext(ctx) == nil
}

// Backup invokes mysqldump with the full set of options needed for a
// restorable, self-contained dump: a consistent snapshot without
// locking tables, routines/triggers/events, drop-before-create,
// multi-row inserts, charset and dump-date comments.
func (p *mysqlProvider) Backup(ctx context.Context, dir string, progress Progress) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	params := p.db.Params
	if progress != nil {
		progress.Update(fmt.Sprintf("dumping database %s", stringOf(params, "database")))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", dberrors.ToolFailure(err, "create backup directory %s", dir)
	}

	filename := fmt.Sprintf("%s_%s.sql", p.db.Name, time.Now().Format("20060102_150405"))
	filepath_ := filepath.Join(dir, filename)

	_, _, err := runTool(ctx, nil, nil, "mysqldump",
		"-h", p.db.Host(),
		"-P", p.db.Port(),
		"-u", stringOf(params, "user"),
		"--password="+stringOf(params, "password"),
		stringOf(params, "database"),
		"--result-file", filepath_,
		"--single-transaction",
		"--routines",
		"--triggers",
		"--events",
		"--add-drop-database",
		"--add-drop-table",
		"--create-options",
		"--extended-insert",
		"--set-charset",
		"--comments",
		"--dump-date",
	)
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(filepath_)
	if statErr != nil || info.Size() == 0 {
		return "", dberrors.ToolFailure(statErr, "backup file %s was not created or is empty", filepath_)
	}

	if progress != nil {
		progress.Update("dump complete")
	}
	return filepath_, nil
}

// Restore pipes the dump file into the mysql client, per spec §4.6.
func (p *mysqlProvider) Restore(ctx context.Context, file string, progress Progress) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	params := p.db.Params
	if progress != nil {
		progress.Update(fmt.Sprintf("restoring database %s", stringOf(params, "database")))
	}

	f, err := os.Open(file)
	if err != nil {
		return dberrors.ToolFailure(err, "open restore file %s", file)
	}
	defer f.Close()

	_, _, err = runTool(ctx, nil, f, "mysql",
		"-h", p.db.Host(),
		"-P", p.db.Port(),
		"-u", stringOf(params, "user"),
		"--password="+stringOf(params, "password"),
		stringOf(params, "database"),
	)
	return err
}
