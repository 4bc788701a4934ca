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

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

type sqlServerProvider struct {
	db model.Database
}

func newSQLServer(db model.Database) *sqlServerProvider { return &sqlServerProvider{db: db} }

func (p *sqlServerProvider) dsn() string {
	params := p.db.Params
	return fmt.Sprintf("server=%s;port=%s;user id=%s;password=%s;database=%s;connection timeout=3",
		p.db.Host(), p.db.Port(), stringOf(params, "user"), stringOf(params, "password"), stringOf(params, "database"))
}

func (p *sqlServerProvider) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	conn, err := sql.Open("mssql", p.dsn())
	if err != nil {
		return false
	}
	defer conn.Close()
	return conn.PingContext(ctx) == nil
}

// Backup scripts schema and data with mssql-scripter, per spec §4.6.
func (p *sqlServerProvider) Backup(ctx context.Context, dir string, progress Progress) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	params := p.db.Params
	if progress != nil {
		progress.Update(fmt.Sprintf("scripting database %s", stringOf(params, "database")))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", dberrors.ToolFailure(err, "create backup directory %s", dir)
	}

	filename := fmt.Sprintf("%s_%s.sql", p.db.Name, time.Now().Format("20060102_150405"))
	filepath_ := filepath.Join(dir, filename)

	env := dumpEnv("MSSQL_SCRIPTER_PASSWORD", stringOf(params, "password"))
	_, _, err := runTool(ctx, env, nil, "mssql-scripter",
		"-S", fmt.Sprintf("%s,%s", p.db.Host(), p.db.Port()),
		"-U", stringOf(params, "user"),
		"-d", stringOf(params, "database"),
		"--schema-and-data",
		"-f", filepath_,
	)
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(filepath_)
	if statErr != nil || info.Size() == 0 {
		return "", dberrors.ToolFailure(statErr, "backup file %s was not created or is empty", filepath_)
	}

	if progress != nil {
		progress.Update("script complete")
	}
	return filepath_, nil
}

// Restore runs the script back in through sqlcmd, per spec §4.6.
func (p *sqlServerProvider) Restore(ctx context.Context, file string, progress Progress) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	params := p.db.Params
	if progress != nil {
		progress.Update(fmt.Sprintf("restoring database %s", stringOf(params, "database")))
	}

	env := dumpEnv("SQLCMDPASSWORD", stringOf(params, "password"))
	_, _, err := runTool(ctx, env, nil, "sqlcmd",
		"-S", fmt.Sprintf("%s,%s", p.db.Host(), p.db.Port()),
		"-U", stringOf(params, "user"),
		"-d", stringOf(params, "database"),
		"-i", file,
	)
	return err
}
