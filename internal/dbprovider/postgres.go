// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package dbprovider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

type postgresProvider struct {
	db model.Database
}

func newPostgres(db model.Database) *postgresProvider { return &postgresProvider{db: db} }

func (p *postgresProvider) dsn() string {
	params := p.db.Params
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		stringOf(params, "user"), stringOf(params, "password"),
		p.db.Host(), p.db.Port(), stringOf(params, "database"))
}

func (p *postgresProvider) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, p.dsn())
	if err != nil {
		return false
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx) == nil
}

// Backup invokes pg_dump in custom format (spec §4.6), verifies the
// resulting file is non-empty, and scans stderr for an "error:" marker
// even when pg_dump exits zero, since pg_dump occasionally reports a
// partial dump without a non-zero exit code.
func (p *postgresProvider) Backup(ctx context.Context, dir string, progress Progress) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	params := p.db.Params
	if progress != nil {
		progress.Update(fmt.Sprintf("dumping database %s", stringOf(params, "database")))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", dberrors.ToolFailure(err, "create backup directory %s", dir)
	}

	filename := fmt.Sprintf("%s_%s.dump", p.db.Name, time.Now().Format("20060102_150405"))
	filepath_ := filepath.Join(dir, filename)

	env := dumpEnv("PGPASSWORD", stringOf(params, "password"))
	_, stderr, err := runTool(ctx, env, nil, "pg_dump",
		"-h", p.db.Host(),
		"-p", p.db.Port(),
		"-U", stringOf(params, "user"),
		"-F", "c",
		"-f", filepath_,
		stringOf(params, "database"),
	)
	if err != nil {
		return "", err
	}
	if strings.Contains(strings.ToLower(stderr), "error:") {
		return "", dberrors.ToolFailure(nil, "pg_dump reported an error: %s", strings.TrimSpace(stderr))
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

// Restore auto-detects the dump format by extension: ".dump" is the
// pg_dump custom format, restored with pg_restore --clean --if-exists;
// anything else is treated as plain SQL piped into psql. The result
// follows the tool's exit status alone: psql runs without ON_ERROR_STOP,
// so statement errors in a plain SQL file do not fail the restore, but
// any non-zero pg_restore exit is returned as an error, including one
// caused only by an unrecognized transaction_timeout setting; stderr
// is not inspected to tell such warnings apart from real failures.
func (p *postgresProvider) Restore(ctx context.Context, file string, progress Progress) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	params := p.db.Params
	env := dumpEnv("PGPASSWORD", stringOf(params, "password"))

	if progress != nil {
		progress.Update(fmt.Sprintf("restoring database %s", stringOf(params, "database")))
	}

	if strings.HasSuffix(file, ".dump") {
		_, _, err := runTool(ctx, env, nil, "pg_restore",
			"-h", p.db.Host(),
			"-p", p.db.Port(),
			"-U", stringOf(params, "user"),
			"-d", stringOf(params, "database"),
			"--clean", "--if-exists",
			file,
		)
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return dberrors.ToolFailure(err, "open restore file %s", file)
	}
	defer f.Close()

	_, _, err = runTool(ctx, env, f, "psql",
		"-h", p.db.Host(),
		"-p", p.db.Port(),
		"-U", stringOf(params, "user"),
		"-d", stringOf(params, "database"),
	)
	return err
}

func stringOf(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
