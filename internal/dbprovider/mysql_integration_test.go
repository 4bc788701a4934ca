// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

//go:build integration

package dbprovider

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbvault/dbmanager/internal/model"
	"github.com/dbvault/dbmanager/internal/testinfra"
)

// TestMySQLBackupRestoreRoundTrip mirrors the postgres round trip against
// a disposable MySQL container, exercising the mysqldump/mysql tool pair.
func TestMySQLBackupRestoreRoundTrip(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	if _, err := exec.LookPath("mysqldump"); err != nil {
		t.Skip("mysqldump not on PATH")
	}
	if _, err := exec.LookPath("mysql"); err != nil {
		t.Skip("mysql client not on PATH")
	}

	ctx := context.Background()
	my, err := testinfra.NewMySQLContainer(ctx, "dbmanager", "dbmanager", "roundtrip")
	require.NoError(t, err, "start mysql container")
	defer testinfra.CleanupContainer(t, ctx, my.Container)

	db := model.Database{
		Name:     "roundtrip",
		Provider: model.ProviderMySQL,
		Params: map[string]any{
			"host":     my.Host,
			"port":     my.Port,
			"user":     my.User,
			"password": my.Password,
			"database": my.Database,
		},
	}

	provider, err := New(db)
	require.NoError(t, err)
	require.True(t, provider.CheckConnection(ctx), "CheckConnection reported unreachable against a freshly started container")

	seedSQL := `CREATE TABLE widgets (id int auto_increment primary key, name varchar(50)); INSERT INTO widgets (name) VALUES ('gear');`
	_, err = exec.Command("mysql",
		"-h", my.Host, "-P", my.Port, "-u", my.User, "--password="+my.Password, my.Database, "-e", seedSQL,
	).CombinedOutput()
	require.NoError(t, err, "seed table")

	dumpPath, err := provider.Backup(ctx, t.TempDir(), nil)
	require.NoError(t, err)

	_, err = exec.Command("mysql",
		"-h", my.Host, "-P", my.Port, "-u", my.User, "--password="+my.Password, my.Database, "-e", "DROP TABLE widgets;",
	).CombinedOutput()
	require.NoError(t, err, "drop table")

	require.NoError(t, provider.Restore(ctx, dumpPath, nil))

	out, err := exec.Command("mysql",
		"-h", my.Host, "-P", my.Port, "-u", my.User, "--password="+my.Password, my.Database,
		"-N", "-e", "SELECT name FROM widgets;",
	).CombinedOutput()
	require.NoError(t, err, "verify table")
	require.Contains(t, string(out), "gear")
}
