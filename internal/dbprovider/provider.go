// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package dbprovider implements the external-tool-backed database
// drivers of spec §4.6: each engine shells out to its native dump/load
// tool (pg_dump, mysqldump, mssql-scripter, mongodump, ...) rather than
// speaking the wire protocol directly, since the backup/restore unit is
// always a whole-database artifact, not individual rows.
package dbprovider

import (
	"context"
	"time"

	"github.com/dbvault/dbmanager/internal/model"
)

// Timeout is the wall-clock limit enforced on every dump/restore
// invocation, per spec §4.6.
const Timeout = time.Hour

// Progress is the subset of the pipeline's progress handle a driver
// needs to report step-level status; it is satisfied by
// *task.Handle without this package importing internal/task.
type Progress interface {
	Update(message string)
}

// Provider is the behavioral contract every engine driver implements,
// per spec §4.6.
type Provider interface {
	// CheckConnection reports whether the database is reachable within
	// a short timeout. It never returns an error; unreachable is simply
	// false.
	CheckConnection(ctx context.Context) bool
	// Backup dumps the database into dir and returns the path to the
	// produced artifact (a single file).
	Backup(ctx context.Context, dir string, progress Progress) (path string, err error)
	// Restore loads file into the database.
	Restore(ctx context.Context, file string, progress Progress) error
}

// New constructs the Provider for db.Provider. It returns a
// dberrors.Validation error for any value outside model.ValidDBProviders.
func New(db model.Database) (Provider, error) {
	switch db.Provider {
	case model.ProviderPostgres:
		return newPostgres(db), nil
	case model.ProviderMySQL, model.ProviderMariaDB:
		return newMySQL(db), nil
	case model.ProviderSQLServer:
		return newSQLServer(db), nil
	case model.ProviderMongoDB:
		return newMongo(db), nil
	case model.ProviderSQLite:
		return newSQLite(db), nil
	default:
		return nil, unknownProviderErr(db.Provider)
	}
}
