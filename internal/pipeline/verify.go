// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dbvault/dbmanager/internal/cryptoutil"
	"github.com/dbvault/dbmanager/internal/dberrors"
)

// VerifyResult is the {valid, message} pair §6's POST /backups/verify
// contract returns.
type VerifyResult struct {
	Valid   bool
	Message string
}

// Verify checksums a backup artifact against its sidecar without
// running it through decryption, decompression or the provider,
// grounded on the original's verify_backup_integrity. For
// LocationS3, databaseID selects which of the database's configured
// targets to look the key up on; a zero databaseID is only valid for
// LocationLocal.
func (p *Pipeline) Verify(ctx context.Context, backupFile string, location Location, databaseID int) (VerifyResult, error) {
	switch location {
	case LocationLocal:
		return p.verifyLocal(backupFile)
	case LocationS3:
		if databaseID == 0 {
			return VerifyResult{}, dberrors.Validationf("database_id required for s3 verification")
		}
		return p.verifyRemote(ctx, backupFile, databaseID)
	default:
		return VerifyResult{}, dberrors.Validationf("unknown verify location %q", location)
	}
}

func (p *Pipeline) verifyLocal(backupFile string) (VerifyResult, error) {
	if _, err := os.Stat(backupFile); err != nil {
		return VerifyResult{}, dberrors.NotFoundf("backup file %s not found", backupFile)
	}

	expected, err := cryptoutil.ReadSidecarHash(backupFile + cryptoutil.SidecarSuffix)
	if err != nil {
		return VerifyResult{Valid: false, Message: "no checksum sidecar found"}, nil
	}

	actual, err := cryptoutil.ChecksumFile(backupFile)
	if err != nil {
		return VerifyResult{}, dberrors.Wrap(err, "checksum backup file")
	}
	if actual != expected {
		return VerifyResult{Valid: false, Message: "checksum mismatch"}, nil
	}
	return VerifyResult{Valid: true, Message: "checksum verified"}, nil
}

func (p *Pipeline) verifyRemote(ctx context.Context, backupFile string, databaseID int) (VerifyResult, error) {
	db, err := p.Config.GetDatabase(databaseID)
	if err != nil {
		return VerifyResult{}, err
	}
	if len(db.StorageTargetIDs) == 0 {
		return VerifyResult{}, dberrors.Validationf("no storage target configured for database %d", databaseID)
	}

	target, ok, err := p.findTargetContaining(ctx, db, backupFile)
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		return VerifyResult{}, dberrors.NotFoundf("remote backup %s not found on any configured storage target", backupFile)
	}

	tempDir, err := os.MkdirTemp("", "dbmanager-verify-*")
	if err != nil {
		return VerifyResult{}, dberrors.Wrap(err, "create verify staging directory")
	}
	defer os.RemoveAll(tempDir)

	localFile := filepath.Join(tempDir, filepath.Base(backupFile))
	if err := p.Storage.Download(ctx, target, backupFile, localFile); err != nil {
		return VerifyResult{}, dberrors.Wrap(err, "download backup for verification")
	}

	sidecarKey := backupFile + cryptoutil.SidecarSuffix
	localSidecar := localFile + cryptoutil.SidecarSuffix
	var expected string
	if info, ok, _ := p.Storage.GetInfo(ctx, target, sidecarKey); ok && info.Size > 0 {
		if dlErr := p.Storage.Download(ctx, target, sidecarKey, localSidecar); dlErr == nil {
			expected, _ = cryptoutil.ReadSidecarHash(localSidecar)
		}
	}
	if expected == "" {
		if info, ok, _ := p.Storage.GetInfo(ctx, target, backupFile); ok {
			expected = info.Metadata["hash"]
		}
	}
	if expected == "" {
		return VerifyResult{Valid: false, Message: "no checksum available to verify"}, nil
	}

	actual, err := cryptoutil.ChecksumFile(localFile)
	if err != nil {
		return VerifyResult{}, dberrors.Wrap(err, "checksum downloaded backup")
	}
	if actual != expected {
		return VerifyResult{Valid: false, Message: "checksum mismatch"}, nil
	}
	return VerifyResult{Valid: true, Message: "checksum verified"}, nil
}
