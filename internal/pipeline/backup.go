// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dbvault/dbmanager/internal/compressutil"
	"github.com/dbvault/dbmanager/internal/cryptoutil"
	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
	"github.com/dbvault/dbmanager/internal/task"
)

const totalBackupSteps = 5 // dump, checksum, compress, encrypt, fan-out+retention

// Backup runs the pipeline of spec §4.4 for database dbID, optionally
// tagging the artifact (e.g. "safety_snapshot"), and returns the final
// local artifact path. progress may be nil.
func (p *Pipeline) Backup(ctx context.Context, dbID int, tag string, progress *task.Handle) (string, error) {
	if progress != nil {
		progress.Begin()
	}

	db, err := p.Config.GetDatabase(dbID)
	if err != nil {
		return "", fail(progress, err)
	}

	provider, err := p.NewProvider(db)
	if err != nil {
		return "", fail(progress, err)
	}

	dir := p.DatabaseDir(db)
	logOrNil(progress, 1, fmt.Sprintf("dumping database %s", db.Name))
	path, err := provider.Backup(ctx, dir, progressAdapter{progress})
	if err != nil {
		return "", fail(progress, err)
	}

	// Step 3: tag injection.
	if tag != "" {
		tagged := injectTag(path, tag)
		if err := os.Rename(path, tagged); err != nil {
			_ = os.Remove(path)
			return "", fail(progress, dberrors.Wrap(err, "rename tagged artifact"))
		}
		path = tagged
	}

	// Step 4: checksum.
	logOrNil(progress, 2, "computing checksum")
	hash, err := cryptoutil.ChecksumFile(path)
	if err != nil {
		_ = os.Remove(path)
		return "", fail(progress, dberrors.Wrap(err, "checksum artifact"))
	}
	sidecarPath := path + cryptoutil.SidecarSuffix
	if err := cryptoutil.WriteSidecar(sidecarPath, hash, filepath.Base(path)); err != nil {
		_ = os.Remove(path)
		return "", fail(progress, dberrors.Wrap(err, "write checksum sidecar"))
	}

	settings := p.Config.GlobalSettings()

	// Step 5: compression.
	if settings.Compression.Enabled {
		logOrNil(progress, 3, "compressing artifact")
		algo, err := compressutil.ParseAlgorithm(settings.Compression.Algorithm)
		if err != nil {
			p.cleanupArtifact(path, sidecarPath)
			return "", fail(progress, err)
		}
		compressedPath := path + "." + algo.Extension()
		if err := compressutil.CompressFile(path, compressedPath, algo, settings.Compression.Level); err != nil {
			p.cleanupArtifact(path, sidecarPath)
			return "", fail(progress, dberrors.ToolFailure(err, "compress artifact"))
		}
		_ = os.Remove(path)
		path = compressedPath

		hash, err = cryptoutil.ChecksumFile(path)
		if err != nil {
			_ = os.Remove(path)
			_ = os.Remove(sidecarPath)
			return "", fail(progress, dberrors.Wrap(err, "checksum compressed artifact"))
		}
		if err := cryptoutil.WriteSidecar(sidecarPath, hash, filepath.Base(path)); err != nil {
			return "", fail(progress, dberrors.Wrap(err, "refresh checksum sidecar"))
		}
	}

	// Step 6: encryption. The sidecar is renamed, not recomputed: its
	// hash still refers to the pre-encryption (post-compression) form,
	// which is what restore verifies against.
	if settings.Encryption.Enabled {
		logOrNil(progress, 4, "encrypting artifact")
		if settings.Encryption.Password == "" {
			p.cleanupArtifact(path, sidecarPath)
			return "", fail(progress, dberrors.Validationf("encryption enabled without a password"))
		}
		encPath := path + ".enc"
		if err := cryptoutil.EncryptFile(path, encPath, settings.Encryption.Password); err != nil {
			p.cleanupArtifact(path, sidecarPath)
			return "", fail(progress, dberrors.Wrap(err, "encrypt artifact"))
		}
		_ = os.Remove(path)
		path = encPath

		newSidecarPath := path + cryptoutil.SidecarSuffix
		if err := os.Rename(sidecarPath, newSidecarPath); err != nil {
			return "", fail(progress, dberrors.Wrap(err, "rename checksum sidecar after encryption"))
		}
		sidecarPath = newSidecarPath
	}

	// Step 7: fan-out upload. Per-target failures are warnings only.
	logOrNil(progress, 5, "uploading to configured storage targets")
	p.uploadToAllTargets(ctx, db, path, sidecarPath, hash, tag)

	// Step 8: retention.
	p.enforceRetention(ctx, db)

	if progress != nil {
		progress.Complete()
	}
	return path, nil
}

func fail(progress *task.Handle, err error) error {
	if progress != nil {
		progress.Fail(err)
	}
	return err
}

func (p *Pipeline) cleanupArtifact(path, sidecarPath string) {
	_ = os.Remove(path)
	_ = os.Remove(sidecarPath)
}

// injectTag renames "<base>.<ext...>" to "<base>_<tag>.<ext...>",
// treating a ".tar.gz"-shaped double extension as a single extension
// group per spec §4.4 step 3.
func injectTag(path, tag string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	name, ext := splitExtensionGroup(base)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", name, tag, ext))
}

// splitExtensionGroup splits "acct_20260101_000000.tar.gz" into
// ("acct_20260101_000000", ".tar.gz"), and "acct.dump" into
// ("acct", ".dump"). Any trailing ".gz"/".zst"/".lz4" plus ".enc" is
// also treated as part of the single extension group, so tag injection
// still lands before the first extension even on an already-processed
// artifact.
func splitExtensionGroup(base string) (name, ext string) {
	rest := base
	var suffixes []string
	for {
		e := filepath.Ext(rest)
		if e == "" {
			break
		}
		switch e {
		case ".gz", ".zst", ".lz4", ".enc", ".tar":
			suffixes = append([]string{e}, suffixes...)
			rest = strings.TrimSuffix(rest, e)
		default:
			suffixes = append([]string{e}, suffixes...)
			rest = strings.TrimSuffix(rest, e)
			return rest, strings.Join(suffixes, "")
		}
	}
	return rest, strings.Join(suffixes, "")
}

func (p *Pipeline) uploadToAllTargets(ctx context.Context, db model.Database, path, sidecarPath, hash, tag string) {
	if len(db.StorageTargetIDs) == 0 {
		return
	}

	basename := filepath.Base(path)
	objectKey := fmt.Sprintf("backups/%d/%s", db.ID, basename)
	sidecarKey := objectKey + cryptoutil.SidecarSuffix
	prefix := fmt.Sprintf("backups/%d/", db.ID)

	metadata := map[string]string{
		"database_id":   fmt.Sprintf("%d", db.ID),
		"database_name": db.Name,
		"provider":      string(db.Provider),
		"backup_date":   time.Now().UTC().Format(time.RFC3339),
		"hash":          hash,
	}
	if tag != "" {
		metadata["tag"] = tag
	}

	for _, targetID := range db.StorageTargetIDs {
		target, err := p.Config.GetStorageTarget(targetID)
		if err != nil {
			warnf("backup target %d for database %d not found: %v", targetID, db.ID, err)
			continue
		}

		dedupRef, err := p.Storage.ProbeDedup(ctx, target, prefix, hash)
		if err != nil {
			warnf("dedup probe on target %d (%s) failed: %v", target.ID, target.Name, err)
		}

		if err := p.Storage.Upload(ctx, target, path, objectKey, metadata, dedupRef); err != nil {
			warnf("upload to target %d (%s) failed: %v", target.ID, target.Name, err)
			continue
		}

		if dedupRef == "" {
			if err := p.Storage.Upload(ctx, target, sidecarPath, sidecarKey, nil, ""); err != nil {
				warnf("sidecar upload to target %d (%s) failed: %v", target.ID, target.Name, err)
			}
		}
	}
}

// enforceRetention prunes local artifacts past db.Retention and, per
// target, remote artifacts past db.S3Retention (spec §4.4 step 8).
func (p *Pipeline) enforceRetention(ctx context.Context, db model.Database) {
	if db.Retention > 0 {
		if err := p.EnforceLocalRetention(db, db.Retention); err != nil {
			warnf("local retention enforcement for database %d failed: %v", db.ID, err)
		}
	}
	if db.S3Retention > 0 {
		for _, targetID := range db.StorageTargetIDs {
			target, err := p.Config.GetStorageTarget(targetID)
			if err != nil {
				continue
			}
			if err := p.enforceRemoteRetention(ctx, db, target, db.S3Retention); err != nil {
				warnf("remote retention enforcement on target %d (%s) for database %d failed: %v", target.ID, target.Name, db.ID, err)
			}
		}
	}
}

// localArtifact pairs a backup artifact's path with its mtime for
// sorted retention pruning.
type localArtifact struct {
	path    string
	modTime time.Time
}

func (p *Pipeline) listLocalArtifacts(db model.Database) ([]localArtifact, error) {
	dir := p.DatabaseDir(db)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []localArtifact
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), cryptoutil.SidecarSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, localArtifact{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].modTime.After(out[j].modTime) })
	return out, nil
}
