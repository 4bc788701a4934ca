// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package dbprovider

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

type mongoProvider struct {
	db  model.Database
	uri string
}

func newMongo(db model.Database) *mongoProvider {
	params := db.Params
	uri := stringOf(params, "uri")
	if uri == "" {
		auth := ""
		if user, pass := stringOf(params, "user"), stringOf(params, "password"); user != "" && pass != "" {
			auth = fmt.Sprintf("%s:%s@", user, pass)
		}
		uri = fmt.Sprintf("mongodb://%s%s:%s/%s", auth, db.Host(), db.Port(), stringOf(params, "database"))
	}
	return &mongoProvider{db: db, uri: uri}
}

// CheckConnection pings via the mongo shell, since no ecosystem MongoDB
// driver is available; mongodump/mongorestore are likewise CLI tools,
// so this keeps the whole provider on a single dependency surface.
func (p *mongoProvider) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	shell := "mongosh"
	if _, _, err := runTool(ctx, nil, nil, "mongosh", "--version"); err != nil {
		shell = "mongo"
	}
	_, _, err := runTool(ctx, nil, nil, shell, p.uri, "--quiet", "--eval", "db.adminCommand('ping')")
	return err == nil
}

// Backup runs mongodump into a scratch directory, then packs it into a
// single tar.gz archive so the rest of the pipeline (checksum,
// compress, encrypt, upload) operates on one file as it does for every
// other engine.
func (p *mongoProvider) Backup(ctx context.Context, dir string, progress Progress) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	if progress != nil {
		progress.Update("running mongodump")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", dberrors.ToolFailure(err, "create backup directory %s", dir)
	}

	name := fmt.Sprintf("%s_%s", p.db.Name, time.Now().Format("20060102_150405"))
	dumpDir := filepath.Join(dir, name)

	_, _, err := runTool(ctx, nil, nil, "mongodump",
		fmt.Sprintf("--uri=%s", p.uri),
		fmt.Sprintf("--out=%s", dumpDir),
		"--gzip",
	)
	if err != nil {
		_ = os.RemoveAll(dumpDir)
		return "", err
	}
	defer os.RemoveAll(dumpDir)

	if progress != nil {
		progress.Update("creating archive")
	}

	archivePath := filepath.Join(dir, name+".tar.gz")
	if err := tarGzDir(dumpDir, name, archivePath); err != nil {
		return "", dberrors.ToolFailure(err, "archive mongodump output")
	}

	if progress != nil {
		progress.Update("archive complete")
	}
	return archivePath, nil
}

// Restore extracts the tar.gz produced by Backup and runs mongorestore
// with --drop so restored collections replace whatever is present.
func (p *mongoProvider) Restore(ctx context.Context, file string, progress Progress) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	if progress != nil {
		progress.Update("extracting backup archive")
	}

	tmpDir, err := os.MkdirTemp("", "dbmanager-mongo-restore-*")
	if err != nil {
		return dberrors.ToolFailure(err, "create restore scratch directory")
	}
	defer os.RemoveAll(tmpDir)

	if err := untarGz(file, tmpDir); err != nil {
		return dberrors.ToolFailure(err, "extract mongodump archive %s", file)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil || len(entries) == 0 {
		return dberrors.IntegrityFailuref("no dump directory found in archive %s", file)
	}
	dumpDir := filepath.Join(tmpDir, entries[0].Name())

	if progress != nil {
		progress.Update("running mongorestore")
	}

	_, _, err = runTool(ctx, nil, nil, "mongorestore",
		fmt.Sprintf("--uri=%s", p.uri),
		"--gzip",
		"--drop",
		dumpDir,
	)
	if err != nil {
		return err
	}

	if progress != nil {
		progress.Update("restore complete")
	}
	return nil
}

// tarGzDir archives srcDir into destPath, rooting every entry under
// arcName inside the archive (so extraction reproduces a single
// top-level directory regardless of srcDir's absolute path).
func tarGzDir(srcDir, arcName, destPath string) error {
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		if rel == "." {
			hdr.Name = arcName + "/"
		} else {
			hdr.Name = filepath.ToSlash(filepath.Join(arcName, rel))
			if info.IsDir() {
				hdr.Name += "/"
			}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

func untarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
