// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/dbvault/dbmanager/internal/cryptoutil"
	"github.com/dbvault/dbmanager/internal/model"
)

// EnforceLocalRetention deletes local artifacts (and their sidecars)
// past index keep, sorted by mtime descending, per spec §4.4 step 8 and
// §8's scenario 6. It reads a fresh snapshot of the directory each
// call; a concurrent backup landing between the listing and the delete
// may transiently exceed keep (accepted, per SPEC_FULL.md's recorded
// open-question decision on the parallel-backup retention race).
func (p *Pipeline) EnforceLocalRetention(db model.Database, keep int) error {
	artifacts, err := p.listLocalArtifacts(db)
	if err != nil {
		return err
	}
	if len(artifacts) <= keep {
		return nil
	}
	for _, a := range artifacts[keep:] {
		_ = os.Remove(a.path)
		_ = os.Remove(a.path + cryptoutil.SidecarSuffix)
	}
	return nil
}

// PreviewLocalRetention returns the paths that EnforceLocalRetention
// would delete, without deleting them — carried forward from the
// original system's retention preview (SPEC_FULL.md Supplemented
// Features).
func (p *Pipeline) PreviewLocalRetention(db model.Database, keep int) ([]string, error) {
	artifacts, err := p.listLocalArtifacts(db)
	if err != nil {
		return nil, err
	}
	if len(artifacts) <= keep {
		return nil, nil
	}
	out := make([]string, 0, len(artifacts)-keep)
	for _, a := range artifacts[keep:] {
		out = append(out, a.path)
	}
	return out, nil
}

// enforceRemoteRetention deletes objects on target past index keep,
// sorted by remote LastModified descending, deleting each object's
// sidecar by key suffix alongside it.
func (p *Pipeline) enforceRemoteRetention(ctx context.Context, db model.Database, target model.StorageTarget, keep int) error {
	prefix := prefixFor(db)
	objs, err := p.Storage.List(ctx, target, prefix, 0)
	if err != nil {
		return err
	}

	var artifacts []string
	for _, o := range objs {
		if hasSidecarSuffix(o.Key) {
			continue
		}
		artifacts = append(artifacts, o.Key)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].LastModified > objs[j].LastModified })

	byKey := make(map[string]int64, len(objs))
	for _, o := range objs {
		byKey[o.Key] = o.LastModified
	}
	sort.Slice(artifacts, func(i, j int) bool { return byKey[artifacts[i]] > byKey[artifacts[j]] })

	if len(artifacts) <= keep {
		return nil
	}
	for _, key := range artifacts[keep:] {
		if err := p.Storage.Delete(ctx, target, key); err != nil {
			return err
		}
		_ = p.Storage.Delete(ctx, target, key+cryptoutil.SidecarSuffix)
	}
	return nil
}

func prefixFor(db model.Database) string {
	return fmt.Sprintf("backups/%d/", db.ID)
}

func hasSidecarSuffix(key string) bool {
	n := len(key)
	m := len(cryptoutil.SidecarSuffix)
	return n >= m && key[n-m:] == cryptoutil.SidecarSuffix
}
