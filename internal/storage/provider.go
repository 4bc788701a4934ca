// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package storage defines the storage-target abstraction (spec §4.2)
// and the Manager that owns provider construction, the InUse guard,
// and the dedup-probe logic the backup pipeline drives (spec §4.4 step
// 7). Concrete providers live in the s3prov and smbprov subpackages.
package storage

import "context"

// ObjectInfo is what GetInfo/List return for a single remote object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified int64 // unix seconds
	Metadata     map[string]string
}

// Provider is the polymorphic capability set every storage target
// backend implements, per spec §4.2.
type Provider interface {
	// Upload uploads the file at localPath under key, attaching
	// metadata. When dedupRef is non-empty, the provider instead
	// writes a dedup pointer (S3) or performs a server-side copy
	// (SMB) referencing dedupRef, per spec §4.2.1/§4.2.2.
	Upload(ctx context.Context, localPath, key string, metadata map[string]string, dedupRef string) error
	// Download fetches key into localPath, transparently following at
	// most one dedup pointer hop.
	Download(ctx context.Context, key, localPath string) error
	// Delete removes key. Idempotent: deleting an already-absent
	// object must not return an error.
	Delete(ctx context.Context, key string) error
	// List returns objects under prefix, in arbitrary order (callers
	// sort). maxKeys<=0 means no explicit cap.
	List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error)
	// GetInfo returns metadata for key, or ok=false if it doesn't
	// exist.
	GetInfo(ctx context.Context, key string) (info ObjectInfo, ok bool, err error)
	// TestConnection verifies reachability and basic permissions.
	TestConnection(ctx context.Context) error
	// Close releases any held session/connection resources.
	Close() error
}

// DedupPointerBody is the literal object body written for a
// deduplication pointer (spec §3, §4.2.1).
const DedupPointerBody = "DEDUP_POINTER"

// DedupRefKey is the metadata key carrying the target key a dedup
// pointer refers to.
const DedupRefKey = "dedup_ref"
