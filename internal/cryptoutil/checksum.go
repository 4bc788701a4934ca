// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package cryptoutil provides the checksum and authenticated-encryption
// primitives the backup pipeline needs: SHA-256 sidecar checksums and
// AES-256-GCM encryption with PBKDF2-SHA256 key derivation.
package cryptoutil

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// SidecarSuffix is appended to an artifact's path to name its checksum
// sidecar file.
const SidecarSuffix = ".sha256"

// ChecksumFile computes the SHA-256 digest of the file at path, returning
// it as a lowercase hex string.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for checksum: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// WriteSidecar writes the standard "<hex>  <basename>\n" sidecar line for
// artifactBasename next to it, at sidecarPath.
func WriteSidecar(sidecarPath, hexDigest, artifactBasename string) error {
	content := fmt.Sprintf("%s  %s\n", hexDigest, artifactBasename)
	return os.WriteFile(sidecarPath, []byte(content), 0o600)
}

// ReadSidecarHash reads a sidecar file and returns just the hex digest
// (the part before the first run of whitespace).
func ReadSidecarHash(sidecarPath string) (string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", err
	}
	for i, b := range data {
		if b == ' ' || b == '\t' || b == '\n' {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}
