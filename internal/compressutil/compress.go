// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package compressutil implements the streaming compress/decompress
// helpers used by the backup pipeline: gzip, zstd and lz4, selected by
// filename extension per spec §6's compression-sniffing rule.
package compressutil

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/dbvault/dbmanager/internal/dberrors"
)

// Algorithm identifies a supported compression codec.
type Algorithm string

const (
	Gzip Algorithm = "gzip"
	Zstd Algorithm = "zstd"
	Lz4  Algorithm = "lz4"
)

// Extension returns the filename extension (without the leading dot
// counted twice) this algorithm appends, e.g. "gz" for Gzip.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return "gz"
	case Zstd:
		return "zst"
	case Lz4:
		return "lz4"
	default:
		return ""
	}
}

// ParseAlgorithm validates a user-supplied algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(s)) {
	case Gzip:
		return Gzip, nil
	case Zstd:
		return Zstd, nil
	case Lz4:
		return Lz4, nil
	default:
		return "", dberrors.Validationf("unknown compression algorithm %q", s)
	}
}

// SniffAlgorithm detects the compression algorithm from a path's
// extension, per spec §6: ".gz" / ".zst" / ".lz4". ok is false when the
// path carries none of those extensions.
func SniffAlgorithm(path string) (algo Algorithm, ok bool) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return Gzip, true
	case strings.HasSuffix(path, ".zst"):
		return Zstd, true
	case strings.HasSuffix(path, ".lz4"):
		return Lz4, true
	default:
		return "", false
	}
}

// CompressFile streams srcPath through algo at the given level (ignored
// by lz4, which has no comparable level knob) and writes the result to
// dstPath. It does not remove srcPath.
func CompressFile(srcPath, dstPath string, algo Algorithm, level int) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s for compression: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer dst.Close()

	var w io.WriteCloser
	switch algo {
	case Gzip:
		gw, err := gzip.NewWriterLevel(dst, level)
		if err != nil {
			return fmt.Errorf("create gzip writer: %w", err)
		}
		w = gw
	case Zstd:
		zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		w = zw
	case Lz4:
		lw := lz4.NewWriter(dst)
		w = lw
	default:
		return dberrors.Validationf("unknown compression algorithm %q", algo)
	}

	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return fmt.Errorf("compress %s: %w", srcPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize compressed stream: %w", err)
	}
	return nil
}

// DecompressFile streams srcPath through the decoder for algo (sniffed
// by the caller via SniffAlgorithm) and writes the plaintext to dstPath.
func DecompressFile(srcPath, dstPath string, algo Algorithm) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s for decompression: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer dst.Close()

	var r io.Reader
	switch algo {
	case Gzip:
		gr, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("create gzip reader: %w", err)
		}
		defer gr.Close()
		r = gr
	case Zstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case Lz4:
		r = lz4.NewReader(src)
	default:
		return dberrors.Validationf("unknown compression algorithm %q", algo)
	}

	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("decompress %s: %w", srcPath, err)
	}
	return nil
}
