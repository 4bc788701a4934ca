// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package compressutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRoundTripAllAlgorithms(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog; "), 200)

	cases := []struct {
		algo  Algorithm
		level int
	}{
		{Gzip, 1},
		{Gzip, 9},
		{Zstd, 1},
		{Zstd, 3},
		{Lz4, 0},
	}

	for _, tc := range cases {
		t.Run(string(tc.algo), func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "artifact.dump")
			if err := os.WriteFile(src, payload, 0o600); err != nil {
				t.Fatalf("write src: %v", err)
			}

			compressed := filepath.Join(dir, "artifact.dump."+tc.algo.Extension())
			if err := CompressFile(src, compressed, tc.algo, tc.level); err != nil {
				t.Fatalf("CompressFile(%s, level=%d): %v", tc.algo, tc.level, err)
			}

			algo, ok := SniffAlgorithm(compressed)
			if !ok || algo != tc.algo {
				t.Fatalf("SniffAlgorithm(%s) = %v, %v, want %v, true", compressed, algo, ok, tc.algo)
			}

			decompressed := filepath.Join(dir, "artifact.dump.out")
			if err := DecompressFile(compressed, decompressed, algo); err != nil {
				t.Fatalf("DecompressFile: %v", err)
			}

			got, err := os.ReadFile(decompressed)
			if err != nil {
				t.Fatalf("read decompressed: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("round trip mismatch for %s: got %d bytes, want %d bytes", tc.algo, len(got), len(payload))
			}
		})
	}
}

func TestSniffAlgorithmNoMatch(t *testing.T) {
	if _, ok := SniffAlgorithm("artifact.dump"); ok {
		t.Fatal("expected no match for unsuffixed path")
	}
	if _, ok := SniffAlgorithm("artifact.dump.enc"); ok {
		t.Fatal("expected no match for .enc suffix")
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, s := range []string{"gzip", "GZIP", "zstd", "lz4"} {
		if _, err := ParseAlgorithm(s); err != nil {
			t.Errorf("ParseAlgorithm(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseAlgorithm("bzip2"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestCompressFileUnknownAlgorithm(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.WriteFile(src, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := CompressFile(src, filepath.Join(dir, "dst"), Algorithm("bogus"), 1)
	if err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}
