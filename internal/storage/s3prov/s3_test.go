// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package s3prov

import "testing"

func TestNewDefaultsToAWSEndpoint(t *testing.T) {
	p, err := New(Config{Bucket: "backups", AccessKey: "ak", SecretKey: "sk"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.bucket != "backups" {
		t.Fatalf("bucket = %q, want %q", p.bucket, "backups")
	}
	if got := p.client.EndpointURL().Host; got != "s3.amazonaws.com" {
		t.Fatalf("endpoint host = %q, want %q", got, "s3.amazonaws.com")
	}
}

func TestNewHonorsEndpointOverride(t *testing.T) {
	for _, tc := range []struct {
		name, url, host string
	}{
		{"minio http", "http://localhost:9000", "localhost:9000"},
		{"garage https", "https://garage.example.com", "garage.example.com"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(Config{Bucket: "b", AccessKey: "ak", SecretKey: "sk", EndpointURL: tc.url})
			if err != nil {
				t.Fatalf("New(%s): %v", tc.url, err)
			}
			if p == nil {
				t.Fatal("expected non-nil provider")
			}
			if got := p.client.EndpointURL().Host; got != tc.host {
				t.Fatalf("endpoint host = %q, want %q", got, tc.host)
			}
		})
	}
}

func TestNewRejectsInvalidEndpoint(t *testing.T) {
	if _, err := New(Config{Bucket: "b", EndpointURL: "://not-a-url"}); err == nil {
		t.Fatal("expected error for invalid endpoint URL")
	}
}

func TestCanonicalMetaKey(t *testing.T) {
	cases := map[string]string{
		"dedup_ref": "Dedup_ref",
		"hash":      "Hash",
		"":          "",
	}
	for in, want := range cases {
		if got := canonicalMetaKey(in); got != want {
			t.Errorf("canonicalMetaKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCloneMeta(t *testing.T) {
	if cloneMeta(nil) != nil {
		t.Fatal("expected nil passthrough for nil metadata")
	}
	src := map[string]string{"hash": "abc"}
	clone := cloneMeta(src)
	clone["hash"] = "mutated"
	if src["hash"] != "abc" {
		t.Fatal("expected cloneMeta to return an independent copy")
	}
}
