// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package scheduler

import (
	"testing"
	"time"

	"github.com/dbvault/dbmanager/internal/dberrors"
)

func TestParseExpressionRejectsWrongFieldCount(t *testing.T) {
	t.Parallel()

	cases := []string{
		"* * * *",      // 4 fields
		"* * * * * *",  // 6 fields (seconds extension)
		"@daily",       // predefined schedule extension
		"",
	}
	for _, expr := range cases {
		if _, err := ParseExpression(expr); err == nil {
			t.Errorf("expected ParseExpression(%q) to fail", expr)
		} else if kind, ok := dberrors.KindOf(err); !ok || kind != dberrors.Validation {
			t.Errorf("ParseExpression(%q): expected a Validation error, got %v", expr, err)
		}
	}
}

func TestParseExpressionAcceptsFiveFields(t *testing.T) {
	t.Parallel()

	if _, err := ParseExpression("0 3 * * *"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseExpressionRejectsInvalidField(t *testing.T) {
	t.Parallel()

	if _, err := ParseExpression("99 3 * * *"); err == nil {
		t.Fatal("expected an error for an out-of-range minute field")
	}
}

func TestNextRunAdvancesStrictlyAfterFrom(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	next, err := NextRun("0 3 * * *", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.After(from) {
		t.Errorf("expected next run strictly after %v, got %v", from, next)
	}
	if next.Sub(from) != 24*time.Hour {
		t.Errorf("expected next daily run 24h later, got %v later", next.Sub(from))
	}
}

func TestCronLineIncludesDataDirAndDiscriminator(t *testing.T) {
	t.Parallel()

	line, err := CronLine("0 3 * * *", "/usr/local/bin/dbmanager", "/var/lib/dbmanager", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0 3 * * * DBMANAGER_DATA_DIR=/var/lib/dbmanager /usr/local/bin/dbmanager perform-backup --db-id 7 # dbmanager-backup:7"
	if line != want {
		t.Errorf("CronLine() = %q, want %q", line, want)
	}
}

func TestCronLineOmitsDataDirWhenEmpty(t *testing.T) {
	t.Parallel()

	line, err := CronLine("0 3 * * *", "/usr/local/bin/dbmanager", "", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0 3 * * * /usr/local/bin/dbmanager perform-backup --db-id 7 # dbmanager-backup:7"
	if line != want {
		t.Errorf("CronLine() = %q, want %q", line, want)
	}
}

func TestCronLineRejectsInvalidExpression(t *testing.T) {
	t.Parallel()

	if _, err := CronLine("not a cron expr", "/usr/local/bin/dbmanager", "", 1); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestParseDiscriminatorRoundTrip(t *testing.T) {
	t.Parallel()

	line, err := CronLine("0 3 * * *", "/usr/local/bin/dbmanager", "", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, ok := ParseDiscriminator(line)
	if !ok {
		t.Fatal("expected ParseDiscriminator to recognize the line")
	}
	if id != 42 {
		t.Errorf("ParseDiscriminator() = %d, want 42", id)
	}
}

func TestParseDiscriminatorRejectsUnrelatedComment(t *testing.T) {
	t.Parallel()

	if _, ok := ParseDiscriminator("0 3 * * * /usr/bin/true # some other cron job"); ok {
		t.Error("expected ParseDiscriminator to reject a line it doesn't own")
	}
	if _, ok := ParseDiscriminator("0 3 * * * /usr/bin/true"); ok {
		t.Error("expected ParseDiscriminator to reject a line with no comment at all")
	}
}
