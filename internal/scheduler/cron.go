// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package scheduler bridges Schedule bookkeeping (spec §4.7) to the
// OS crontab: it validates and parses five-field cron expressions,
// computes next-run times, and builds the cron line the external
// crontab writer installs. It also runs an in-process supervised loop
// that fires due schedules directly, so a deployment that never wires
// up the external crontab collaborator still gets scheduled backups.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dbvault/dbmanager/internal/dberrors"
)

// strictParser accepts exactly five fields (minute hour dom month
// dow), rejecting the seconds-field and predefined-schedule (@daily)
// extensions cron/v3 otherwise allows, per spec §6 "Five-field
// schedules only."
var strictParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseExpression validates expr as a strict five-field cron
// expression and returns its robfig/cron/v3 schedule.
func ParseExpression(expr string) (cron.Schedule, error) {
	if fields := strings.Fields(expr); len(fields) != 5 {
		return nil, dberrors.Validationf("cron expression %q must have exactly 5 fields, got %d", expr, len(fields))
	}
	sched, err := strictParser.Parse(expr)
	if err != nil {
		return nil, dberrors.Validationf("invalid cron expression %q: %v", expr, err)
	}
	return sched, nil
}

// NextRun returns the next activation of expr strictly after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseExpression(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// backupCommandDiscriminator is the comment tag spec §6 requires on
// every cron entry this system installs, so the crontab writer can
// find and replace its own lines without touching unrelated entries.
const backupCommandDiscriminator = "dbmanager-backup"

// CronLine builds the full crontab line for a scheduled backup of
// databaseID: "<expr> <command> # dbmanager-backup:<db_id>". binPath
// is the dbmanager binary invoked (argv[0] of the running process, or
// an operator-supplied override); dataDir becomes a DBMANAGER_DATA_DIR
// assignment when non-empty.
func CronLine(expr string, binPath string, dataDir string, databaseID int) (string, error) {
	if _, err := ParseExpression(expr); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(expr)
	b.WriteString(" ")
	if dataDir != "" {
		fmt.Fprintf(&b, "DBMANAGER_DATA_DIR=%s ", dataDir)
	}
	fmt.Fprintf(&b, "%s perform-backup --db-id %d", binPath, databaseID)
	fmt.Fprintf(&b, " # %s:%d", backupCommandDiscriminator, databaseID)
	return b.String(), nil
}

// ParseDiscriminator extracts the database ID from a cron comment
// discriminator of the form "dbmanager-backup:<db_id>", for the
// crontab writer to recognize lines it owns. ok is false if line
// carries no recognizable discriminator.
func ParseDiscriminator(line string) (databaseID int, ok bool) {
	idx := strings.Index(line, "#")
	if idx < 0 {
		return 0, false
	}
	comment := strings.TrimSpace(line[idx+1:])
	prefix := backupCommandDiscriminator + ":"
	if !strings.HasPrefix(comment, prefix) {
		return 0, false
	}
	if _, err := fmt.Sscanf(strings.TrimPrefix(comment, prefix), "%d", &databaseID); err != nil {
		return 0, false
	}
	return databaseID, true
}
