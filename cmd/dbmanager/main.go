// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Command dbmanager is the invocation surface the installed crontab
// entries (§6) and the HTTP service shell out to: perform-backup,
// perform-restore, verify and test-storage each run once and exit,
// plus backup-all (the bounded fan-out of §4.4) and run-scheduler (the
// in-process suture-supervised complement to the external crontab).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/logging"
	"github.com/dbvault/dbmanager/internal/pipeline"
	"github.com/dbvault/dbmanager/internal/scheduler"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps the dberrors taxonomy onto process exit codes, so
// the crontab wrapper and the HTTP service (which shell out to this
// binary and inspect its exit status) can distinguish "nothing to do"
// from "this needs a human."
func exitCodeFor(err error) int {
	kind, ok := dberrors.KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case dberrors.NotFound:
		return 2
	case dberrors.Validation:
		return 3
	case dberrors.IntegrityFailure:
		return 4
	case dberrors.Critical:
		return 5
	default:
		return 1
	}
}

var appInstance *app

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbmanager",
		Short:         "Multi-database backup and restore manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			logging.Init(logging.Config{
				Level:     cfg.LogLevel,
				Format:    cfg.LogFormat,
				Timestamp: true,
				Output:    os.Stderr,
			})

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			appInstance = a
			return nil
		},
	}

	root.AddCommand(
		performBackupCmd(),
		backupAllCmd(),
		performRestoreCmd(),
		verifyCmd(),
		testStorageCmd(),
		runSchedulerCmd(),
	)
	return root
}

func performBackupCmd() *cobra.Command {
	var dbID int
	var tag string

	cmd := &cobra.Command{
		Use:   "perform-backup",
		Short: "Run the backup pipeline for one database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := appInstance.pipeline.Backup(cmd.Context(), dbID, tag, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written: %s\n", path)
			return nil
		},
	}
	cmd.Flags().IntVar(&dbID, "db-id", 0, "database ID to back up (required)")
	cmd.Flags().StringVar(&tag, "tag", "", "optional tag appended to the artifact name")
	cmd.MarkFlagRequired("db-id")
	return cmd
}

func backupAllCmd() *cobra.Command {
	var tag string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "backup-all",
		Short: "Run the backup pipeline for every configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency <= 0 {
				concurrency = appInstance.cfg.BackupAllWorkers
			}
			results := appInstance.pipeline.BackupAll(cmd.Context(), tag, concurrency)

			var failed int
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "database %d: FAILED: %v\n", r.DatabaseID, r.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "database %d: %s\n", r.DatabaseID, r.Path)
			}
			if failed > 0 {
				return dberrors.Wrap(fmt.Errorf("%d of %d databases failed", failed, len(results)), "backup-all")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "optional tag appended to every artifact name")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max databases backed up in parallel (default: configured backup_all_workers)")
	return cmd
}

func performRestoreCmd() *cobra.Command {
	var dbID int
	var backupFile string
	var location string
	var noSafetySnapshot bool

	cmd := &cobra.Command{
		Use:   "perform-restore",
		Short: "Restore a database from a backup artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := appInstance.pipeline.Restore(
				cmd.Context(), dbID, backupFile, pipeline.Location(location), !noSafetySnapshot, nil,
			)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "restore complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&dbID, "db-id", 0, "database ID to restore into (required)")
	cmd.Flags().StringVar(&backupFile, "backup-file", "", "local path or s3 object key of the artifact to restore (required)")
	cmd.Flags().StringVar(&location, "location", "local", `artifact location: "local" or "s3"`)
	cmd.Flags().BoolVar(&noSafetySnapshot, "no-safety-snapshot", false, "skip taking a rollback snapshot before restoring")
	cmd.MarkFlagRequired("db-id")
	cmd.MarkFlagRequired("backup-file")
	return cmd
}

func verifyCmd() *cobra.Command {
	var backupFile string
	var location string
	var dbID int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a backup artifact's checksum without restoring it",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := appInstance.pipeline.Verify(cmd.Context(), backupFile, pipeline.Location(location), dbID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid=%t: %s\n", result.Valid, result.Message)
			if !result.Valid {
				return dberrors.IntegrityFailuref("%s", result.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backupFile, "backup-file", "", "local path or s3 object key of the artifact to verify (required)")
	cmd.Flags().StringVar(&location, "location", "local", `artifact location: "local" or "s3"`)
	cmd.Flags().IntVar(&dbID, "database-id", 0, "database ID that owns the storage target (required for --location s3)")
	cmd.MarkFlagRequired("backup-file")
	return cmd
}

func testStorageCmd() *cobra.Command {
	var targetID int

	cmd := &cobra.Command{
		Use:   "test-storage",
		Short: "Verify connectivity to a configured storage target",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := appInstance.store.GetStorageTarget(targetID)
			if err != nil {
				return err
			}
			if err := appInstance.storage.TestStorage(cmd.Context(), target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "storage target %d (%s): OK\n", target.ID, target.Name)
			return nil
		},
	}
	cmd.Flags().IntVar(&targetID, "target-id", 0, "storage target ID to test (required)")
	cmd.MarkFlagRequired("target-id")
	return cmd
}

// runSchedulerCmd hosts scheduler.Runner under a suture.Supervisor, the
// in-process fallback for deployments that never install the external
// crontab entries CronLine describes. It runs until interrupted.
func runSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-scheduler",
		Short: "Run the in-process schedule poller until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
			sup := suture.New("dbmanager-scheduler", suture.Spec{EventHook: handler.MustHook()})

			runner := scheduler.NewRunner(appInstance.store, func(ctx context.Context, dbID int, tag string) (string, error) {
				return appInstance.pipeline.Backup(ctx, dbID, tag, nil)
			})
			sup.Add(runner)

			logging.Info().Msg("schedule runner starting")
			err := sup.Serve(ctx)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
