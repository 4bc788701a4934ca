// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package dbprovider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/dbvault/dbmanager/internal/dberrors"
	"github.com/dbvault/dbmanager/internal/model"
)

func unknownProviderErr(p model.DBProvider) error {
	return dberrors.Validationf("unknown database provider %q", p)
}

// runTool runs name with args under ctx (bounded by Timeout by the
// caller), capturing stdout/stderr separately. A non-zero exit returns
// a ToolFailure carrying the tool's stderr verbatim, per spec §4.6.
func runTool(ctx context.Context, env []string, stdin *os.File, name string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if env != nil {
		cmd.Env = env
	}
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()
	if runErr != nil {
		return stdout, stderr, dberrors.ToolFailure(runErr, "%s: %s", name, strings.TrimSpace(stderr))
	}
	return stdout, stderr, nil
}

// dumpEnv returns os.Environ() with an extra KEY=VALUE appended, used to
// pass tool passwords via environment rather than argv.
func dumpEnv(key, value string) []string {
	return append(os.Environ(), fmt.Sprintf("%s=%s", key, value))
}
