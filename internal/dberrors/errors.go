// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package dberrors defines the error taxonomy shared across the backup
// and restore pipeline. Every component that can fail returns a *Error
// carrying a Kind instead of an ad-hoc sentinel, so callers can branch on
// the taxonomy without string-matching messages.
package dberrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the pipeline and its callers need to
// react to it, independent of which component raised it.
type Kind string

const (
	// NotFound covers a missing database, storage target, artifact, or
	// remote key.
	NotFound Kind = "not_found"
	// Validation covers malformed input: bad provider name, malformed
	// cron expression, invalid restore location, unknown compression
	// algorithm, encryption requested without a password.
	Validation Kind = "validation"
	// InUse covers deleting a storage target still referenced by a
	// database or by config-sync.
	InUse Kind = "in_use"
	// IntegrityFailure covers checksum mismatches and missing required
	// sidecars on an encrypted restore.
	IntegrityFailure Kind = "integrity_failure"
	// ToolFailureKind covers a native dump/restore tool exiting non-zero,
	// or writing "error:" to stderr even on a zero exit.
	ToolFailureKind Kind = "tool_failure"
	// RemoteFailureKind covers storage upload/download/list/head failures.
	RemoteFailureKind Kind = "remote_failure"
	// Critical covers restore failing AND rollback failing. Must never
	// be silently handled.
	Critical Kind = "critical"
)

// Error is the concrete error type returned throughout the pipeline.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind when the target is itself a *Error
// with the same Kind; the target's message and cause are ignored, so
// any *Error of a Kind works as a sentinel-by-kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newErr(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) *Error { return newErr(NotFound, nil, format, args...) }

// Validationf builds a Validation error.
func Validationf(format string, args ...any) *Error { return newErr(Validation, nil, format, args...) }

// InUsef builds an InUse error.
func InUsef(format string, args ...any) *Error { return newErr(InUse, nil, format, args...) }

// IntegrityFailuref builds an IntegrityFailure error.
func IntegrityFailuref(format string, args ...any) *Error {
	return newErr(IntegrityFailure, nil, format, args...)
}

// ToolFailure builds a ToolFailureKind error wrapping the underlying
// cause, typically the verbatim stderr of the failed tool.
func ToolFailure(cause error, format string, args ...any) *Error {
	return newErr(ToolFailureKind, cause, format, args...)
}

// RemoteFailure builds a RemoteFailureKind error wrapping the underlying
// cause.
func RemoteFailure(cause error, format string, args ...any) *Error {
	return newErr(RemoteFailureKind, cause, format, args...)
}

// Criticalf builds a Critical error wrapping the underlying cause. This
// kind must always be logged at the highest severity by the caller.
func Criticalf(cause error, format string, args ...any) *Error {
	return newErr(Critical, cause, format, args...)
}

// KindOf returns the Kind of err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Wrap adds context to err without changing its Kind when err is
// already a *Error; otherwise it is equivalent to fmt.Errorf("%s: %w").
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Message: fmt.Sprintf(format, args...) + ": " + e.Message, Cause: e.Cause}
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
