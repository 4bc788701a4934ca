// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package model holds the data records shared across the configuration
// store, storage manager, and backup/restore pipeline: Database, Storage
// target, Schedule, Backup artifact metadata and Task.
//
// Provider-specific fields follow a tagged-union shape: a discriminator
// field selects the variant, a handful of typed fields cover the common
// case, and an Extra map preserves any unknown keys so a round-trip
// through the config store never silently drops data it doesn't
// understand yet.
package model

import (
	"time"

	"github.com/goccy/go-json"
)

// DBProvider enumerates the supported database engines.
type DBProvider string

const (
	ProviderPostgres  DBProvider = "postgres"
	ProviderMySQL     DBProvider = "mysql"
	ProviderMariaDB   DBProvider = "mariadb"
	ProviderSQLServer DBProvider = "sqlserver"
	ProviderMongoDB   DBProvider = "mongodb"
	// ProviderSQLite is a supplement beyond the literal spec enum (see
	// SPEC_FULL.md's Supplemented Features); it does not remove any of
	// the five required engines above.
	ProviderSQLite DBProvider = "sqlite"
)

// ValidDBProviders lists every accepted value for Database.Provider.
var ValidDBProviders = map[DBProvider]bool{
	ProviderPostgres:  true,
	ProviderMySQL:     true,
	ProviderMariaDB:   true,
	ProviderSQLServer: true,
	ProviderMongoDB:   true,
	ProviderSQLite:    true,
}

// Database is a single registered database to be backed up.
type Database struct {
	ID     int            `json:"id"`
	Name   string         `json:"name" validate:"required"`
	Provider DBProvider   `json:"provider" validate:"required"`
	Params map[string]any `json:"params"`

	Retention        int   `json:"retention"`
	StorageTargetIDs []int `json:"storage_target_ids"`

	// S3BucketID is the legacy single-target field. ConfigStore migrates
	// it into StorageTargetIDs on first load and never writes it back.
	S3BucketID   *int `json:"s3_bucket_id,omitempty"`
	S3Retention  int  `json:"s3_retention"`
}

// Host returns the params["host"] convenience accessor used by provider
// drivers; params is intentionally untyped so unknown provider-specific
// keys survive a config round-trip.
func (d *Database) Host() string { return stringParam(d.Params, "host") }

// Port returns the params["port"] convenience accessor.
func (d *Database) Port() string { return stringParam(d.Params, "port") }

func stringParam(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return trimFloat(v)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return itoa(int64(f))
	}
	return ""
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// TargetProvider enumerates the supported storage target backends.
type TargetProvider string

const (
	TargetS3         TargetProvider = "s3"
	TargetMinio      TargetProvider = "minio"
	TargetGarage     TargetProvider = "garage"
	TargetAWS        TargetProvider = "aws"
	TargetCloudflare TargetProvider = "cloudflare"
	TargetOther      TargetProvider = "other"
	TargetSMB        TargetProvider = "smb"
)

// IsS3Family reports whether p is backed by the S3 provider
// implementation (everything except SMB).
func (p TargetProvider) IsS3Family() bool { return p != TargetSMB }

// StorageTarget is a configured backup destination.
type StorageTarget struct {
	ID       int            `json:"id"`
	Name     string         `json:"name" validate:"required"`
	Provider TargetProvider `json:"provider" validate:"required"`

	// S3-family fields.
	Bucket      string `json:"bucket,omitempty"`
	AccessKey   string `json:"access_key,omitempty"`
	SecretKey   string `json:"secret_key,omitempty"`
	EndpointURL string `json:"endpoint_url,omitempty"`
	Region      string `json:"region,omitempty"`

	// SMB fields.
	Server     string `json:"server,omitempty"`
	ShareName  string `json:"share_name,omitempty"`
	SMBUser    string `json:"smb_username,omitempty"`
	SMBPass    string `json:"smb_password,omitempty"`
	Domain     string `json:"domain,omitempty"`
	RemotePath string `json:"remote_path,omitempty"`

	// Extra preserves any field this version doesn't know about yet.
	Extra map[string]any `json:"extra,omitempty"`
}

// Schedule is a declarative cron-entry CRUD record; the OS crontab write
// itself is an external collaborator (see SPEC_FULL.md).
type Schedule struct {
	ID             int        `json:"id"`
	DatabaseID     int        `json:"database_id" validate:"required"`
	CronExpression string     `json:"cron_expression" validate:"required"`
	Enabled        bool       `json:"enabled"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
}

// TaskStatus mirrors spec §4.7's task status enum.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is an externally observable handle for a long-running operation.
type Task struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// Clone returns a deep-enough copy of t for safe hand-off across
// goroutines (the Result field is handed off by reference, matching
// the read-only contract callers observe it under).
func (t *Task) Clone() Task { return *t }

// BackupTrigger classifies how a backup artifact came to exist.
type BackupTrigger string

const (
	TriggerManual       BackupTrigger = "manual"
	TriggerScheduled    BackupTrigger = "scheduled"
	TriggerPreRestore   BackupTrigger = "pre_restore"
	TriggerSafetySnapshot BackupTrigger = "safety_snapshot"
)

// Backup describes a single produced artifact (local bookkeeping; the
// canonical on-disk/remote layout is defined in SPEC_FULL.md §6/§3).
type Backup struct {
	DatabaseID  int           `json:"database_id"`
	Path        string        `json:"path"`
	Tag         string        `json:"tag,omitempty"`
	Trigger     BackupTrigger `json:"trigger"`
	Checksum    string        `json:"checksum"`
	Compressed  bool          `json:"compressed"`
	Encrypted   bool          `json:"encrypted"`
	SizeBytes   int64         `json:"size_bytes"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CompressionSettings is the global.compression block of the config
// document (spec §4.4 step 5).
type CompressionSettings struct {
	Enabled   bool   `json:"enabled"`
	Algorithm string `json:"algorithm"`
	Level     int    `json:"level"`
}

// EncryptionSettings is the global.encryption block (spec §4.4 step 6).
// Password is stored in cleartext on disk per §4.1's explicit invariant;
// the HTTP boundary layer (out of scope) is responsible for redacting it
// from any API response.
type EncryptionSettings struct {
	Enabled  bool   `json:"enabled"`
	Password string `json:"password,omitempty"`
}

// GlobalSettings is the config document's "global_settings" key.
type GlobalSettings struct {
	Compression CompressionSettings `json:"compression"`
	Encryption  EncryptionSettings  `json:"encryption"`
}

// AuthSettings carries the single field the core touches directly: the
// JWT signing secret config-sync mirrors along with everything else.
// Token issuance itself is the out-of-scope HTTP surface.
type AuthSettings struct {
	JWTSecret string `json:"jwt_secret,omitempty"`
}

// User is an opaque record the core persists and mirrors but never
// interprets; the HTTP/auth surface owns its shape. Extra preserves
// every field so a round-trip through ConfigStore never drops one.
type User struct {
	ID    int
	Extra map[string]any
}

// MarshalJSON flattens ID and Extra into a single object so a user
// record saved by an out-of-scope HTTP/auth layer (username, password
// hash, roles, ...) round-trips through ConfigStore unchanged.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+1)
	for k, v := range u.Extra {
		out[k] = v
	}
	out["id"] = u.ID
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON: id is lifted into the
// typed field, everything else is kept verbatim in Extra.
func (u *User) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if idVal, ok := raw["id"]; ok {
		if f, ok := idVal.(float64); ok {
			u.ID = int(f)
		}
		delete(raw, "id")
	}
	u.Extra = raw
	return nil
}

// NotificationSettings is likewise opaque bookkeeping the core persists
// and mirrors on behalf of the out-of-scope notification dispatcher.
type NotificationSettings map[string]any

// Config is the single JSON document ConfigStore owns (spec §3's Config
// record, §4.1).
type Config struct {
	Databases       []Database            `json:"databases"`
	StorageTargets  []StorageTarget       `json:"storage_targets"`
	Schedules       []Schedule            `json:"schedules"`
	GlobalSettings  GlobalSettings        `json:"global_settings"`
	ConfigSyncBucketID *int               `json:"config_sync_bucket_id,omitempty"`
	Auth            AuthSettings          `json:"auth"`
	Users           []User                `json:"users,omitempty"`
	Notifications   NotificationSettings  `json:"notifications,omitempty"`

	// S3Buckets is the legacy key name for StorageTargets; ConfigStore
	// migrates it on first load and never writes it back (spec §4.1's
	// one-shot migration, Design Note 3 in SPEC_FULL.md).
	S3Buckets []StorageTarget `json:"s3_buckets,omitempty"`
}
