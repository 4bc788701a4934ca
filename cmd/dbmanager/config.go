// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// runtimeConfig is the process bootstrap configuration: where the
// data directory lives and how to log, layered defaults -> config
// file -> environment per the donor's LoadWithKoanf.
type runtimeConfig struct {
	DataDir          string `koanf:"data_dir"`
	LogLevel         string `koanf:"log_level"`
	LogFormat        string `koanf:"log_format"`
	BackupAllWorkers int    `koanf:"backup_all_workers"`
}

// envPrefix is the namespace every environment variable this process
// reads lives under: DBMANAGER_DATA_DIR, DBMANAGER_LOG_LEVEL, etc.
const envPrefix = "DBMANAGER_"

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		DataDir:          defaultDataDir(),
		LogLevel:         "info",
		LogFormat:        "json",
		BackupAllWorkers: 2,
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".dbmanager")
	}
	return ".dbmanager"
}

// loadRuntimeConfig layers built-in defaults, an optional YAML config
// file (DBMANAGER_CONFIG_PATH, or config.yaml in the working
// directory) and DBMANAGER_*-prefixed environment variables, in that
// order of increasing precedence.
func loadRuntimeConfig() (runtimeConfig, error) {
	k := koanf.New(".")

	defaults := defaultRuntimeConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return runtimeConfig{}, fmt.Errorf("load runtime config defaults: %w", err)
	}

	if path := findRuntimeConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return runtimeConfig{}, fmt.Errorf("load runtime config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(s)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return runtimeConfig{}, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg runtimeConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return runtimeConfig{}, fmt.Errorf("unmarshal runtime config: %w", err)
	}
	if cfg.BackupAllWorkers <= 0 {
		cfg.BackupAllWorkers = defaultRuntimeConfig().BackupAllWorkers
	}
	return cfg, nil
}

func findRuntimeConfigFile() string {
	if p := os.Getenv(envPrefix + "CONFIG_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
