// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultMySQLImage = "mysql:8.0"

// MySQLContainer is a running MySQL instance reachable over TCP, seeded
// with the given user/password/database.
type MySQLContainer struct {
	testcontainers.Container
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// NewMySQLContainer starts a disposable MySQL container for the
// dbprovider backup/restore integration tests.
func NewMySQLContainer(ctx context.Context, user, password, database string) (*MySQLContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        defaultMySQLImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": password,
			"MYSQL_USER":          user,
			"MYSQL_PASSWORD":      password,
			"MYSQL_DATABASE":      database,
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create mysql container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, "3306")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &MySQLContainer{
		Container: container,
		Host:      host,
		Port:      mapped.Port(),
		User:      user,
		Password:  password,
		Database:  database,
	}, nil
}
