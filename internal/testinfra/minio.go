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

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultMinioImage = "minio/minio:RELEASE.2024-11-07T00-52-20Z"

// MinioContainer is a running Minio instance with one bucket created and
// ready for the storage-provider integration tests.
type MinioContainer struct {
	testcontainers.Container
	EndpointURL string
	AccessKey   string
	SecretKey   string
	Bucket      string
}

// NewMinioContainer starts a disposable Minio container and creates
// bucket, so s3prov.TestConnection has something to find.
func NewMinioContainer(ctx context.Context, accessKey, secretKey, bucket string) (*MinioContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        defaultMinioImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     accessKey,
			"MINIO_ROOT_PASSWORD": secretKey,
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, "9000")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}
	endpoint := fmt.Sprintf("http://%s:%s", host, mapped.Port())

	client, err := minio.New(fmt.Sprintf("%s:%s", host, mapped.Port()), &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("create minio admin client: %w", err)
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	return &MinioContainer{
		Container:   container,
		EndpointURL: endpoint,
		AccessKey:   accessKey,
		SecretKey:   secretKey,
		Bucket:      bucket,
	}, nil
}
