// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package s3prov implements the S3-compatible storage provider (AWS S3,
// Minio, Garage, Cloudflare R2, or any other S3-compatible endpoint),
// grounded on the retrieval pack's safebucket GenericS3Storage: a
// minio-go/v7 client configured with an optional endpoint override so
// the same code path covers AWS and self-hosted S3-compatible stores.
package s3prov

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dbvault/dbmanager/internal/storage"
)

// Config configures an S3-compatible provider instance.
type Config struct {
	Bucket      string
	AccessKey   string
	SecretKey   string
	EndpointURL string // empty means AWS S3 default endpoint
	Region      string
}

// Provider is the S3-compatible storage.Provider implementation.
type Provider struct {
	client *minio.Client
	bucket string
}

// New constructs a Provider for cfg, deriving the minio-go endpoint and
// TLS setting from EndpointURL (Minio/Garage/R2) or defaulting to AWS.
func New(cfg Config) (*Provider, error) {
	endpoint := "s3.amazonaws.com"
	secure := true
	if cfg.EndpointURL != "" {
		u, err := url.Parse(cfg.EndpointURL)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint url %q: %w", cfg.EndpointURL, err)
		}
		endpoint = u.Host
		secure = u.Scheme != "http"
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", endpoint, err)
	}

	return &Provider{client: client, bucket: cfg.Bucket}, nil
}

// Upload implements storage.Provider. When dedupRef is set it writes the
// literal DEDUP_POINTER body with metadata["dedup_ref"]=dedupRef instead
// of the real file content, per spec §4.2.1.
func (p *Provider) Upload(ctx context.Context, localPath, key string, metadata map[string]string, dedupRef string) error {
	opts := minio.PutObjectOptions{UserMetadata: cloneMeta(metadata)}

	if dedupRef != "" {
		if opts.UserMetadata == nil {
			opts.UserMetadata = map[string]string{}
		}
		opts.UserMetadata[storage.DedupRefKey] = dedupRef
		body := strings.NewReader(storage.DedupPointerBody)
		_, err := p.client.PutObject(ctx, p.bucket, key, body, int64(len(storage.DedupPointerBody)), opts)
		if err != nil {
			return fmt.Errorf("put dedup pointer %s: %w", key, err)
		}
		return nil
	}

	_, err := p.client.FPutObject(ctx, p.bucket, key, localPath, opts)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Download implements storage.Provider, transparently following a
// single dedup-pointer hop: it first HEADs key and, if the object
// carries dedup_ref metadata, fetches that key instead.
func (p *Provider) Download(ctx context.Context, key, localPath string) error {
	resolved := key

	info, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		if ref, ok := info.UserMetadata[canonicalMetaKey(storage.DedupRefKey)]; ok && ref != "" {
			resolved = ref
		}
	}

	if err := p.client.FGetObject(ctx, p.bucket, resolved, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("get object %s: %w", resolved, err)
	}
	return nil
}

// Delete implements storage.Provider. Idempotent: minio-go's
// RemoveObject does not error when the key is already absent.
func (p *Provider) Delete(ctx context.Context, key string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// List implements storage.Provider.
func (p *Provider) List(ctx context.Context, prefix string, maxKeys int) ([]storage.ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []storage.ObjectInfo
	for obj := range p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", prefix, obj.Err)
		}
		out = append(out, storage.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified.Unix(),
		})
		if maxKeys > 0 && len(out) >= maxKeys {
			break
		}
	}
	return out, nil
}

// GetInfo implements storage.Provider.
func (p *Provider) GetInfo(ctx context.Context, key string) (storage.ObjectInfo, bool, error) {
	info, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.StatusCode == 404 {
			return storage.ObjectInfo{}, false, nil
		}
		return storage.ObjectInfo{}, false, fmt.Errorf("stat object %s: %w", key, err)
	}

	meta := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		meta[strings.ToLower(k)] = v
	}

	return storage.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		LastModified: info.LastModified.Unix(),
		Metadata:     meta,
	}, true, nil
}

// TestConnection implements storage.Provider: HEAD bucket followed by a
// LIST with MaxKeys=1, matching the original implementation's recipe.
func (p *Provider) TestConnection(ctx context.Context) error {
	ok, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", p.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", p.bucket)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{MaxKeys: 1}) {
		if obj.Err != nil {
			return fmt.Errorf("list objects in %s: %w", p.bucket, obj.Err)
		}
		break
	}
	return nil
}

// Close implements storage.Provider; the minio-go client holds no
// closable resources of its own.
func (p *Provider) Close() error { return nil }

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// canonicalMetaKey mirrors minio-go's canonicalization of user-metadata
// keys (it title-cases them internally) so reads can find what Upload
// wrote under a plain lowercase key.
func canonicalMetaKey(key string) string {
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
}

var _ storage.Provider = (*Provider)(nil)
