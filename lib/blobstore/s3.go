// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/docket/lib/resource"
)

// S3Config configures an S3-compatible blob store.
type S3Config struct {
	// Endpoint is the S3 host, such as "s3.example.com:9000".
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string

	// Bucket receives all objects. EnsureBucket creates it when
	// missing.
	Bucket string

	// Secure selects TLS for the endpoint connection.
	Secure bool

	// PublicBaseURL, when set, is the prefix for issued object URLs
	// (a CDN or reverse proxy in front of the bucket). When empty,
	// URLs point directly at the endpoint.
	PublicBaseURL string

	// Concurrency bounds parallel puts within one batch. Defaults
	// to 4.
	Concurrency int

	Logger *slog.Logger
}

// S3 stores resources as objects in an S3-compatible bucket. Object
// keys are resource IDs, so identical content overwrites itself and
// re-uploads are harmless.
type S3 struct {
	client      *minio.Client
	bucket      string
	baseURL     string
	concurrency int
	logger      *slog.Logger
}

// NewS3 builds an S3 store. The endpoint is not contacted until
// EnsureBucket or the first upload.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("blobstore: S3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blobstore: S3 bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: creating S3 client for %s: %w", cfg.Endpoint, err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &S3{
		client:      client,
		bucket:      cfg.Bucket,
		baseURL:     strings.TrimRight(cfg.PublicBaseURL, "/"),
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// EnsureBucket creates the configured bucket if it does not exist.
func (s *S3) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blobstore: checking bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("blobstore: creating bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("blob bucket created", "bucket", s.bucket)
	return nil
}

// UploadBatch puts every item into the bucket, at most Concurrency
// puts in flight. Per-item failures are reported on their item; the
// batch call only fails when the batch never ran at all.
func (s *S3) UploadBatch(ctx context.Context, items []resource.UploadItem) ([]resource.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("blobstore: upload batch: %w", err)
	}

	results := make([]resource.UploadResult, len(items))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for index, item := range items {
		results[index].Filename = item.Filename
		group.Go(func() error {
			id := ResourceID(item.Data, item.Filename, item.ContentType)
			_, err := s.client.PutObject(groupCtx, s.bucket, id,
				bytes.NewReader(item.Data), int64(len(item.Data)),
				minio.PutObjectOptions{ContentType: item.ContentType})
			if err != nil {
				s.logger.Warn("blob put failed", "filename", item.Filename, "object", id, "error", err)
				results[index].Error = err.Error()
				return nil
			}
			results[index].ID = id
			results[index].URL = s.objectURL(id)
			return nil
		})
	}
	group.Wait()
	return results, nil
}

// objectURL returns the URL issued for a stored object.
func (s *S3) objectURL(id string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + id
	}
	return s.client.EndpointURL().String() + "/" + s.bucket + "/" + id
}
