// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/docket/lib/resource"
)

// Directory names within the local store root.
const (
	objectsDir = "objects"
	tmpDir     = "tmp"
)

// Local is a content-addressed blob store on the local filesystem.
// Objects land under objects/<shard>/<shard>/<id> via write-to-temp
// plus atomic rename, so a crash never leaves a partially written
// object under its final name. Storing bytes that already exist is a
// no-op returning the existing ID.
//
// Local is safe for concurrent use: identical content renames onto
// the same final path, and distinct content never shares a path.
type Local struct {
	root   string
	logger *slog.Logger
}

// NewLocal creates a local store rooted at the given directory,
// creating the directory structure as needed.
func NewLocal(root string, logger *slog.Logger) (*Local, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{root, filepath.Join(root, objectsDir), filepath.Join(root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Local{root: root, logger: logger}, nil
}

// Store writes one resource and returns its ID. Identical content is
// deduplicated against what is already stored.
func (s *Local) Store(data []byte, filename, contentType string) (string, error) {
	id := ResourceID(data, filename, contentType)
	finalPath, err := s.objectPath(id)
	if err != nil {
		return "", err
	}

	// Dedup: same content produces the same ID, and the existing
	// object is identical by construction.
	if _, err := os.Stat(finalPath); err == nil {
		return id, nil
	}

	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return "", fmt.Errorf("creating temp object: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("writing object data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("closing temp object: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", fmt.Errorf("creating object shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming object to %s: %w", finalPath, err)
	}

	success = true
	return id, nil
}

// UploadBatch stores every item and reports per-item outcomes. The
// batch call itself never fails for a local store; individual write
// errors are reported on their item.
func (s *Local) UploadBatch(ctx context.Context, items []resource.UploadItem) ([]resource.UploadResult, error) {
	results := make([]resource.UploadResult, len(items))
	for index, item := range items {
		results[index].Filename = item.Filename
		if err := ctx.Err(); err != nil {
			results[index].Error = err.Error()
			continue
		}

		id, err := s.Store(item.Data, item.Filename, item.ContentType)
		if err != nil {
			s.logger.Warn("blob store write failed", "filename", item.Filename, "error", err)
			results[index].Error = err.Error()
			continue
		}
		results[index].ID = id
	}
	return results, nil
}

// Read returns the content stored under id.
func (s *Local) Read(id string) ([]byte, error) {
	path, err := s.objectPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", id, err)
	}
	return data, nil
}

// Exists reports whether an object is stored under id.
func (s *Local) Exists(id string) bool {
	path, err := s.objectPath(id)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// objectPath returns the sharded filesystem path for a resource ID.
func (s *Local) objectPath(id string) (string, error) {
	shardA, shardB, err := idShard(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, objectsDir, shardA, shardB, id), nil
}
