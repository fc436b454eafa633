// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrContainerTooLarge means the raw container exceeds the
	// configured byte ceiling.
	ErrContainerTooLarge = errors.New("archive: container too large")

	// ErrTooManyMembers means the container's index declares, or its
	// extracted tree realizes, more entries than the ceiling allows.
	ErrTooManyMembers = errors.New("archive: too many members")

	// ErrExtractedSizeExceeded means the declared or realized
	// uncompressed total exceeds the ceiling.
	ErrExtractedSizeExceeded = errors.New("archive: extracted size exceeds ceiling")

	// ErrCorruptContainer means the container could not be decoded as
	// its detected format.
	ErrCorruptContainer = errors.New("archive: corrupt container")

	// ErrUnsupportedFormat means the container is not a format this
	// engine extracts.
	ErrUnsupportedFormat = errors.New("archive: unsupported format")
)

// Format identifies a supported container format.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarBz2 Format = "tar.bz2"
	FormatTarZst Format = "tar.zst"
)

// Limits are the safety ceilings for one extraction. A zero field
// means that ceiling is not enforced.
type Limits struct {
	// MaxContainerBytes rejects the container outright when its raw
	// (compressed) size is above this.
	MaxContainerBytes int64

	// MaxMembers caps the number of index entries and, after
	// extraction, the number of realized files.
	MaxMembers int

	// MaxExtractedBytes caps the declared uncompressed total and,
	// after extraction, the realized on-disk total.
	MaxExtractedBytes int64

	// Timeout bounds the wall-clock time of one extraction.
	Timeout time.Duration
}

// Member is one safely extracted file.
type Member struct {
	// RelativePath is the entry's path inside the archive, in slash
	// form, cleaned.
	RelativePath string

	// AbsolutePath is where the file landed on disk, inside the
	// extraction root.
	AbsolutePath string

	// Size is the realized byte size.
	Size int64
}

// Extraction is the outcome of successfully unpacking one container.
// The caller owns Root and must remove it when done with the members.
type Extraction struct {
	Root    string
	Format  Format
	Members []Member

	// Rejected lists entry names that failed the path safety check
	// (absolute paths, ".." traversal). Their siblings extracted
	// normally.
	Rejected []string
}

// TotalSize returns the realized uncompressed total of all members.
func (e *Extraction) TotalSize() int64 {
	var total int64
	for _, member := range e.Members {
		total += member.Size
	}
	return total
}

// DetectFormat determines the container format from the filename
// extension, falling back to content sniffing when the extension is
// missing or unknown. Bare gzip, bzip2, and zstd streams are assumed
// to carry a tar inside, which is how they arrive in practice.
func DetectFormat(filename string, data []byte) (Format, error) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(name, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		return FormatTarBz2, nil
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return FormatTarZst, nil
	}

	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/zip"):
		return FormatZip, nil
	case mtype.Is("application/x-tar"):
		return FormatTar, nil
	case mtype.Is("application/gzip"):
		return FormatTarGz, nil
	case mtype.Is("application/x-bzip2"):
		return FormatTarBz2, nil
	case mtype.Is("application/zstd"):
		return FormatTarZst, nil
	}
	return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, filename, mtype.String())
}
