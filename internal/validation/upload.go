// Package validation provides input validation for loader binary uploads:
// filename sanity, size caps, and optional version tags.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// MaxFilenameLength caps upload filenames. Storage backends and the
// Content-Disposition header both behave badly beyond this.
const MaxFilenameLength = 255

var (
	// ErrFilenameEmpty is returned when an upload has no filename.
	ErrFilenameEmpty = errors.New("filename is required")

	// ErrFilenameInvalid is returned when a filename contains path
	// separators or control characters.
	ErrFilenameInvalid = errors.New("filename contains invalid characters")

	// ErrFileTooLarge is returned when an upload exceeds the configured cap.
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")

	// ErrFileEmpty is returned for zero-byte uploads.
	ErrFileEmpty = errors.New("file is empty")
)

// ValidateUploadFilename checks that a client-supplied filename is safe to
// store and echo back in download headers. Path traversal is rejected here
// rather than sanitized: a filename with separators is always hostile or
// broken tooling.
func ValidateUploadFilename(filename string) error {
	if filename == "" {
		return ErrFilenameEmpty
	}
	if len(filename) > MaxFilenameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrFilenameInvalid, MaxFilenameLength)
	}
	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return ErrFilenameInvalid
	}
	for _, r := range filename {
		if r < 0x20 || r == 0x7f {
			return ErrFilenameInvalid
		}
	}
	return nil
}

// ValidateUploadSize checks an upload's declared size against the configured
// cap in megabytes.
func ValidateUploadSize(sizeBytes int64, maxMB int) error {
	if sizeBytes <= 0 {
		return ErrFileEmpty
	}
	if sizeBytes > int64(maxMB)*1024*1024 {
		return fmt.Errorf("%w: %d bytes (limit %d MB)", ErrFileTooLarge, sizeBytes, maxMB)
	}
	return nil
}

// ValidateVersionTag validates an optional loader version string as a
// semantic version.
func ValidateVersionTag(versionStr string) error {
	if _, err := version.NewVersion(versionStr); err != nil {
		return fmt.Errorf("invalid version tag: %w", err)
	}
	return nil
}
