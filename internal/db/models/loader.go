// loader.go defines the Loader model: the distributable binary for a product.
package models

import "time"

// Loader is the binary artifact row for a product. At most one row exists
// per product name (unique constraint); uploading again replaces the stored
// payload in place.
type Loader struct {
	ID               string
	ProductID        string
	ProductName      string // unique
	Filename         string
	Version          *string // optional semantic version tag
	StoragePath      string  // object path in the storage backend
	StorageBackend   string  // backend type the object lives in (local, s3, gcs, azure)
	SizeBytes        int64
	Checksum         string // SHA-256 of the payload
	IsActive         bool
	DownloadCount    int64
	LastDownloadedAt *time.Time
	UploadedBy       *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
