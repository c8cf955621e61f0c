// Package checksum computes SHA-256 digests for loader binaries. Every
// storage backend records a digest at upload time and the download path hands
// it to clients in the X-Checksum-Sha256 header, so the hashing and encoding
// live here instead of being repeated in each backend.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Hasher accumulates a SHA-256 digest of everything written to it. It is an
// io.Writer so upload paths can tee binary content through it while streaming
// to disk or a cloud backend.
type Hasher struct {
	inner hash.Hash
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{inner: sha256.New()}
}

// Write feeds p into the digest. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.inner.Write(p)
}

// Sum returns the digest of everything written so far as lowercase hex.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.inner.Sum(nil))
}

// SHA256Hex reads r to EOF and returns its digest as lowercase hex.
func SHA256Hex(r io.Reader) (string, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return h.Sum(), nil
}

// SHA256HexBytes returns the digest of data as lowercase hex.
func SHA256HexBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Matches reports whether got and want name the same digest. The comparison
// is case-insensitive because digests pasted from other tools are often
// uppercase.
func Matches(got, want string) bool {
	return strings.EqualFold(got, want)
}
