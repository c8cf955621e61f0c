package repositories

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors returned by repository operations. Handlers translate these
// into HTTP status codes; the repositories themselves stay transport-agnostic.
var (
	// ErrDuplicate is returned when an insert or update violates a unique
	// constraint (username, email, product name, key code).
	ErrDuplicate = errors.New("duplicate record")

	// ErrKeyNotFound is returned when a license key code does not exist.
	ErrKeyNotFound = errors.New("license key not found")

	// ErrKeyUsed is returned when a license key has already been redeemed.
	ErrKeyUsed = errors.New("license key already used")

	// ErrKeyExpired is returned when a license key's redeem-by deadline passed.
	ErrKeyExpired = errors.New("license key expired")

	// ErrTokenNotFound is returned when a download token does not exist.
	ErrTokenNotFound = errors.New("download token not found")

	// ErrTokenUsed is returned when a download token was already consumed.
	ErrTokenUsed = errors.New("download token already used")

	// ErrTokenExpired is returned when a download token's expiry passed.
	ErrTokenExpired = errors.New("download token expired")

	// ErrLoaderNotFound is returned when no loader binary exists for a
	// product or the loader is disabled.
	ErrLoaderNotFound = errors.New("loader not found")
)

// mapConstraintError converts PostgreSQL unique violations into ErrDuplicate
// so callers do not need to inspect driver-specific error codes.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
