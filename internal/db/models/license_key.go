// license_key.go defines the single-use redemption code model.
package models

import "time"

// LicenseKey is a single-use redemption code bound to a product and a
// duration. Redemption is exactly-once: concurrent attempts on the same code
// have exactly one winner (enforced by the repository's row lock).
type LicenseKey struct {
	ID           string
	Code         string // unique, crypto/rand generated, treated as a credential
	ProductID    string
	DurationDays int
	IsUsed       bool
	UsedBy       *string
	UsedAt       *time.Time
	ExpiresAt    *time.Time // optional shelf life for unredeemed keys
	CreatedBy    *string    // admin who generated the key, kept for audit
	CreatedAt    time.Time
	// Joined fields
	ProductName *string
}

// Expired reports whether an unredeemed key is past its shelf life.
func (k *LicenseKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
