// download_token.go defines the short-lived single-use download credential.
package models

import "time"

// DownloadToken gates loader binary retrieval. It is separate from the
// session credential: issued only after an entitlement check, bound to the
// requesting client for anomaly logging, consumable at most once, and
// self-expiring after a short window.
type DownloadToken struct {
	ID          string
	Token       string // unique opaque value
	UserID      string
	LoaderID    string
	ProductName string // denormalised display name for logs and filenames
	ClientIP    string
	ClientAgent string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// Live reports whether the token is still issuable/consumable: never used
// and not yet expired.
func (t *DownloadToken) Live(now time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(now)
}
