// product.go defines the Product model with its three independent access gates.
package models

import "time"

// Product represents a purchasable product. The three gate flags are
// independent booleans; the single authoritative precedence rule lives in
// entitlement.StatusOf, not in scattered flag checks.
type Product struct {
	ID          string
	Name        string // unique machine name, also the loader key
	DisplayName string
	PriceCents  int64
	IsFrozen    bool // administratively disabled
	IsBroken    bool // down for maintenance; same denial effect, distinct reason
	IsAlphaOnly bool // restricted to privileged account types
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
