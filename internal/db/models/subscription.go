// subscription.go defines the Subscription ledger row for a (user, product) pair.
package models

import "time"

// Subscription is the ledger row recording a user's access window for a
// product. Unique per (user, product). The stored IsActive flag alone is
// never sufficient — expiry is always recomputed at read time.
type Subscription struct {
	ID        string
	UserID    string
	ProductID string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	// Joined fields (not stored in subscriptions table)
	ProductName        *string
	ProductDisplayName *string
}

// EffectivelyActive reports whether the subscription grants access right now.
func (s *Subscription) EffectivelyActive(now time.Time) bool {
	return s.IsActive && s.EndDate.After(now)
}
