// Package entitlement decides whether a user may currently use a product.
//
// Resolve is a pure function of persisted state: it takes the user row, the
// product row, and the user's subscription row for that product (if any) and
// returns an allow/deny decision with a machine-readable reason. It has no
// side effects and must be re-evaluated on every access decision — the
// product cache is a listing optimisation and is never consulted here.
package entitlement

import (
	"time"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// Reason is the machine-readable outcome of an entitlement check.
type Reason string

const (
	ReasonBanned             Reason = "BANNED"
	ReasonFrozen             Reason = "FROZEN"
	ReasonBroken             Reason = "BROKEN"
	ReasonNoAlphaAccess      Reason = "NO_ALPHA_ACCESS"
	ReasonActiveSubscription Reason = "ACTIVE_SUBSCRIPTION"
	ReasonNoSubscription     Reason = "NO_SUBSCRIPTION"
)

// Decision is the result of Resolve.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// ProductStatus is the single authoritative status derived from the three
// independent gate flags. Precedence: FROZEN > BROKEN > ALPHA_ONLY > ACTIVE.
type ProductStatus string

const (
	StatusFrozen    ProductStatus = "frozen"
	StatusBroken    ProductStatus = "broken"
	StatusAlphaOnly ProductStatus = "alpha_only"
	StatusActive    ProductStatus = "active"
)

// StatusOf collapses a product's gate flags into one status value.
func StatusOf(p *models.Product) ProductStatus {
	switch {
	case p.IsFrozen:
		return StatusFrozen
	case p.IsBroken:
		return StatusBroken
	case p.IsAlphaOnly:
		return StatusAlphaOnly
	default:
		return StatusActive
	}
}

// Resolve computes the entitlement decision for user and product. sub is the
// user's subscription row for this product, or nil if none exists.
//
// The checks run in strict order and the first match wins. The ordering is a
// policy decision: a ban always outranks product state, product gates outrank
// subscription state, and frozen is reported even when broken is also set.
func Resolve(user *models.User, product *models.Product, sub *models.Subscription, now time.Time) Decision {
	if user.IsBanned {
		return Decision{Allowed: false, Reason: ReasonBanned}
	}
	if product.IsFrozen {
		return Decision{Allowed: false, Reason: ReasonFrozen}
	}
	if product.IsBroken {
		return Decision{Allowed: false, Reason: ReasonBroken}
	}
	if product.IsAlphaOnly && !user.HasAlphaAccess() {
		return Decision{Allowed: false, Reason: ReasonNoAlphaAccess}
	}
	if sub != nil && sub.EffectivelyActive(now) {
		return Decision{Allowed: true, Reason: ReasonActiveSubscription}
	}
	return Decision{Allowed: false, Reason: ReasonNoSubscription}
}
