// Package models defines the database model types for the storefront.
// Each type corresponds to a database table. Models are pure data types —
// business logic belongs in the entitlement/downloads packages, query logic
// in the repositories layer.
package models

import "time"

// Account types, ordered roughly by privilege. Staff is the elevated
// non-admin tier that, together with premium, unlocks alpha-only products.
const (
	AccountTypeUser    = "user"
	AccountTypePremium = "premium"
	AccountTypeStaff   = "staff"
	AccountTypeAdmin   = "admin"
	AccountTypeOwner   = "owner"
)

// User represents a storefront account.
type User struct {
	ID           string
	Username     string
	Email        *string
	PasswordHash string // bcrypt
	AccountType  string // one of the AccountType* constants
	IsBanned     bool
	BanReason    *string
	HWID         *string // hardware identifier bound on first token issue
	HWIDResets   int     // number of times the binding has been cleared
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the account may use the administrative surface.
func (u *User) IsAdmin() bool {
	return u.AccountType == AccountTypeAdmin || u.AccountType == AccountTypeOwner
}

// HasAlphaAccess reports whether the account type is in the privileged set
// allowed to use alpha-only products.
func (u *User) HasAlphaAccess() bool {
	switch u.AccountType {
	case AccountTypePremium, AccountTypeStaff, AccountTypeAdmin, AccountTypeOwner:
		return true
	}
	return false
}
