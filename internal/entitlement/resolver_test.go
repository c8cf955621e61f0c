package entitlement

import (
	"testing"
	"time"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func plainUser() *models.User {
	return &models.User{ID: "user-1", Username: "alice", AccountType: models.AccountTypeUser}
}

func plainProduct() *models.Product {
	return &models.Product{ID: "prod-1", Name: "spectre"}
}

func activeSub() *models.Subscription {
	return &models.Subscription{
		UserID:    "user-1",
		ProductID: "prod-1",
		StartDate: now.Add(-10 * 24 * time.Hour),
		EndDate:   now.Add(10 * 24 * time.Hour),
		IsActive:  true,
	}
}

func TestResolve_ActiveSubscription(t *testing.T) {
	d := Resolve(plainUser(), plainProduct(), activeSub(), now)
	if !d.Allowed {
		t.Fatal("expected allowed")
	}
	if d.Reason != ReasonActiveSubscription {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonActiveSubscription)
	}
}

func TestResolve_NoSubscription(t *testing.T) {
	d := Resolve(plainUser(), plainProduct(), nil, now)
	if d.Allowed {
		t.Fatal("expected denied")
	}
	if d.Reason != ReasonNoSubscription {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonNoSubscription)
	}
}

func TestResolve_BannedOutranksActiveSubscription(t *testing.T) {
	u := plainUser()
	u.IsBanned = true

	d := Resolve(u, plainProduct(), activeSub(), now)
	if d.Allowed {
		t.Fatal("expected denied")
	}
	if d.Reason != ReasonBanned {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonBanned)
	}
}

func TestResolve_FrozenReportedEvenWhenBroken(t *testing.T) {
	p := plainProduct()
	p.IsFrozen = true
	p.IsBroken = true

	d := Resolve(plainUser(), p, activeSub(), now)
	if d.Allowed {
		t.Fatal("expected denied")
	}
	if d.Reason != ReasonFrozen {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonFrozen)
	}
}

func TestResolve_Broken(t *testing.T) {
	p := plainProduct()
	p.IsBroken = true

	d := Resolve(plainUser(), p, activeSub(), now)
	if d.Reason != ReasonBroken {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonBroken)
	}
}

func TestResolve_AlphaGate(t *testing.T) {
	p := plainProduct()
	p.IsAlphaOnly = true

	cases := []struct {
		accountType string
		wantAllowed bool
		wantReason  Reason
	}{
		{models.AccountTypeUser, false, ReasonNoAlphaAccess},
		{models.AccountTypePremium, true, ReasonActiveSubscription},
		{models.AccountTypeStaff, true, ReasonActiveSubscription},
		{models.AccountTypeAdmin, true, ReasonActiveSubscription},
		{models.AccountTypeOwner, true, ReasonActiveSubscription},
	}
	for _, tc := range cases {
		u := plainUser()
		u.AccountType = tc.accountType

		d := Resolve(u, p, activeSub(), now)
		if d.Allowed != tc.wantAllowed || d.Reason != tc.wantReason {
			t.Errorf("%s: got (%v, %s), want (%v, %s)",
				tc.accountType, d.Allowed, d.Reason, tc.wantAllowed, tc.wantReason)
		}
	}
}

func TestResolve_AlphaGateEvaluatedBeforeSubscription(t *testing.T) {
	// Alpha denial fires even when no subscription exists either.
	p := plainProduct()
	p.IsAlphaOnly = true

	d := Resolve(plainUser(), p, nil, now)
	if d.Reason != ReasonNoAlphaAccess {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonNoAlphaAccess)
	}
}

func TestResolve_ExpiredSubscription(t *testing.T) {
	sub := activeSub()
	sub.EndDate = now.Add(-time.Hour)

	d := Resolve(plainUser(), plainProduct(), sub, now)
	if d.Allowed {
		t.Fatal("expected denied")
	}
	if d.Reason != ReasonNoSubscription {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonNoSubscription)
	}
}

func TestResolve_RevokedSubscriptionWithFutureEndDate(t *testing.T) {
	// is_active=false must deny immediately even though end_date is ahead.
	sub := activeSub()
	sub.IsActive = false

	d := Resolve(plainUser(), plainProduct(), sub, now)
	if d.Allowed {
		t.Fatal("expected denied")
	}
	if d.Reason != ReasonNoSubscription {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonNoSubscription)
	}
}

func TestEffectivelyActive(t *testing.T) {
	sub := activeSub()
	if !sub.EffectivelyActive(now) {
		t.Error("expected active")
	}
	sub.IsActive = false
	if sub.EffectivelyActive(now) {
		t.Error("revoked sub must not be active")
	}
	sub.IsActive = true
	sub.EndDate = now
	if sub.EffectivelyActive(now) {
		t.Error("end_date == now must not be active")
	}
}

func TestStatusOf_Precedence(t *testing.T) {
	cases := []struct {
		frozen, broken, alpha bool
		want                  ProductStatus
	}{
		{false, false, false, StatusActive},
		{true, false, false, StatusFrozen},
		{false, true, false, StatusBroken},
		{true, true, false, StatusFrozen},
		{false, false, true, StatusAlphaOnly},
		{true, true, true, StatusFrozen},
		{false, true, true, StatusBroken},
	}
	for _, tc := range cases {
		p := &models.Product{IsFrozen: tc.frozen, IsBroken: tc.broken, IsAlphaOnly: tc.alpha}
		if got := StatusOf(p); got != tc.want {
			t.Errorf("StatusOf(%v,%v,%v) = %s, want %s", tc.frozen, tc.broken, tc.alpha, got, tc.want)
		}
	}
}
