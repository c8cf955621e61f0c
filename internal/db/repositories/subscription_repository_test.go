package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var subCols = []string{
	"id", "user_id", "product_id", "start_date", "end_date", "is_active", "created_at", "updated_at",
}

func subRow(start, end time.Time, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(subCols).
		AddRow("sub-1", "user-1", "prod-1", start, end, active, start, start)
}

func emptySubRow() *sqlmock.Rows {
	return sqlmock.NewRows(subCols)
}

func newSubRepo(t *testing.T) (*SubscriptionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSubscriptionRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetForUserProduct
// ---------------------------------------------------------------------------

func TestGetForUserProduct_Found(t *testing.T) {
	repo, mock := newSubRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT.*FROM subscriptions WHERE user_id").
		WithArgs("user-1", "prod-1").
		WillReturnRows(subRow(now, now.Add(24*time.Hour), true))

	sub, err := repo.GetForUserProduct(context.Background(), "user-1", "prod-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub == nil {
		t.Fatal("expected subscription, got nil")
	}
}

func TestGetForUserProduct_NotFound(t *testing.T) {
	repo, mock := newSubRepo(t)
	mock.ExpectQuery("SELECT.*FROM subscriptions WHERE user_id").
		WithArgs("user-1", "prod-1").
		WillReturnRows(emptySubRow())

	sub, err := repo.GetForUserProduct(context.Background(), "user-1", "prod-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != nil {
		t.Errorf("expected nil, got %v", sub)
	}
}

// ---------------------------------------------------------------------------
// Activate
// ---------------------------------------------------------------------------

func TestActivate_NewSubscription(t *testing.T) {
	repo, mock := newSubRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM subscriptions.*FOR UPDATE").
		WithArgs("user-1", "prod-1").
		WillReturnRows(emptySubRow())
	mock.ExpectExec("INSERT INTO subscriptions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sub, err := repo.Activate(context.Background(), "user-1", "prod-1", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub == nil {
		t.Fatal("expected subscription, got nil")
	}
	if !sub.IsActive {
		t.Error("expected active subscription")
	}

	wantEnd := sub.StartDate.Add(30 * 24 * time.Hour)
	if !sub.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate = %v, want %v", sub.EndDate, wantEnd)
	}
}

func TestActivate_StacksOntoLiveSubscription(t *testing.T) {
	repo, mock := newSubRepo(t)

	now := time.Now()
	currentEnd := now.Add(10 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM subscriptions.*FOR UPDATE").
		WithArgs("user-1", "prod-1").
		WillReturnRows(subRow(now.Add(-5*24*time.Hour), currentEnd, true))
	mock.ExpectExec("UPDATE subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub, err := repo.Activate(context.Background(), "user-1", "prod-1", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Time stacks onto the existing end date, not onto now.
	wantEnd := currentEnd.Add(30 * 24 * time.Hour)
	if !sub.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate = %v, want %v", sub.EndDate, wantEnd)
	}
}

func TestActivate_RestartsLapsedSubscription(t *testing.T) {
	repo, mock := newSubRepo(t)

	now := time.Now()
	expiredEnd := now.Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM subscriptions.*FOR UPDATE").
		WithArgs("user-1", "prod-1").
		WillReturnRows(subRow(now.Add(-30*24*time.Hour), expiredEnd, true))
	mock.ExpectExec("UPDATE subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub, err := repo.Activate(context.Background(), "user-1", "prod-1", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The clock restarts; none of the lapsed period carries over.
	if sub.StartDate.Before(now.Add(-time.Minute)) {
		t.Errorf("StartDate = %v, want reset to now", sub.StartDate)
	}
	wantEnd := sub.StartDate.Add(30 * 24 * time.Hour)
	if !sub.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate = %v, want %v", sub.EndDate, wantEnd)
	}
	if !sub.IsActive {
		t.Error("expected reactivated subscription")
	}
}

func TestActivate_RestartsRevokedSubscription(t *testing.T) {
	repo, mock := newSubRepo(t)

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM subscriptions.*FOR UPDATE").
		WithArgs("user-1", "prod-1").
		WillReturnRows(subRow(now.Add(-5*24*time.Hour), now.Add(10*24*time.Hour), false))
	mock.ExpectExec("UPDATE subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub, err := repo.Activate(context.Background(), "user-1", "prod-1", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A revoked subscription restarts even though its end date was ahead.
	wantEnd := sub.StartDate.Add(7 * 24 * time.Hour)
	if !sub.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate = %v, want %v", sub.EndDate, wantEnd)
	}
}

func TestActivate_LockError_RollsBack(t *testing.T) {
	repo, mock := newSubRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM subscriptions.*FOR UPDATE").
		WillReturnError(errDB)
	mock.ExpectRollback()

	_, err := repo.Activate(context.Background(), "user-1", "prod-1", 30)
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Revoke
// ---------------------------------------------------------------------------

func TestRevoke_Success(t *testing.T) {
	repo, mock := newSubRepo(t)
	mock.ExpectExec("UPDATE subscriptions SET is_active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Revoke(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRevoke_NotFound(t *testing.T) {
	repo, mock := newSubRepo(t)
	mock.ExpectExec("UPDATE subscriptions SET is_active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Revoke(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing subscription")
	}
}

// ---------------------------------------------------------------------------
// ListForUser
// ---------------------------------------------------------------------------

func TestListForUser_Success(t *testing.T) {
	repo, mock := newSubRepo(t)
	now := time.Now()

	cols := append(append([]string{}, subCols...), "name", "display_name")
	rows := sqlmock.NewRows(cols).
		AddRow("sub-1", "user-1", "prod-1", now, now.Add(24*time.Hour), true, now, now, "spectre", "Spectre")

	mock.ExpectQuery("SELECT.*FROM subscriptions s.*JOIN products").
		WithArgs("user-1").
		WillReturnRows(rows)

	subs, err := repo.ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("len(subs) = %d, want 1", len(subs))
	}
	if subs[0].ProductName == nil || *subs[0].ProductName != "spectre" {
		t.Error("expected joined product name")
	}
}
