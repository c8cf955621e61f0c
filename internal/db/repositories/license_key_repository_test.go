package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

var keyCols = []string{
	"id", "code", "product_id", "duration_days", "is_used", "used_by", "used_at",
	"expires_at", "created_by", "created_at",
}

func unusedKeyRow() *sqlmock.Rows {
	return sqlmock.NewRows(keyCols).
		AddRow("key-1", "AB-XXXX-YYYY", "prod-1", 30, false, nil, nil, nil, nil, time.Now())
}

func newKeyRepo(t *testing.T) (*LicenseKeyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLicenseKeyRepository(db), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateLicenseKey_Success(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectExec("INSERT INTO license_keys").
		WillReturnResult(sqlmock.NewResult(1, 1))

	key := &models.LicenseKey{Code: "AB-XXXX-YYYY", ProductID: "prod-1", DurationDays: 30}
	if err := repo.Create(context.Background(), key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.ID == "" {
		t.Error("expected ID to be set")
	}
}

// ---------------------------------------------------------------------------
// Redeem
// ---------------------------------------------------------------------------

func TestRedeem_Success(t *testing.T) {
	repo, mock := newKeyRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM license_keys WHERE code.*FOR UPDATE").
		WithArgs("AB-XXXX-YYYY").
		WillReturnRows(unusedKeyRow())
	mock.ExpectExec("UPDATE license_keys SET is_used").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// No existing subscription, so the grant inserts a fresh row.
	mock.ExpectQuery("SELECT.*FROM subscriptions.*FOR UPDATE").
		WillReturnRows(emptySubRow())
	mock.ExpectExec("INSERT INTO subscriptions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	key, sub, err := repo.Redeem(context.Background(), "AB-XXXX-YYYY", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !key.IsUsed {
		t.Error("expected key marked used")
	}
	if key.UsedBy == nil || *key.UsedBy != "user-1" {
		t.Error("expected used_by set to redeeming user")
	}
	if sub == nil {
		t.Fatal("expected subscription, got nil")
	}

	wantEnd := sub.StartDate.Add(30 * 24 * time.Hour)
	if !sub.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate = %v, want %v", sub.EndDate, wantEnd)
	}
}

func TestRedeem_StacksOntoExistingSubscription(t *testing.T) {
	repo, mock := newKeyRepo(t)

	now := time.Now()
	currentEnd := now.Add(15 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM license_keys WHERE code.*FOR UPDATE").
		WithArgs("AB-XXXX-YYYY").
		WillReturnRows(unusedKeyRow())
	mock.ExpectExec("UPDATE license_keys SET is_used").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT.*FROM subscriptions.*FOR UPDATE").
		WillReturnRows(subRow(now.Add(-10*24*time.Hour), currentEnd, true))
	mock.ExpectExec("UPDATE subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, sub, err := repo.Redeem(context.Background(), "AB-XXXX-YYYY", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantEnd := currentEnd.Add(30 * 24 * time.Hour)
	if !sub.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate = %v, want %v", sub.EndDate, wantEnd)
	}
}

func TestRedeem_NotFound(t *testing.T) {
	repo, mock := newKeyRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM license_keys WHERE code.*FOR UPDATE").
		WithArgs("AB-MISSING").
		WillReturnRows(sqlmock.NewRows(keyCols))
	mock.ExpectRollback()

	_, _, err := repo.Redeem(context.Background(), "AB-MISSING", "user-1")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestRedeem_AlreadyUsed(t *testing.T) {
	repo, mock := newKeyRepo(t)

	usedBy := "user-2"
	usedAt := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows(keyCols).
		AddRow("key-1", "AB-XXXX-YYYY", "prod-1", 30, true, &usedBy, &usedAt, nil, nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM license_keys WHERE code.*FOR UPDATE").
		WithArgs("AB-XXXX-YYYY").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, _, err := repo.Redeem(context.Background(), "AB-XXXX-YYYY", "user-1")
	if !errors.Is(err, ErrKeyUsed) {
		t.Errorf("err = %v, want ErrKeyUsed", err)
	}
}

func TestRedeem_Expired(t *testing.T) {
	repo, mock := newKeyRepo(t)

	expired := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows(keyCols).
		AddRow("key-1", "AB-XXXX-YYYY", "prod-1", 30, false, nil, nil, &expired, nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM license_keys WHERE code.*FOR UPDATE").
		WithArgs("AB-XXXX-YYYY").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, _, err := repo.Redeem(context.Background(), "AB-XXXX-YYYY", "user-1")
	if !errors.Is(err, ErrKeyExpired) {
		t.Errorf("err = %v, want ErrKeyExpired", err)
	}
}

func TestRedeem_GrantFailure_RollsBackBurn(t *testing.T) {
	repo, mock := newKeyRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM license_keys WHERE code.*FOR UPDATE").
		WithArgs("AB-XXXX-YYYY").
		WillReturnRows(unusedKeyRow())
	mock.ExpectExec("UPDATE license_keys SET is_used").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT.*FROM subscriptions.*FOR UPDATE").
		WillReturnError(errDB)
	mock.ExpectRollback()

	_, _, err := repo.Redeem(context.Background(), "AB-XXXX-YYYY", "user-1")
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// DeleteUnused
// ---------------------------------------------------------------------------

func TestDeleteUnusedKey_Success(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectExec("DELETE FROM license_keys").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteUnused(context.Background(), "key-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteUnusedKey_UsedOrMissing(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectExec("DELETE FROM license_keys").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteUnused(context.Background(), "key-1")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}
