package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// LicenseKeyRepository handles the single-use license key vault. Key codes are
// generated by the caller (internal/auth) and stored verbatim; redemption
// burns the key and applies the subscription grant in one transaction.
type LicenseKeyRepository struct {
	db *sql.DB
}

// NewLicenseKeyRepository creates a new LicenseKeyRepository.
func NewLicenseKeyRepository(db *sql.DB) *LicenseKeyRepository {
	return &LicenseKeyRepository{db: db}
}

const licenseKeyColumns = `id, code, product_id, duration_days, is_used, used_by, used_at, expires_at, created_by, created_at`

func scanLicenseKey(row interface{ Scan(...any) error }) (*models.LicenseKey, error) {
	key := &models.LicenseKey{}
	err := row.Scan(
		&key.ID,
		&key.Code,
		&key.ProductID,
		&key.DurationDays,
		&key.IsUsed,
		&key.UsedBy,
		&key.UsedAt,
		&key.ExpiresAt,
		&key.CreatedBy,
		&key.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Create inserts a new license key.
func (r *LicenseKeyRepository) Create(ctx context.Context, key *models.LicenseKey) error {
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now()

	query := `
		INSERT INTO license_keys (id, code, product_id, duration_days, is_used, used_by, used_at, expires_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		key.ID,
		key.Code,
		key.ProductID,
		key.DurationDays,
		key.IsUsed,
		key.UsedBy,
		key.UsedAt,
		key.ExpiresAt,
		key.CreatedBy,
		key.CreatedAt,
	)
	return mapConstraintError(err)
}

// GetByCode retrieves a license key by its code. Returns (nil, nil) when
// absent.
func (r *LicenseKeyRepository) GetByCode(ctx context.Context, code string) (*models.LicenseKey, error) {
	query := `SELECT ` + licenseKeyColumns + ` FROM license_keys WHERE code = $1`
	return scanLicenseKey(r.db.QueryRowContext(ctx, query, code))
}

// Redeem burns a license key for a user and applies the subscription grant.
// The key row is locked first so two clients racing on the same code cannot
// both succeed; the loser sees ErrKeyUsed. The burn and the grant share one
// transaction, so a failed grant leaves the key unredeemed.
func (r *LicenseKeyRepository) Redeem(ctx context.Context, code, userID string) (*models.LicenseKey, *models.Subscription, error) {
	now := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lockQuery := `SELECT ` + licenseKeyColumns + ` FROM license_keys WHERE code = $1 FOR UPDATE`
	key, err := scanLicenseKey(tx.QueryRowContext(ctx, lockQuery, code))
	if err != nil {
		return nil, nil, err
	}
	if key == nil {
		return nil, nil, ErrKeyNotFound
	}
	if key.IsUsed {
		return nil, nil, ErrKeyUsed
	}
	if key.Expired(now) {
		return nil, nil, ErrKeyExpired
	}

	key.IsUsed = true
	key.UsedBy = &userID
	key.UsedAt = &now

	markQuery := `UPDATE license_keys SET is_used = TRUE, used_by = $2, used_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, markQuery, key.ID, userID, now); err != nil {
		return nil, nil, err
	}

	sub, err := applyActivationTx(ctx, tx, userID, key.ProductID, key.DurationDays, now)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit redemption: %w", err)
	}
	return key, sub, nil
}

// List retrieves license keys with product names joined in, optionally
// filtered by product. Used keys are included so admins can trace redemptions.
func (r *LicenseKeyRepository) List(ctx context.Context, productID string, limit, offset int) ([]*models.LicenseKey, error) {
	query := `
		SELECT k.id, k.code, k.product_id, k.duration_days, k.is_used, k.used_by, k.used_at, k.expires_at, k.created_by, k.created_at,
		       p.name
		FROM license_keys k
		JOIN products p ON p.id = k.product_id
		WHERE ($1 = '' OR k.product_id = $1::uuid)
		ORDER BY k.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, productID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.LicenseKey, 0)
	for rows.Next() {
		key := &models.LicenseKey{}
		err := rows.Scan(
			&key.ID,
			&key.Code,
			&key.ProductID,
			&key.DurationDays,
			&key.IsUsed,
			&key.UsedBy,
			&key.UsedAt,
			&key.ExpiresAt,
			&key.CreatedBy,
			&key.CreatedAt,
			&key.ProductName,
		)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// DeleteUnused removes a key that has not been redeemed. Redeemed keys are
// immutable history and cannot be deleted.
func (r *LicenseKeyRepository) DeleteUnused(ctx context.Context, keyID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM license_keys WHERE id = $1 AND is_used = FALSE`, keyID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}
