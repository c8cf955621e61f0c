package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// SubscriptionRepository handles the subscription ledger. A user holds at most
// one subscription row per product; granting time extends or resets that row
// rather than inserting a second one.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, product_id, start_date, end_date, is_active, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.ProductID,
		&sub.StartDate,
		&sub.EndDate,
		&sub.IsActive,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetForUserProduct retrieves the subscription row for a (user, product)
// pair. Returns (nil, nil) when absent.
func (r *SubscriptionRepository) GetForUserProduct(ctx context.Context, userID, productID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 AND product_id = $2`
	return scanSubscription(r.db.QueryRowContext(ctx, query, userID, productID))
}

// ListForUser retrieves all subscriptions for a user with product names
// joined in for display.
func (r *SubscriptionRepository) ListForUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	query := `
		SELECT s.id, s.user_id, s.product_id, s.start_date, s.end_date, s.is_active, s.created_at, s.updated_at,
		       p.name, p.display_name
		FROM subscriptions s
		JOIN products p ON p.id = s.product_id
		WHERE s.user_id = $1
		ORDER BY s.end_date DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*models.Subscription, 0)
	for rows.Next() {
		sub := &models.Subscription{}
		err := rows.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.ProductID,
			&sub.StartDate,
			&sub.EndDate,
			&sub.IsActive,
			&sub.CreatedAt,
			&sub.UpdatedAt,
			&sub.ProductName,
			&sub.ProductDisplayName,
		)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// Activate grants durationDays of access to a product. If the user already
// holds a live subscription the new time stacks onto the current end date; if
// the subscription lapsed or never existed the clock restarts from now. The
// row is locked for the duration of the transaction so concurrent grants
// serialize and each one's days land exactly once.
func (r *SubscriptionRepository) Activate(ctx context.Context, userID, productID string, durationDays int) (*models.Subscription, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sub, err := applyActivationTx(ctx, tx, userID, productID, durationDays, time.Now())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}
	return sub, nil
}

// applyActivationTx performs the stacking-extension upsert inside an existing
// transaction. License key redemption reuses it so the key burn and the grant
// commit or roll back together.
func applyActivationTx(ctx context.Context, tx *sql.Tx, userID, productID string, durationDays int, now time.Time) (*models.Subscription, error) {
	duration := time.Duration(durationDays) * 24 * time.Hour

	lockQuery := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND product_id = $2
		FOR UPDATE
	`
	sub, err := scanSubscription(tx.QueryRowContext(ctx, lockQuery, userID, productID))
	if err != nil {
		return nil, err
	}

	if sub == nil {
		sub = &models.Subscription{
			ID:        uuid.New().String(),
			UserID:    userID,
			ProductID: productID,
			StartDate: now,
			EndDate:   now.Add(duration),
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		insertQuery := `
			INSERT INTO subscriptions (id, user_id, product_id, start_date, end_date, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.ExecContext(ctx, insertQuery,
			sub.ID, sub.UserID, sub.ProductID, sub.StartDate, sub.EndDate, sub.IsActive, sub.CreatedAt, sub.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}

	if sub.EffectivelyActive(now) {
		// Live subscription: stack onto the current end date.
		sub.EndDate = sub.EndDate.Add(duration)
	} else {
		// Lapsed or revoked: restart the clock from now.
		sub.StartDate = now
		sub.EndDate = now.Add(duration)
	}
	sub.IsActive = true
	sub.UpdatedAt = now

	updateQuery := `
		UPDATE subscriptions
		SET start_date = $2, end_date = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQuery, sub.ID, sub.StartDate, sub.EndDate, sub.IsActive, sub.UpdatedAt); err != nil {
		return nil, err
	}
	return sub, nil
}

// Revoke deactivates a subscription immediately without touching its dates.
// The preserved end date keeps the ledger history readable.
func (r *SubscriptionRepository) Revoke(ctx context.Context, subscriptionID string) error {
	query := `UPDATE subscriptions SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, subscriptionID, time.Now())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a subscription row entirely.
func (r *SubscriptionRepository) Delete(ctx context.Context, subscriptionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, subscriptionID)
	return err
}

// CountActive returns the number of currently live subscriptions.
func (r *SubscriptionRepository) CountActive(ctx context.Context) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM subscriptions WHERE is_active = TRUE AND end_date > NOW()`
	err := r.db.QueryRowContext(ctx, query).Scan(&total)
	return total, err
}
