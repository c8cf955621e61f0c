// Package repositories implements the data access layer (repository pattern)
// for the storefront. Each repository type encapsulates all database queries
// for a domain entity. Handlers never issue SQL directly — all database access
// goes through this layer, which makes query logic testable in isolation and
// prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// UserRepository handles user database operations.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, account_type, is_banned, ban_reason, hwid, hwid_resets, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.AccountType,
		&user.IsBanned,
		&user.BanReason,
		&user.HWID,
		&user.HWIDResets,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create inserts a new user. The caller is expected to have hashed the
// password already.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	if user.AccountType == "" {
		user.AccountType = models.AccountTypeUser
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, account_type, is_banned, ban_reason, hwid, hwid_resets, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.AccountType,
		user.IsBanned,
		user.BanReason,
		user.HWID,
		user.HWIDResets,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return mapConstraintError(err)
}

// GetByID retrieves a user by ID. Returns (nil, nil) when absent.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, userID))
}

// GetByUsername retrieves a user by username. Returns (nil, nil) when absent.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

// Update persists mutable account fields.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = $2, password_hash = $3, account_type = $4, updated_at = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.AccountType,
		user.UpdatedAt,
	)
	return mapConstraintError(err)
}

// SetBan bans or unbans a user. A banned user has zero entitlement regardless
// of ledger state; the reason is shown to the client on forced logout.
func (r *UserRepository) SetBan(ctx context.Context, userID string, banned bool, reason *string) error {
	query := `UPDATE users SET is_banned = $2, ban_reason = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, banned, reason, time.Now())
	return err
}

// BindHWID records the hardware identifier a user's client first presented.
func (r *UserRepository) BindHWID(ctx context.Context, userID, hwid string) error {
	query := `UPDATE users SET hwid = $2, updated_at = $3 WHERE id = $1 AND hwid IS NULL`
	_, err := r.db.ExecContext(ctx, query, userID, hwid, time.Now())
	return err
}

// ResetHWID clears the hardware binding and bumps the reset counter.
func (r *UserRepository) ResetHWID(ctx context.Context, userID string) error {
	query := `UPDATE users SET hwid = NULL, hwid_resets = hwid_resets + 1, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, time.Now())
	return err
}

// Delete removes a user. Subscriptions, download tokens, and audit entries
// cascade at the database level.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	return err
}

// List retrieves a paginated list of users plus the total count.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// Search finds users by username or email substring.
func (r *UserRepository) Search(ctx context.Context, query string, limit, offset int) ([]*models.User, error) {
	searchQuery := `
		SELECT ` + userColumns + `
		FROM users
		WHERE username ILIKE $1 OR email ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, searchQuery, "%"+query+"%", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	return total, err
}
