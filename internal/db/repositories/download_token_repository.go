package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// DownloadTokenRepository handles single-use download tokens. Tokens are
// opaque strings generated by the caller; each one authorizes exactly one
// fetch of a loader binary and dies after a short expiry window.
type DownloadTokenRepository struct {
	db *sql.DB
}

// NewDownloadTokenRepository creates a new DownloadTokenRepository.
func NewDownloadTokenRepository(db *sql.DB) *DownloadTokenRepository {
	return &DownloadTokenRepository{db: db}
}

const downloadTokenColumns = `id, token, user_id, loader_id, product_name, client_ip, client_agent, expires_at, used_at, created_at`

func scanDownloadToken(row interface{ Scan(...any) error }) (*models.DownloadToken, error) {
	token := &models.DownloadToken{}
	err := row.Scan(
		&token.ID,
		&token.Token,
		&token.UserID,
		&token.LoaderID,
		&token.ProductName,
		&token.ClientIP,
		&token.ClientAgent,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Create inserts a new download token and returns the row that ended up
// holding the live slot. A partial unique index on (user_id, loader_id) where
// used_at IS NULL allows at most one unused token per pair, so two concurrent
// issues cannot both mint. An expired unused predecessor is replaced in place;
// when the conflicting row is still live it wins and is returned instead of
// the caller's token.
func (r *DownloadTokenRepository) Create(ctx context.Context, token *models.DownloadToken) (*models.DownloadToken, error) {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO download_tokens (id, token, user_id, loader_id, product_name, client_ip, client_agent, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, loader_id) WHERE used_at IS NULL DO UPDATE SET
			id = EXCLUDED.id,
			token = EXCLUDED.token,
			product_name = EXCLUDED.product_name,
			client_ip = EXCLUDED.client_ip,
			client_agent = EXCLUDED.client_agent,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
		WHERE download_tokens.expires_at <= NOW()
		RETURNING ` + downloadTokenColumns + `
	`

	stored, err := scanDownloadToken(r.db.QueryRowContext(ctx, query,
		token.ID,
		token.Token,
		token.UserID,
		token.LoaderID,
		token.ProductName,
		token.ClientIP,
		token.ClientAgent,
		token.ExpiresAt,
		token.UsedAt,
		token.CreatedAt,
	))
	if err != nil {
		return nil, mapConstraintError(err)
	}
	if stored != nil {
		return stored, nil
	}

	// No row returned: the conflicting token is still live, so a concurrent
	// issue won the slot. Hand back the winner.
	live, err := r.FindLive(ctx, token.UserID, token.LoaderID)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, fmt.Errorf("download token slot for user %s is held by an unreadable row", token.UserID)
	}
	return live, nil
}

// FindLive returns the newest unused, unexpired token for a (user, loader)
// pair, or (nil, nil) when none exists. Issuing reuses a live token instead
// of minting a second one, so a user holds at most one live token per loader.
func (r *DownloadTokenRepository) FindLive(ctx context.Context, userID, loaderID string) (*models.DownloadToken, error) {
	query := `
		SELECT ` + downloadTokenColumns + `
		FROM download_tokens
		WHERE user_id = $1 AND loader_id = $2 AND used_at IS NULL AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanDownloadToken(r.db.QueryRowContext(ctx, query, userID, loaderID))
}

// Consume atomically marks a token used and bumps the loader's download
// counters, returning the token and its loader. The token row is locked so a
// replayed request loses the race and sees ErrTokenUsed. Expired and unknown
// tokens map to their own sentinels so handlers can distinguish 404 from 410.
func (r *DownloadTokenRepository) Consume(ctx context.Context, tokenValue string) (*models.DownloadToken, *models.Loader, error) {
	now := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lockQuery := `SELECT ` + downloadTokenColumns + ` FROM download_tokens WHERE token = $1 FOR UPDATE`
	token, err := scanDownloadToken(tx.QueryRowContext(ctx, lockQuery, tokenValue))
	if err != nil {
		return nil, nil, err
	}
	if token == nil {
		return nil, nil, ErrTokenNotFound
	}
	if token.UsedAt != nil {
		return nil, nil, ErrTokenUsed
	}
	if !token.ExpiresAt.After(now) {
		return nil, nil, ErrTokenExpired
	}

	token.UsedAt = &now
	markQuery := `UPDATE download_tokens SET used_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, markQuery, token.ID, now); err != nil {
		return nil, nil, err
	}

	bumpQuery := `
		UPDATE loaders
		SET download_count = download_count + 1, last_downloaded_at = $2
		WHERE id = $1
		RETURNING ` + loaderColumns + `
	`
	loader, err := scanLoader(tx.QueryRowContext(ctx, bumpQuery, token.LoaderID, now))
	if err != nil {
		return nil, nil, err
	}
	if loader == nil {
		return nil, nil, ErrLoaderNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit token consumption: %w", err)
	}
	return token, loader, nil
}

// DeleteExpired removes tokens whose expiry has passed. Used tokens are kept
// until they expire so replay attempts keep hitting ErrTokenUsed rather than
// ErrTokenNotFound.
func (r *DownloadTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM download_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
