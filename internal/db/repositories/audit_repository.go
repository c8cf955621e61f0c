package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// AuditRepository persists the request audit trail.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO audit_logs (id, user_id, action, resource, status_code, client_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.Resource,
		entry.StatusCode,
		entry.ClientIP,
		entry.UserAgent,
		entry.CreatedAt,
	)
	return err
}

// ListRecent retrieves the most recent audit entries, optionally filtered by
// user.
func (r *AuditRepository) ListRecent(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, action, resource, status_code, client_ip, user_agent, created_at
		FROM audit_logs
		WHERE ($1 = '' OR user_id = $1::uuid)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.AuditLog, 0)
	for rows.Next() {
		entry := &models.AuditLog{}
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.Resource,
			&entry.StatusCode,
			&entry.ClientIP,
			&entry.UserAgent,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
