// stats.go implements the admin dashboard statistics endpoint.
package admin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// StatsHandlers handles the dashboard statistics endpoint.
type StatsHandlers struct {
	db *sqlx.DB
}

// NewStatsHandlers creates a new StatsHandlers instance.
func NewStatsHandlers(db *sqlx.DB) *StatsHandlers {
	return &StatsHandlers{db: db}
}

// dashboardStats is scanned from a single query; each field is a subquery so
// the dashboard costs one round trip.
type dashboardStats struct {
	TotalUsers          int   `db:"total_users" json:"total_users"`
	BannedUsers         int   `db:"banned_users" json:"banned_users"`
	TotalProducts       int   `db:"total_products" json:"total_products"`
	ActiveSubscriptions int   `db:"active_subscriptions" json:"active_subscriptions"`
	KeysRedeemed        int   `db:"keys_redeemed" json:"keys_redeemed"`
	KeysOutstanding     int   `db:"keys_outstanding" json:"keys_outstanding"`
	TotalDownloads      int64 `db:"total_downloads" json:"total_downloads"`
	LiveDownloadTokens  int   `db:"live_download_tokens" json:"live_download_tokens"`
}

const statsQuery = `
	SELECT
		(SELECT COUNT(*) FROM users) AS total_users,
		(SELECT COUNT(*) FROM users WHERE is_banned = TRUE) AS banned_users,
		(SELECT COUNT(*) FROM products) AS total_products,
		(SELECT COUNT(*) FROM subscriptions WHERE is_active = TRUE AND end_date > NOW()) AS active_subscriptions,
		(SELECT COUNT(*) FROM license_keys WHERE is_used = TRUE) AS keys_redeemed,
		(SELECT COUNT(*) FROM license_keys WHERE is_used = FALSE) AS keys_outstanding,
		(SELECT COALESCE(SUM(download_count), 0) FROM loaders) AS total_downloads,
		(SELECT COUNT(*) FROM download_tokens WHERE used_at IS NULL AND expires_at > NOW()) AS live_download_tokens
`

// GetHandler returns aggregate counts for the admin dashboard.
// GET /api/v1/admin/stats
func (h *StatsHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats dashboardStats
		if err := h.db.GetContext(c.Request.Context(), &stats, statsQuery); err != nil {
			slog.Error("failed to load dashboard stats", "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to load statistics")
			return
		}
		respondData(c, http.StatusOK, "", stats)
	}
}
