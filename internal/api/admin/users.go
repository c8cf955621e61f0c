// users.go implements admin handlers for account management: listing,
// searching, banning, hardware resets, and deletion.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
)

// UserHandlers handles admin user management endpoints.
type UserHandlers struct {
	userRepo *repositories.UserRepository
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(userRepo *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{userRepo: userRepo}
}

// adminUserView includes moderation fields hidden from the self-service view.
type adminUserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       *string   `json:"email,omitempty"`
	AccountType string    `json:"account_type"`
	IsBanned    bool      `json:"is_banned"`
	BanReason   *string   `json:"ban_reason,omitempty"`
	HWIDBound   bool      `json:"hwid_bound"`
	HWIDResets  int       `json:"hwid_resets"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewUser(u *models.User) adminUserView {
	return adminUserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		AccountType: u.AccountType,
		IsBanned:    u.IsBanned,
		BanReason:   u.BanReason,
		HWIDBound:   u.HWID != nil,
		HWIDResets:  u.HWIDResets,
		CreatedAt:   u.CreatedAt,
	}
}

func viewUsers(users []*models.User) []adminUserView {
	views := make([]adminUserView, 0, len(users))
	for _, u := range users {
		views = append(views, viewUser(u))
	}
	return views
}

// parsePagination reads page/per_page query parameters with the usual bounds.
func parsePagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// ListHandler lists all users with pagination.
// GET /api/v1/admin/users?page=1&per_page=20
func (h *UserHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		users, total, err := h.userRepo.List(c.Request.Context(), perPage, offset)
		if err != nil {
			slog.Error("failed to list users", "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to list users")
			return
		}

		respondData(c, http.StatusOK, "", gin.H{
			"users": viewUsers(users),
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// SearchHandler finds users by username or email substring.
// GET /api/v1/admin/users/search?q=alice
func (h *UserHandlers) SearchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			respondError(c, http.StatusBadRequest, "Missing search query")
			return
		}
		_, perPage, offset := parsePagination(c)

		users, err := h.userRepo.Search(c.Request.Context(), query, perPage, offset)
		if err != nil {
			slog.Error("failed to search users", "query", query, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to search users")
			return
		}

		respondData(c, http.StatusOK, "", gin.H{"users": viewUsers(users)})
	}
}

// GetHandler retrieves a single user.
// GET /api/v1/admin/users/:id
func (h *UserHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			slog.Error("failed to load user", "user_id", c.Param("id"), "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to retrieve user")
			return
		}
		if user == nil {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		respondData(c, http.StatusOK, "", viewUser(user))
	}
}

// BanRequest is the body for POST /api/v1/admin/users/:id/ban.
type BanRequest struct {
	Reason string `json:"reason"`
}

// BanHandler bans a user. A banned user keeps their ledger rows but has zero
// entitlement until unbanned.
// POST /api/v1/admin/users/:id/ban
func (h *UserHandlers) BanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req BanRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		user, err := h.userRepo.GetByID(c.Request.Context(), userID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve user")
			return
		}
		if user == nil {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		if admin, ok := middleware.CurrentUser(c); ok && admin.ID == userID {
			respondError(c, http.StatusBadRequest, "Cannot ban your own account")
			return
		}

		var reason *string
		if req.Reason != "" {
			reason = &req.Reason
		}
		if err := h.userRepo.SetBan(c.Request.Context(), userID, true, reason); err != nil {
			slog.Error("failed to ban user", "user_id", userID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to ban user")
			return
		}

		slog.Info("user banned", "user_id", userID, "reason", req.Reason)
		respondData(c, http.StatusOK, "User banned", nil)
	}
}

// UnbanHandler lifts a ban.
// POST /api/v1/admin/users/:id/unban
func (h *UserHandlers) UnbanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		if err := h.userRepo.SetBan(c.Request.Context(), userID, false, nil); err != nil {
			slog.Error("failed to unban user", "user_id", userID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to unban user")
			return
		}

		slog.Info("user unbanned", "user_id", userID)
		respondData(c, http.StatusOK, "User unbanned", nil)
	}
}

// ResetHWIDHandler clears a user's hardware binding on their behalf. Unlike
// the self-service endpoint this is not subject to the reset limit.
// POST /api/v1/admin/users/:id/hwid/reset
func (h *UserHandlers) ResetHWIDHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		user, err := h.userRepo.GetByID(c.Request.Context(), userID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve user")
			return
		}
		if user == nil {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}

		if err := h.userRepo.ResetHWID(c.Request.Context(), userID); err != nil {
			slog.Error("failed to reset hwid", "user_id", userID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to reset hardware ID")
			return
		}

		slog.Info("hardware binding reset by admin", "user_id", userID)
		respondData(c, http.StatusOK, "Hardware ID reset", nil)
	}
}

// DeleteHandler removes a user. Subscriptions, download tokens, and audit
// entries cascade at the database level.
// DELETE /api/v1/admin/users/:id
func (h *UserHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		if admin, ok := middleware.CurrentUser(c); ok && admin.ID == userID {
			respondError(c, http.StatusBadRequest, "Cannot delete your own account")
			return
		}

		user, err := h.userRepo.GetByID(c.Request.Context(), userID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve user")
			return
		}
		if user == nil {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}

		if err := h.userRepo.Delete(c.Request.Context(), userID); err != nil {
			slog.Error("failed to delete user", "user_id", userID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to delete user")
			return
		}

		slog.Info("user deleted", "user_id", userID, "username", user.Username)
		respondData(c, http.StatusOK, "User deleted", nil)
	}
}
