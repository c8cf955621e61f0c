// accounts.go implements registration, login, and account self-service
// endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/auth"
	"github.com/Daziusm/anonbuci-sub001/internal/config"
	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
)

// AccountHandlers handles registration, login, and account self-service.
type AccountHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
}

// NewAccountHandlers creates a new AccountHandlers instance.
func NewAccountHandlers(cfg *config.Config, userRepo *repositories.UserRepository) *AccountHandlers {
	return &AccountHandlers{cfg: cfg, userRepo: userRepo}
}

// userView is the client-facing projection of a user row. The password hash
// and the raw hardware identifier never leave the server.
type userView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       *string   `json:"email,omitempty"`
	AccountType string    `json:"account_type"`
	HWIDBound   bool      `json:"hwid_bound"`
	HWIDResets  int       `json:"hwid_resets"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewUser(u *models.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		AccountType: u.AccountType,
		HWIDBound:   u.HWID != nil,
		HWIDResets:  u.HWIDResets,
		CreatedAt:   u.CreatedAt,
	}
}

// RegisterRequest is the body for POST /api/v1/auth/register.
type RegisterRequest struct {
	Username string  `json:"username" binding:"required,min=3,max=32,alphanum"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Password string  `json:"password" binding:"required"`
}

// RegisterHandler creates a new account and returns a session token.
// POST /api/v1/auth/register
func (h *AccountHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.cfg.Auth.AllowRegistration {
			respondError(c, http.StatusForbidden, "Registration is disabled")
			return
		}

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrPasswordTooShort) {
				respondError(c, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("failed to hash password", "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to create account")
			return
		}

		user := &models.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hash,
			AccountType:  models.AccountTypeUser,
		}
		if err := h.userRepo.Create(c.Request.Context(), user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				respondError(c, http.StatusConflict, "Username or email already taken")
				return
			}
			slog.Error("failed to create user", "username", req.Username, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to create account")
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Username, h.cfg.Auth.SessionDuration)
		if err != nil {
			slog.Error("failed to generate session token", "user_id", user.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to create session")
			return
		}

		slog.Info("account registered", "user_id", user.ID, "username", user.Username)
		respondData(c, http.StatusCreated, "Account created", gin.H{
			"token": token,
			"user":  viewUser(user),
		})
	}
}

// LoginRequest is the body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler authenticates a username/password pair and returns a session
// token. Banned accounts are rejected with banned:true and the ban reason so
// the client shows it instead of a generic failure.
// POST /api/v1/auth/login
func (h *AccountHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		user, err := h.userRepo.GetByUsername(c.Request.Context(), req.Username)
		if err != nil {
			slog.Error("failed to load user for login", "error", err)
			respondError(c, http.StatusInternalServerError, "Login failed")
			return
		}
		// Identical message for unknown user and bad password so the endpoint
		// does not leak which usernames exist.
		if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
			respondError(c, http.StatusUnauthorized, "Invalid username or password")
			return
		}

		if user.IsBanned {
			message := "Account is banned"
			if user.BanReason != nil && *user.BanReason != "" {
				message = "Account is banned: " + *user.BanReason
			}
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": message,
				"banned":  true,
			})
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Username, h.cfg.Auth.SessionDuration)
		if err != nil {
			slog.Error("failed to generate session token", "user_id", user.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to create session")
			return
		}

		respondData(c, http.StatusOK, "Logged in", gin.H{
			"token": token,
			"user":  viewUser(user),
		})
	}
}

// MeHandler returns the authenticated account.
// GET /api/v1/auth/me
func (h *AccountHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		respondData(c, http.StatusOK, "", viewUser(user))
	}
}

// ResetHWIDHandler clears the caller's hardware binding. The reset counter
// only moves forward; the configured limit caps self-service resets while
// admins can always reset on a user's behalf.
// POST /api/v1/hwid/reset
func (h *AccountHandlers) ResetHWIDHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		if limit := h.cfg.Auth.HWIDResetLimit; limit > 0 && user.HWIDResets >= limit {
			respondError(c, http.StatusForbidden, "Hardware ID reset limit reached, contact support")
			return
		}

		if err := h.userRepo.ResetHWID(c.Request.Context(), user.ID); err != nil {
			slog.Error("failed to reset hwid", "user_id", user.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to reset hardware ID")
			return
		}

		slog.Info("hardware binding reset", "user_id", user.ID, "resets", user.HWIDResets+1)
		respondData(c, http.StatusOK, "Hardware ID reset", gin.H{
			"hwid_resets": user.HWIDResets + 1,
		})
	}
}
