// subscriptions.go implements admin subscription grants, extensions, and
// revocations against the per-user ledger.
package admin

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
)

// SubscriptionHandlers handles admin subscription endpoints.
type SubscriptionHandlers struct {
	subRepo     *repositories.SubscriptionRepository
	userRepo    *repositories.UserRepository
	productRepo *repositories.ProductRepository
}

// NewSubscriptionHandlers creates a new SubscriptionHandlers instance.
func NewSubscriptionHandlers(
	subRepo *repositories.SubscriptionRepository,
	userRepo *repositories.UserRepository,
	productRepo *repositories.ProductRepository,
) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		subRepo:     subRepo,
		userRepo:    userRepo,
		productRepo: productRepo,
	}
}

type adminSubscriptionView struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	ProductID          string    `json:"product_id"`
	ProductName        *string   `json:"product,omitempty"`
	ProductDisplayName *string   `json:"product_display_name,omitempty"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	Active             bool      `json:"active"`
}

func viewSubscription(s *models.Subscription, now time.Time) adminSubscriptionView {
	return adminSubscriptionView{
		ID:                 s.ID,
		UserID:             s.UserID,
		ProductID:          s.ProductID,
		ProductName:        s.ProductName,
		ProductDisplayName: s.ProductDisplayName,
		StartDate:          s.StartDate,
		EndDate:            s.EndDate,
		Active:             s.EffectivelyActive(now),
	}
}

// GrantRequest is the body for POST /api/v1/admin/users/:id/subscriptions.
type GrantRequest struct {
	Product string `json:"product" binding:"required"`
	Days    int    `json:"days" binding:"required,min=1,max=3650"`
}

// GrantHandler gives a user access time for a product. If the user already
// holds live time the new days stack onto the current end date; otherwise the
// clock starts now. Extending is the same operation.
// POST /api/v1/admin/users/:id/subscriptions
func (h *SubscriptionHandlers) GrantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req GrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
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

		product, err := h.productRepo.GetByName(c.Request.Context(), req.Product)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve product")
			return
		}
		if product == nil {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}

		sub, err := h.subRepo.Activate(c.Request.Context(), userID, product.ID, req.Days)
		if err != nil {
			slog.Error("failed to grant subscription",
				"user_id", userID, "product", req.Product, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to grant subscription")
			return
		}

		slog.Info("subscription granted",
			"user_id", userID, "product", req.Product, "days", req.Days, "ends_at", sub.EndDate)
		respondData(c, http.StatusOK, "Subscription granted", viewSubscription(sub, time.Now()))
	}
}

// ListForUserHandler lists every subscription row a user holds, live or not.
// GET /api/v1/admin/users/:id/subscriptions
func (h *SubscriptionHandlers) ListForUserHandler() gin.HandlerFunc {
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

		subs, err := h.subRepo.ListForUser(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to list subscriptions", "user_id", userID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to list subscriptions")
			return
		}

		now := time.Now()
		views := make([]adminSubscriptionView, 0, len(subs))
		for _, s := range subs {
			views = append(views, viewSubscription(s, now))
		}
		respondData(c, http.StatusOK, "", gin.H{"subscriptions": views})
	}
}

// RevokeHandler deactivates a subscription immediately. The row and its dates
// stay in the ledger; a later grant reactivates it with a fresh clock.
// POST /api/v1/admin/subscriptions/:id/revoke
func (h *SubscriptionHandlers) RevokeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subID := c.Param("id")

		err := h.subRepo.Revoke(c.Request.Context(), subID)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Subscription not found")
			return
		}
		if err != nil {
			slog.Error("failed to revoke subscription", "subscription_id", subID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to revoke subscription")
			return
		}

		slog.Info("subscription revoked", "subscription_id", subID)
		respondData(c, http.StatusOK, "Subscription revoked", nil)
	}
}
