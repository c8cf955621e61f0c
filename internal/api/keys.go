// keys.go implements license key activation for authenticated users.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
	"github.com/Daziusm/anonbuci-sub001/internal/telemetry"
)

// KeyHandlers handles license key redemption.
type KeyHandlers struct {
	keyRepo     *repositories.LicenseKeyRepository
	productRepo *repositories.ProductRepository
}

// NewKeyHandlers creates a new KeyHandlers instance.
func NewKeyHandlers(keyRepo *repositories.LicenseKeyRepository, productRepo *repositories.ProductRepository) *KeyHandlers {
	return &KeyHandlers{keyRepo: keyRepo, productRepo: productRepo}
}

// ActivateRequest is the body for POST /api/v1/keys/activate.
type ActivateRequest struct {
	Code string `json:"code" binding:"required"`
}

// ActivateHandler redeems a license key for the caller. The key burn and the
// subscription grant commit together; a failed grant leaves the key unused.
// Concurrent attempts on the same code have exactly one winner.
// POST /api/v1/keys/activate
func (h *KeyHandlers) ActivateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		var req ActivateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		key, sub, err := h.keyRepo.Redeem(c.Request.Context(), req.Code, user.ID)
		if err != nil {
			switch {
			case errors.Is(err, repositories.ErrKeyNotFound):
				telemetry.KeyRedemptionsTotal.WithLabelValues("unknown", "not_found").Inc()
				respondError(c, http.StatusNotFound, "License key not found")
			case errors.Is(err, repositories.ErrKeyUsed):
				telemetry.KeyRedemptionsTotal.WithLabelValues("unknown", "used").Inc()
				respondError(c, http.StatusConflict, "License key has already been used")
			case errors.Is(err, repositories.ErrKeyExpired):
				telemetry.KeyRedemptionsTotal.WithLabelValues("unknown", "expired").Inc()
				respondError(c, http.StatusGone, "License key has expired")
			default:
				slog.Error("license key redemption failed", "user_id", user.ID, "error", err)
				respondError(c, http.StatusInternalServerError, "Failed to activate key")
			}
			return
		}

		productName := key.ProductID
		if product, lookupErr := h.productRepo.GetByID(c.Request.Context(), key.ProductID); lookupErr == nil && product != nil {
			productName = product.Name
		}
		telemetry.KeyRedemptionsTotal.WithLabelValues(productName, "ok").Inc()
		slog.Info("license key redeemed",
			"user_id", user.ID,
			"product", productName,
			"duration_days", key.DurationDays,
			"ends_at", sub.EndDate)

		respondData(c, http.StatusOK, "Key activated", gin.H{
			"product":       productName,
			"duration_days": key.DurationDays,
			"subscription":  viewSubscription(sub, time.Now().UTC()),
		})
	}
}
