// downloads.go implements download token issuance and redemption: the two
// HTTP steps between an entitled user and a loader binary.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/downloads"
	"github.com/Daziusm/anonbuci-sub001/internal/entitlement"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
)

// HWIDHeader carries the client's hardware identifier on token issue requests.
const HWIDHeader = "X-HWID"

// DownloadHandlers handles download token issuance and redemption.
type DownloadHandlers struct {
	broker *downloads.Broker
}

// NewDownloadHandlers creates a new DownloadHandlers instance.
func NewDownloadHandlers(broker *downloads.Broker) *DownloadHandlers {
	return &DownloadHandlers{broker: broker}
}

// IssueTokenRequest is the body for POST /api/v1/downloads/token.
type IssueTokenRequest struct {
	Product string `json:"product" binding:"required"`
}

// IssueTokenHandler runs the entitlement check and returns a download token.
// Issuing twice within the token window returns the same token.
// POST /api/v1/downloads/token
func (h *DownloadHandlers) IssueTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		var req IssueTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		client := downloads.ClientInfo{
			IP:    c.ClientIP(),
			Agent: c.Request.UserAgent(),
			HWID:  c.GetHeader(HWIDHeader),
		}

		token, err := h.broker.Issue(c.Request.Context(), user, req.Product, client)
		if err != nil {
			var denied *downloads.NotEntitledError
			switch {
			case errors.Is(err, downloads.ErrProductNotFound):
				respondError(c, http.StatusNotFound, "Product not found")
			case errors.Is(err, downloads.ErrLoaderUnavailable):
				respondError(c, http.StatusNotFound, "No download available for this product")
			case errors.As(err, &denied):
				body := gin.H{
					"success": false,
					"message": denialMessage(denied.Reason),
					"reason":  denied.Reason,
				}
				if denied.Reason == entitlement.ReasonBanned {
					body["banned"] = true
				}
				c.JSON(http.StatusForbidden, body)
			default:
				slog.Error("failed to issue download token",
					"user_id", user.ID, "product", req.Product, "error", err)
				respondError(c, http.StatusInternalServerError, "Failed to issue download token")
			}
			return
		}

		respondData(c, http.StatusOK, "Download token issued", gin.H{
			"token":      token.Token,
			"product":    token.ProductName,
			"expires_at": token.ExpiresAt,
		})
	}
}

// denialMessage maps an entitlement denial reason to its client-facing text.
func denialMessage(reason entitlement.Reason) string {
	switch reason {
	case entitlement.ReasonBanned:
		return "Account is banned"
	case entitlement.ReasonFrozen:
		return "Product is currently disabled"
	case entitlement.ReasonBroken:
		return "Product is down for maintenance"
	case entitlement.ReasonNoAlphaAccess:
		return "Product is in restricted alpha"
	case entitlement.ReasonNoSubscription:
		return "No active subscription for this product"
	}
	return "Access denied"
}

// RedeemHandler consumes a download token and delivers the loader binary,
// either by redirecting to a time-limited signed URL (cloud storage) or by
// streaming the bytes directly (local storage). Each token works exactly
// once; a replay gets 409 until the row is swept.
// GET /api/v1/downloads?token=...
func (h *DownloadHandlers) RedeemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenValue := c.Query("token")
		if tokenValue == "" {
			respondError(c, http.StatusBadRequest, "Missing token parameter")
			return
		}

		delivery, err := h.broker.Redeem(c.Request.Context(), tokenValue, downloads.ClientInfo{
			IP:    c.ClientIP(),
			Agent: c.Request.UserAgent(),
		})
		if err != nil {
			switch {
			case errors.Is(err, repositories.ErrTokenNotFound):
				respondError(c, http.StatusNotFound, "Download token not found")
			case errors.Is(err, repositories.ErrTokenUsed):
				respondError(c, http.StatusConflict, "Download token has already been used")
			case errors.Is(err, repositories.ErrTokenExpired):
				respondError(c, http.StatusGone, "Download token has expired")
			default:
				slog.Error("failed to redeem download token", "error", err)
				respondError(c, http.StatusInternalServerError, "Failed to retrieve download")
			}
			return
		}

		loader := delivery.Loader
		if delivery.URL != "" {
			c.Redirect(http.StatusFound, delivery.URL)
			return
		}

		defer delivery.Body.Close()
		c.Header("X-Checksum-Sha256", loader.Checksum)
		c.DataFromReader(
			http.StatusOK,
			loader.SizeBytes,
			"application/octet-stream",
			delivery.Body,
			map[string]string{
				"Content-Disposition": fmt.Sprintf("attachment; filename=%q", loader.Filename),
			},
		)
	}
}
