// keys.go implements admin license key generation and vault management.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/auth"
	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
)

// maxKeysPerBatch caps a single generation request.
const maxKeysPerBatch = 500

// KeyHandlers handles admin license key endpoints.
type KeyHandlers struct {
	keyRepo     *repositories.LicenseKeyRepository
	productRepo *repositories.ProductRepository
}

// NewKeyHandlers creates a new KeyHandlers instance.
func NewKeyHandlers(keyRepo *repositories.LicenseKeyRepository, productRepo *repositories.ProductRepository) *KeyHandlers {
	return &KeyHandlers{keyRepo: keyRepo, productRepo: productRepo}
}

type keyView struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	ProductName  *string    `json:"product,omitempty"`
	DurationDays int        `json:"duration_days"`
	IsUsed       bool       `json:"is_used"`
	UsedBy       *string    `json:"used_by,omitempty"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func viewKey(k *models.LicenseKey) keyView {
	return keyView{
		ID:           k.ID,
		Code:         k.Code,
		ProductName:  k.ProductName,
		DurationDays: k.DurationDays,
		IsUsed:       k.IsUsed,
		UsedBy:       k.UsedBy,
		UsedAt:       k.UsedAt,
		ExpiresAt:    k.ExpiresAt,
		CreatedAt:    k.CreatedAt,
	}
}

// GenerateRequest is the body for POST /api/v1/admin/keys.
type GenerateRequest struct {
	Product      string     `json:"product" binding:"required"`
	DurationDays int        `json:"duration_days" binding:"required,min=1,max=3650"`
	Count        int        `json:"count" binding:"min=0,max=500"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// GenerateHandler mints a batch of single-use license keys for a product.
// POST /api/v1/admin/keys
func (h *KeyHandlers) GenerateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}
		count := req.Count
		if count == 0 {
			count = 1
		}
		if count > maxKeysPerBatch {
			respondError(c, http.StatusBadRequest, "Too many keys requested in one batch")
			return
		}
		if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
			respondError(c, http.StatusBadRequest, "Expiry must be in the future")
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

		var createdBy *string
		if admin, ok := middleware.CurrentUser(c); ok {
			createdBy = &admin.ID
		}

		codes := make([]string, 0, count)
		for i := 0; i < count; i++ {
			code, err := auth.NewLicenseCode()
			if err != nil {
				slog.Error("failed to generate license code", "error", err)
				respondError(c, http.StatusInternalServerError, "Failed to generate keys")
				return
			}

			key := &models.LicenseKey{
				Code:         code,
				ProductID:    product.ID,
				DurationDays: req.DurationDays,
				ExpiresAt:    req.ExpiresAt,
				CreatedBy:    createdBy,
			}
			if err := h.keyRepo.Create(c.Request.Context(), key); err != nil {
				slog.Error("failed to store license key", "product", req.Product, "error", err)
				respondError(c, http.StatusInternalServerError, "Failed to generate keys")
				return
			}
			codes = append(codes, code)
		}

		slog.Info("license keys generated",
			"product", req.Product, "count", len(codes), "duration_days", req.DurationDays)
		respondData(c, http.StatusCreated, "Keys generated", gin.H{
			"product":       req.Product,
			"duration_days": req.DurationDays,
			"keys":          codes,
		})
	}
}

// ListHandler lists license keys, optionally filtered by product ID.
// GET /api/v1/admin/keys?product_id=...&page=1&per_page=20
func (h *KeyHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, perPage, offset := parsePagination(c)

		keys, err := h.keyRepo.List(c.Request.Context(), c.Query("product_id"), perPage, offset)
		if err != nil {
			slog.Error("failed to list license keys", "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to list keys")
			return
		}

		views := make([]keyView, 0, len(keys))
		for _, k := range keys {
			views = append(views, viewKey(k))
		}
		respondData(c, http.StatusOK, "", gin.H{"keys": views})
	}
}

// DeleteHandler removes an unredeemed key from the vault. Redeemed keys are
// ledger history and cannot be deleted.
// DELETE /api/v1/admin/keys/:id
func (h *KeyHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		err := h.keyRepo.DeleteUnused(c.Request.Context(), keyID)
		if errors.Is(err, repositories.ErrKeyNotFound) {
			respondError(c, http.StatusNotFound, "Key not found or already redeemed")
			return
		}
		if err != nil {
			slog.Error("failed to delete license key", "key_id", keyID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to delete key")
			return
		}

		respondData(c, http.StatusOK, "Key deleted", nil)
	}
}
