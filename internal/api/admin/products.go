// products.go implements admin product management: catalog CRUD and the
// frozen/broken/alpha-only gate flags.
package admin

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/entitlement"
)

// ProductHandlers handles admin product endpoints.
type ProductHandlers struct {
	productRepo *repositories.ProductRepository
	invalidate  func(c *gin.Context, name string)
}

// NewProductHandlers creates a new ProductHandlers instance. invalidate is
// called with the product's machine name after every successful write so the
// cache never serves flags older than the write; it may be nil when caching
// is disabled.
func NewProductHandlers(productRepo *repositories.ProductRepository, invalidate func(c *gin.Context, name string)) *ProductHandlers {
	if invalidate == nil {
		invalidate = func(*gin.Context, string) {}
	}
	return &ProductHandlers{productRepo: productRepo, invalidate: invalidate}
}

// adminProductView exposes the raw gate flags alongside the derived status.
type adminProductView struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	DisplayName string                    `json:"display_name"`
	PriceCents  int64                     `json:"price_cents"`
	IsFrozen    bool                      `json:"is_frozen"`
	IsBroken    bool                      `json:"is_broken"`
	IsAlphaOnly bool                      `json:"is_alpha_only"`
	Status      entitlement.ProductStatus `json:"status"`
}

func viewProduct(p *models.Product) adminProductView {
	return adminProductView{
		ID:          p.ID,
		Name:        p.Name,
		DisplayName: p.DisplayName,
		PriceCents:  p.PriceCents,
		IsFrozen:    p.IsFrozen,
		IsBroken:    p.IsBroken,
		IsAlphaOnly: p.IsAlphaOnly,
		Status:      entitlement.StatusOf(p),
	}
}

// CreateProductRequest is the body for POST /api/v1/admin/products.
type CreateProductRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=64"`
	DisplayName string `json:"display_name" binding:"required"`
	PriceCents  int64  `json:"price_cents" binding:"min=0"`
	IsAlphaOnly bool   `json:"is_alpha_only"`
}

// CreateHandler adds a product to the catalog.
// POST /api/v1/admin/products
func (h *ProductHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		product := &models.Product{
			Name:        req.Name,
			DisplayName: req.DisplayName,
			PriceCents:  req.PriceCents,
			IsAlphaOnly: req.IsAlphaOnly,
		}
		if err := h.productRepo.Create(c.Request.Context(), product); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				respondError(c, http.StatusConflict, "A product with that name already exists")
				return
			}
			slog.Error("failed to create product", "name", req.Name, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to create product")
			return
		}

		slog.Info("product created", "product_id", product.ID, "name", product.Name)
		respondData(c, http.StatusCreated, "Product created", viewProduct(product))
	}
}

// ListHandler lists all products with their raw flags.
// GET /api/v1/admin/products
func (h *ProductHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := h.productRepo.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list products", "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to list products")
			return
		}

		views := make([]adminProductView, 0, len(products))
		for _, p := range products {
			views = append(views, viewProduct(p))
		}
		respondData(c, http.StatusOK, "", gin.H{"products": views})
	}
}

// UpdateProductRequest is the body for PUT /api/v1/admin/products/:id.
type UpdateProductRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	PriceCents  int64  `json:"price_cents" binding:"min=0"`
}

// UpdateHandler changes a product's display name and price. The machine name
// is immutable; loaders and cache keys are addressed by it.
// PUT /api/v1/admin/products/:id
func (h *ProductHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		product, err := h.productRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve product")
			return
		}
		if product == nil {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}

		product.DisplayName = req.DisplayName
		product.PriceCents = req.PriceCents
		if err := h.productRepo.Update(c.Request.Context(), product); err != nil {
			slog.Error("failed to update product", "product_id", product.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to update product")
			return
		}
		h.invalidate(c, product.Name)

		respondData(c, http.StatusOK, "Product updated", viewProduct(product))
	}
}

// SetStatusRequest is the body for PUT /api/v1/admin/products/:id/status.
// All three flags are required: status writes replace the complete flag set,
// never merge into it.
type SetStatusRequest struct {
	IsFrozen    *bool `json:"is_frozen" binding:"required"`
	IsBroken    *bool `json:"is_broken" binding:"required"`
	IsAlphaOnly *bool `json:"is_alpha_only" binding:"required"`
}

// SetStatusHandler overwrites a product's gate flags.
// PUT /api/v1/admin/products/:id/status
func (h *ProductHandlers) SetStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		productID := c.Param("id")
		err := h.productRepo.SetFlags(c.Request.Context(), productID, *req.IsFrozen, *req.IsBroken, *req.IsAlphaOnly)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}
		if err != nil {
			slog.Error("failed to set product status", "product_id", productID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to update product status")
			return
		}

		product, err := h.productRepo.GetByID(c.Request.Context(), productID)
		if err != nil || product == nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve product")
			return
		}
		h.invalidate(c, product.Name)

		slog.Info("product status changed",
			"product_id", productID,
			"frozen", *req.IsFrozen,
			"broken", *req.IsBroken,
			"alpha_only", *req.IsAlphaOnly)
		respondData(c, http.StatusOK, "Product status updated", viewProduct(product))
	}
}

// DeleteHandler removes a product. Its subscriptions, keys, and loader rows
// cascade at the database level.
// DELETE /api/v1/admin/products/:id
func (h *ProductHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := h.productRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve product")
			return
		}
		if product == nil {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}

		if err := h.productRepo.Delete(c.Request.Context(), product.ID); err != nil {
			slog.Error("failed to delete product", "product_id", product.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to delete product")
			return
		}
		h.invalidate(c, product.Name)

		slog.Info("product deleted", "product_id", product.ID, "name", product.Name)
		respondData(c, http.StatusOK, "Product deleted", nil)
	}
}
