// products.go implements the public product listing.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/entitlement"
)

// ProductLister serves the product listing. Satisfied by *cache.ProductCache
// (cached) and *repositories.ProductRepository (direct).
type ProductLister interface {
	List(ctx context.Context) ([]*models.Product, error)
}

// ProductHandlers handles public product endpoints.
type ProductHandlers struct {
	products ProductLister
}

// NewProductHandlers creates a new ProductHandlers instance.
func NewProductHandlers(products ProductLister) *ProductHandlers {
	return &ProductHandlers{products: products}
}

// productView is the storefront projection of a product. The three raw gate
// flags collapse into the single derived status so clients never reimplement
// the precedence rule.
type productView struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	DisplayName string                    `json:"display_name"`
	PriceCents  int64                     `json:"price_cents"`
	Status      entitlement.ProductStatus `json:"status"`
}

func viewProduct(p *models.Product) productView {
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		DisplayName: p.DisplayName,
		PriceCents:  p.PriceCents,
		Status:      entitlement.StatusOf(p),
	}
}

// ListHandler returns all products with their derived status. Served through
// the product cache when one is configured; staleness is bounded by the cache
// TTL and is acceptable for a storefront listing.
// GET /api/v1/products
func (h *ProductHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := h.products.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list products", "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to list products")
			return
		}

		views := make([]productView, 0, len(products))
		for _, p := range products {
			views = append(views, viewProduct(p))
		}
		respondData(c, http.StatusOK, "", views)
	}
}
