// loaders.go implements admin loader binary management: multipart upload into
// the configured storage backend, activation toggling, and deletion.
package admin

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/config"
	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
	"github.com/Daziusm/anonbuci-sub001/internal/storage"
	"github.com/Daziusm/anonbuci-sub001/internal/validation"
)

// LoaderHandlers handles admin loader binary endpoints.
type LoaderHandlers struct {
	cfg         *config.Config
	loaderRepo  *repositories.LoaderRepository
	productRepo *repositories.ProductRepository
	store       storage.Storage
}

// NewLoaderHandlers creates a new LoaderHandlers instance.
func NewLoaderHandlers(
	cfg *config.Config,
	loaderRepo *repositories.LoaderRepository,
	productRepo *repositories.ProductRepository,
	store storage.Storage,
) *LoaderHandlers {
	return &LoaderHandlers{
		cfg:         cfg,
		loaderRepo:  loaderRepo,
		productRepo: productRepo,
		store:       store,
	}
}

type loaderView struct {
	ID               string     `json:"id"`
	Product          string     `json:"product"`
	Filename         string     `json:"filename"`
	Version          *string    `json:"version,omitempty"`
	SizeBytes        int64      `json:"size_bytes"`
	Checksum         string     `json:"checksum"`
	StorageBackend   string     `json:"storage_backend"`
	IsActive         bool       `json:"is_active"`
	DownloadCount    int64      `json:"download_count"`
	LastDownloadedAt *time.Time `json:"last_downloaded_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func viewLoader(l *models.Loader) loaderView {
	return loaderView{
		ID:               l.ID,
		Product:          l.ProductName,
		Filename:         l.Filename,
		Version:          l.Version,
		SizeBytes:        l.SizeBytes,
		Checksum:         l.Checksum,
		StorageBackend:   l.StorageBackend,
		IsActive:         l.IsActive,
		DownloadCount:    l.DownloadCount,
		LastDownloadedAt: l.LastDownloadedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

// UploadHandler stores a new loader binary for a product. The upload replaces
// any previous binary for the product: download counters carry over and the
// old object is removed from storage once the record is updated. Form fields:
// product (required), version (optional), file (required).
// POST /api/v1/admin/loaders
func (h *LoaderHandlers) UploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		productName := c.PostForm("product")
		if productName == "" {
			respondError(c, http.StatusBadRequest, "Missing product field")
			return
		}

		versionTag := c.PostForm("version")
		if versionTag != "" {
			if err := validation.ValidateVersionTag(versionTag); err != nil {
				respondError(c, http.StatusBadRequest, err.Error())
				return
			}
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			respondError(c, http.StatusBadRequest, "Missing file upload")
			return
		}
		if err := validation.ValidateUploadFilename(fileHeader.Filename); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := validation.ValidateUploadSize(fileHeader.Size, h.cfg.Downloads.MaxUploadSizeMB); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}

		product, err := h.productRepo.GetByName(c.Request.Context(), productName)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve product")
			return
		}
		if product == nil {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}

		// The previous loader's object must go once it is replaced; its
		// storage path changes whenever the uploaded filename does.
		prior, err := h.loaderRepo.GetByProductName(c.Request.Context(), product.Name)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve loader")
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to read upload")
			return
		}
		defer file.Close()

		storagePath := fmt.Sprintf("loaders/%s/%s", product.Name, fileHeader.Filename)
		result, err := h.store.Upload(c.Request.Context(), storagePath, file, fileHeader.Size)
		if err != nil {
			slog.Error("failed to store loader binary",
				"product", product.Name, "path", storagePath, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to store file")
			return
		}

		var uploadedBy *string
		if admin, ok := middleware.CurrentUser(c); ok {
			uploadedBy = &admin.ID
		}
		var version *string
		if versionTag != "" {
			version = &versionTag
		}

		loader := &models.Loader{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Filename:       fileHeader.Filename,
			Version:        version,
			StoragePath:    result.Path,
			StorageBackend: h.cfg.Storage.DefaultBackend,
			SizeBytes:      result.Size,
			Checksum:       result.Checksum,
			IsActive:       true,
			UploadedBy:     uploadedBy,
		}
		if err := h.loaderRepo.Upsert(c.Request.Context(), loader); err != nil {
			slog.Error("failed to record loader", "product", product.Name, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to record loader")
			return
		}

		if prior != nil && prior.StoragePath != loader.StoragePath {
			if err := h.store.Delete(c.Request.Context(), prior.StoragePath); err != nil {
				slog.Warn("failed to remove replaced loader binary",
					"product", product.Name, "path", prior.StoragePath, "error", err)
			}
		}

		slog.Info("loader uploaded",
			"product", product.Name,
			"filename", loader.Filename,
			"size_bytes", loader.SizeBytes,
			"checksum", loader.Checksum)
		respondData(c, http.StatusCreated, "Loader uploaded", viewLoader(loader))
	}
}

// ListHandler lists all loader records.
// GET /api/v1/admin/loaders
func (h *LoaderHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loaders, err := h.loaderRepo.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list loaders", "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to list loaders")
			return
		}

		views := make([]loaderView, 0, len(loaders))
		for _, l := range loaders {
			views = append(views, viewLoader(l))
		}
		respondData(c, http.StatusOK, "", gin.H{"loaders": views})
	}
}

// SetActiveRequest is the body for PUT /api/v1/admin/loaders/:id/active.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetActiveHandler enables or disables a loader without removing the binary.
// A disabled loader fails token issuance with the same error as a missing one.
// PUT /api/v1/admin/loaders/:id/active
func (h *LoaderHandlers) SetActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}

		loaderID := c.Param("id")
		err := h.loaderRepo.SetActive(c.Request.Context(), loaderID, *req.IsActive)
		if errors.Is(err, repositories.ErrLoaderNotFound) {
			respondError(c, http.StatusNotFound, "Loader not found")
			return
		}
		if err != nil {
			slog.Error("failed to toggle loader", "loader_id", loaderID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to update loader")
			return
		}

		slog.Info("loader active flag changed", "loader_id", loaderID, "is_active", *req.IsActive)
		respondData(c, http.StatusOK, "Loader updated", nil)
	}
}

// DeleteHandler removes a loader record and its stored binary. The record is
// deleted even when the backend delete fails so a missing object cannot strand
// the row.
// DELETE /api/v1/admin/loaders/:id
func (h *LoaderHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader, err := h.loaderRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to retrieve loader")
			return
		}
		if loader == nil {
			respondError(c, http.StatusNotFound, "Loader not found")
			return
		}

		if err := h.store.Delete(c.Request.Context(), loader.StoragePath); err != nil {
			slog.Warn("failed to delete loader binary from storage",
				"loader_id", loader.ID, "path", loader.StoragePath, "error", err)
		}

		if err := h.loaderRepo.Delete(c.Request.Context(), loader.ID); err != nil {
			slog.Error("failed to delete loader record", "loader_id", loader.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to delete loader")
			return
		}

		slog.Info("loader deleted", "loader_id", loader.ID, "product", loader.ProductName)
		respondData(c, http.StatusOK, "Loader deleted", nil)
	}
}
