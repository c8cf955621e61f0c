package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// LoaderRepository handles loader binary records. Each product has at most
// one loader row; uploading a new binary replaces the previous record in
// place, keeping its identity and download counters.
type LoaderRepository struct {
	db *sql.DB
}

// NewLoaderRepository creates a new LoaderRepository.
func NewLoaderRepository(db *sql.DB) *LoaderRepository {
	return &LoaderRepository{db: db}
}

const loaderColumns = `id, product_id, product_name, filename, version, storage_path, storage_backend, size_bytes, checksum, is_active, download_count, last_downloaded_at, uploaded_by, created_at, updated_at`

func scanLoader(row interface{ Scan(...any) error }) (*models.Loader, error) {
	loader := &models.Loader{}
	err := row.Scan(
		&loader.ID,
		&loader.ProductID,
		&loader.ProductName,
		&loader.Filename,
		&loader.Version,
		&loader.StoragePath,
		&loader.StorageBackend,
		&loader.SizeBytes,
		&loader.Checksum,
		&loader.IsActive,
		&loader.DownloadCount,
		&loader.LastDownloadedAt,
		&loader.UploadedBy,
		&loader.CreatedAt,
		&loader.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return loader, nil
}

// Upsert inserts a loader record or replaces the existing one for the same
// product. Download counters survive the replacement.
func (r *LoaderRepository) Upsert(ctx context.Context, loader *models.Loader) error {
	loader.ID = uuid.New().String()
	loader.CreatedAt = time.Now()
	loader.UpdatedAt = loader.CreatedAt

	query := `
		INSERT INTO loaders (id, product_id, product_name, filename, version, storage_path, storage_backend, size_bytes, checksum, is_active, download_count, last_downloaded_at, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, NULL, $11, $12, $13)
		ON CONFLICT (product_name) DO UPDATE SET
			filename = EXCLUDED.filename,
			version = EXCLUDED.version,
			storage_path = EXCLUDED.storage_path,
			storage_backend = EXCLUDED.storage_backend,
			size_bytes = EXCLUDED.size_bytes,
			checksum = EXCLUDED.checksum,
			is_active = EXCLUDED.is_active,
			uploaded_by = EXCLUDED.uploaded_by,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + loaderColumns + `
	`

	stored, err := scanLoader(r.db.QueryRowContext(ctx, query,
		loader.ID,
		loader.ProductID,
		loader.ProductName,
		loader.Filename,
		loader.Version,
		loader.StoragePath,
		loader.StorageBackend,
		loader.SizeBytes,
		loader.Checksum,
		loader.IsActive,
		loader.UploadedBy,
		loader.CreatedAt,
		loader.UpdatedAt,
	))
	if err != nil {
		return err
	}
	*loader = *stored
	return nil
}

// GetByID retrieves a loader by ID. Returns (nil, nil) when absent.
func (r *LoaderRepository) GetByID(ctx context.Context, loaderID string) (*models.Loader, error) {
	query := `SELECT ` + loaderColumns + ` FROM loaders WHERE id = $1`
	return scanLoader(r.db.QueryRowContext(ctx, query, loaderID))
}

// GetByProductName retrieves the loader for a product. Returns (nil, nil)
// when no loader has been uploaded for that product.
func (r *LoaderRepository) GetByProductName(ctx context.Context, productName string) (*models.Loader, error) {
	query := `SELECT ` + loaderColumns + ` FROM loaders WHERE product_name = $1`
	return scanLoader(r.db.QueryRowContext(ctx, query, productName))
}

// List retrieves all loader records ordered by product name.
func (r *LoaderRepository) List(ctx context.Context) ([]*models.Loader, error) {
	query := `SELECT ` + loaderColumns + ` FROM loaders ORDER BY product_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loaders := make([]*models.Loader, 0)
	for rows.Next() {
		loader, err := scanLoader(rows)
		if err != nil {
			return nil, err
		}
		loaders = append(loaders, loader)
	}

	return loaders, rows.Err()
}

// SetActive enables or disables a loader without deleting its record.
func (r *LoaderRepository) SetActive(ctx context.Context, loaderID string, active bool) error {
	query := `UPDATE loaders SET is_active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, loaderID, active, time.Now())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLoaderNotFound
	}
	return nil
}

// Delete removes a loader record. Outstanding download tokens for it cascade
// at the database level.
func (r *LoaderRepository) Delete(ctx context.Context, loaderID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM loaders WHERE id = $1`, loaderID)
	return err
}
