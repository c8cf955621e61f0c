package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// ProductRepository handles product database operations.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, name, display_name, price_cents, is_frozen, is_broken, is_alpha_only, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.DisplayName,
		&product.PriceCents,
		&product.IsFrozen,
		&product.IsBroken,
		&product.IsAlphaOnly,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	product.ID = uuid.New().String()
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt

	query := `
		INSERT INTO products (id, name, display_name, price_cents, is_frozen, is_broken, is_alpha_only, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		product.ID,
		product.Name,
		product.DisplayName,
		product.PriceCents,
		product.IsFrozen,
		product.IsBroken,
		product.IsAlphaOnly,
		product.CreatedAt,
		product.UpdatedAt,
	)
	return mapConstraintError(err)
}

// GetByID retrieves a product by ID. Returns (nil, nil) when absent.
func (r *ProductRepository) GetByID(ctx context.Context, productID string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanProduct(r.db.QueryRowContext(ctx, query, productID))
}

// GetByName retrieves a product by its unique name. Returns (nil, nil) when
// absent.
func (r *ProductRepository) GetByName(ctx context.Context, name string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE name = $1`
	return scanProduct(r.db.QueryRowContext(ctx, query, name))
}

// List retrieves all products ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, rows.Err()
}

// Update persists display name and price changes.
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now()

	query := `
		UPDATE products
		SET display_name = $2, price_cents = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		product.ID,
		product.DisplayName,
		product.PriceCents,
		product.UpdatedAt,
	)
	return err
}

// SetFlags overwrites all three status flags in a single statement. Status
// writes always replace the complete flag set so two admins racing on
// different flags cannot interleave into a state neither intended.
func (r *ProductRepository) SetFlags(ctx context.Context, productID string, frozen, broken, alphaOnly bool) error {
	query := `
		UPDATE products
		SET is_frozen = $2, is_broken = $3, is_alpha_only = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, productID, frozen, broken, alphaOnly, time.Now())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a product. Subscriptions, license keys, and loaders for the
// product cascade at the database level.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	return err
}
