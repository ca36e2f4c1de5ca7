package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
	"gorm.io/gorm"
)

// productRow is the read model over the catalog's products table. The cart
// engine only reads the pricing columns; the catalog service owns the rest
// of the schema.
type productRow struct {
	ID         uuid.UUID
	Price      decimal.Decimal
	SalePrice  decimal.Decimal
	SaleActive bool
	Active     bool
}

func (productRow) TableName() string {
	return "products"
}

// variantRow is the read model over the product_variants table
type variantRow struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	Price      decimal.Decimal
	SalePrice  decimal.Decimal
	SaleActive bool
	Active     bool
}

func (variantRow) TableName() string {
	return "product_variants"
}

// GormCatalogReader implements cart.CatalogReader over the catalog tables.
// A missing row is reported as a nil snapshot, not an error; the caller
// decides whether that means unavailable or unpriceable.
type GormCatalogReader struct {
	db *gorm.DB
}

// NewGormCatalogReader creates a new GormCatalogReader
func NewGormCatalogReader(db *gorm.DB) *GormCatalogReader {
	return &GormCatalogReader{db: db}
}

// GetProduct fetches a product pricing snapshot
func (r *GormCatalogReader) GetProduct(ctx context.Context, id uuid.UUID) (*cart.ProductSnapshot, error) {
	var row productRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cart.ProductSnapshot{
		ID:         row.ID,
		Price:      row.Price,
		SalePrice:  row.SalePrice,
		SaleActive: row.SaleActive,
		Active:     row.Active,
	}, nil
}

// GetVariant fetches a variant pricing snapshot
func (r *GormCatalogReader) GetVariant(ctx context.Context, id uuid.UUID) (*cart.VariantSnapshot, error) {
	var row variantRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cart.VariantSnapshot{
		ID:         row.ID,
		ProductID:  row.ProductID,
		Price:      row.Price,
		SalePrice:  row.SalePrice,
		SaleActive: row.SaleActive,
		Active:     row.Active,
	}, nil
}

// Ensure GormCatalogReader implements cart.CatalogReader
var _ cart.CatalogReader = (*GormCatalogReader)(nil)
