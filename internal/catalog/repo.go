package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Repository is the read-only view of products, variants and locations used
// by settlement, landed cost and procurement.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	CountActiveVariants(ctx context.Context, productID uuid.UUID) (int64, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	DefaultLocation(ctx context.Context) (*models.Location, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": id})
		}
		return nil, pkgerrors.Persistence(err, "load product")
	}
	return &product, nil
}

// GetVariant returns an active variant that belongs to productID.
func (r *repository) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ? AND is_active = ?", variantID, productID, true).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found for product").
				WithDetails(map[string]any{"product_id": productID, "variant_id": variantID})
		}
		return nil, pkgerrors.Persistence(err, "load variant")
	}
	return &variant, nil
}

func (r *repository) CountActiveVariants(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("product_id = ? AND is_active = ?", productID, true).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Persistence(err, "count variants")
	}
	return count, nil
}

// GetLocation returns an active location or LOCATION_NOT_FOUND.
func (r *repository) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	var location models.Location
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&location).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeLocationNotFound, "location not found or inactive").
				WithDetails(map[string]any{"location_id": id})
		}
		return nil, pkgerrors.Persistence(err, "load location")
	}
	return &location, nil
}

// DefaultLocation returns the catalog's default location, or nil when none is flagged.
func (r *repository) DefaultLocation(ctx context.Context) (*models.Location, error) {
	var location models.Location
	err := r.db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		Order("created_at ASC").
		First(&location).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Persistence(err, "load default location")
	}
	return &location, nil
}
