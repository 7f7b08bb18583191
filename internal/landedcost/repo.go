package landedcost

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists duty rates and saved cost breakdowns.
type Repository interface {
	FindDutyRate(ctx context.Context, categoryCode string) (*models.CustomDutyRate, error)
	ListDutyRates(ctx context.Context) ([]models.CustomDutyRate, error)
	UpsertDutyRate(ctx context.Context, rate *models.CustomDutyRate) error
	GetBreakdown(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.ProductCostBreakdown, error)
	UpsertBreakdown(ctx context.Context, breakdown *models.ProductCostBreakdown) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a landed cost repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindDutyRate(ctx context.Context, categoryCode string) (*models.CustomDutyRate, error) {
	var rate models.CustomDutyRate
	err := r.db.WithContext(ctx).Where("category_code = ?", categoryCode).First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rate, nil
}

func (r *repository) ListDutyRates(ctx context.Context) ([]models.CustomDutyRate, error) {
	var rates []models.CustomDutyRate
	if err := r.db.WithContext(ctx).Order("category_code ASC").Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repository) UpsertDutyRate(ctx context.Context, rate *models.CustomDutyRate) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "category_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"duty_rate", "description", "updated_at"}),
		}).
		Create(rate).Error
}

func (r *repository) GetBreakdown(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.ProductCostBreakdown, error) {
	var breakdown models.ProductCostBreakdown
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Scopes(dbpkg.NullableUUID("variant_id", variantID)).
		First(&breakdown).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &breakdown, nil
}

// UpsertBreakdown replaces the saved breakdown for the product and variant.
// variant_id is nullable, so the lookup runs in code rather than ON CONFLICT.
func (r *repository) UpsertBreakdown(ctx context.Context, breakdown *models.ProductCostBreakdown) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ProductCostBreakdown
		err := tx.Where("product_id = ?", breakdown.ProductID).
			Scopes(dbpkg.NullableUUID("variant_id", breakdown.VariantID)).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(breakdown).Error
		case err != nil:
			return err
		}
		breakdown.ID = existing.ID
		breakdown.CreatedAt = existing.CreatedAt
		breakdown.UpdatedAt = time.Now().UTC()
		return tx.Save(breakdown).Error
	})
}
