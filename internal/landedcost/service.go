package landedcost

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type productLookup interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
}

// Service exposes the calculator to admin tooling along with duty rate and
// saved breakdown management.
type Service interface {
	Calculate(ctx context.Context, input Input) (CostBreakdown, error)
	SaveForProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, input Input, actor audit.Actor) (*models.ProductCostBreakdown, error)
	GetForProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.ProductCostBreakdown, error)
	ListDutyRates(ctx context.Context) ([]models.CustomDutyRate, error)
	UpsertDutyRate(ctx context.Context, categoryCode string, rate decimal.Decimal, description *string) (*models.CustomDutyRate, error)
}

type service struct {
	repo    Repository
	catalog productLookup
}

// NewService wires the landed cost service.
func NewService(repo Repository, catalog productLookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("landed cost repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	return &service{repo: repo, catalog: catalog}, nil
}

func (s *service) Calculate(ctx context.Context, input Input) (CostBreakdown, error) {
	resolved, err := s.resolveDutyRate(ctx, input)
	if err != nil {
		return CostBreakdown{}, err
	}
	return Calculate(resolved)
}

// resolveDutyRate fills CustomDutyRate from the category table when the
// caller named a category but no explicit rate.
func (s *service) resolveDutyRate(ctx context.Context, input Input) (Input, error) {
	code := strings.TrimSpace(input.CategoryCode)
	if input.CustomDutyRate != nil || code == "" {
		return input, nil
	}
	rate, err := s.repo.FindDutyRate(ctx, code)
	if err != nil {
		return input, pkgerrors.Persistence(err, "load duty rate")
	}
	if rate == nil {
		return input, pkgerrors.New(pkgerrors.CodeNotFound, "no duty rate for category").
			WithDetails(map[string]any{"category_code": code})
	}
	dutyRate := rate.DutyRate
	input.CustomDutyRate = &dutyRate
	return input, nil
}

func (s *service) SaveForProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, input Input, actor audit.Actor) (*models.ProductCostBreakdown, error) {
	if err := actor.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "actor is required")
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if variantID != nil {
		if _, err := s.catalog.GetVariant(ctx, productID, *variantID); err != nil {
			return nil, err
		}
	}
	if input.CustomDutyRate == nil && strings.TrimSpace(input.CategoryCode) == "" && product.CategoryCode != nil {
		input.CategoryCode = *product.CategoryCode
	}

	result, err := s.Calculate(ctx, input)
	if err != nil {
		return nil, err
	}

	row := &models.ProductCostBreakdown{
		ProductID:                     productID,
		VariantID:                     variantID,
		BaseCost:                      result.BaseCost,
		TransportCostPerUnit:          result.TransportCostPerUnit,
		TransportCostAllocatedPerUnit: result.TransportCostAllocatedPerUnit,
		CustomDutyRate:                result.CustomDutyRate,
		CustomDutyAmount:              result.CustomDutyAmount,
		ImportVATRate:                 result.ImportVATRate,
		ImportVATAmount:               result.ImportVATAmount,
		TotalLandedCost:               result.TotalLandedCost,
		EffectiveCost:                 result.EffectiveCost,
		DesiredProfitMargin:           result.DesiredProfitMargin,
		SalesVATRate:                  result.SalesVATRate,
		SuggestedSellingPrice:         result.SuggestedSellingPrice,
		PriceIncludingVAT:             result.PriceIncludingVAT,
		CreatedBy:                     actor.String(),
	}
	if err := s.repo.UpsertBreakdown(ctx, row); err != nil {
		return nil, pkgerrors.Persistence(err, "save cost breakdown")
	}
	return row, nil
}

func (s *service) GetForProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.ProductCostBreakdown, error) {
	row, err := s.repo.GetBreakdown(ctx, productID, variantID)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "load cost breakdown")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cost breakdown not found").
			WithDetails(map[string]any{"product_id": productID, "variant_id": variantID})
	}
	return row, nil
}

func (s *service) ListDutyRates(ctx context.Context) ([]models.CustomDutyRate, error) {
	rates, err := s.repo.ListDutyRates(ctx)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "list duty rates")
	}
	return rates, nil
}

func (s *service) UpsertDutyRate(ctx context.Context, categoryCode string, rate decimal.Decimal, description *string) (*models.CustomDutyRate, error) {
	code := strings.TrimSpace(categoryCode)
	if code == "" {
		return nil, invalid("category_code is required", "category_code")
	}
	if rate.IsNegative() {
		return nil, invalid("duty_rate must not be negative", "duty_rate")
	}
	row := &models.CustomDutyRate{
		CategoryCode: code,
		DutyRate:     rate,
		Description:  description,
	}
	if err := s.repo.UpsertDutyRate(ctx, row); err != nil {
		return nil, pkgerrors.Persistence(err, "upsert duty rate")
	}
	stored, err := s.repo.FindDutyRate(ctx, code)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "reload duty rate")
	}
	return stored, nil
}
