package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/landedcost"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type landedCostService interface {
	Calculate(ctx context.Context, input landedcost.Input) (landedcost.CostBreakdown, error)
	SaveForProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, input landedcost.Input, actor audit.Actor) (*models.ProductCostBreakdown, error)
	GetForProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.ProductCostBreakdown, error)
	ListDutyRates(ctx context.Context) ([]models.CustomDutyRate, error)
	UpsertDutyRate(ctx context.Context, categoryCode string, rate decimal.Decimal, description *string) (*models.CustomDutyRate, error)
}

// AdminCalculateLandedCost runs the calculator without persisting anything.
func AdminCalculateLandedCost(svc landedCostService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input landedcost.Input
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		breakdown, err := svc.Calculate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, breakdown)
	}
}

// AdminGetCostBreakdown fetches the saved breakdown for a product, or for one
// of its variants when variant_id is supplied.
func AdminGetCostBreakdown(svc landedCostService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, variantID, err := productAndVariant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		breakdown, err := svc.GetForProduct(r.Context(), productID, variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCostBreakdownResponse(breakdown))
	}
}

// AdminPutCostBreakdown recalculates and stores a product's breakdown.
func AdminPutCostBreakdown(svc landedCostService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, variantID, err := productAndVariant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input landedcost.Input
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor, _ := audit.FromContext(r.Context())
		breakdown, err := svc.SaveForProduct(r.Context(), productID, variantID, input, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCostBreakdownResponse(breakdown))
	}
}

func productAndVariant(r *http.Request) (uuid.UUID, *uuid.UUID, error) {
	productID, err := uuidParam(r, "productId", "product id")
	if err != nil {
		return uuid.Nil, nil, err
	}
	variantID, err := validators.ParseQueryUUID(r, "variant_id")
	if err != nil {
		return uuid.Nil, nil, err
	}
	return productID, variantID, nil
}

// AdminListDutyRates lists every configured customs duty rate.
func AdminListDutyRates(svc landedCostService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rates, err := svc.ListDutyRates(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]DutyRateResponse, 0, len(rates))
		for _, rate := range rates {
			out = append(out, newDutyRateResponse(rate))
		}
		responses.WriteSuccess(w, out)
	}
}

type dutyRateRequest struct {
	CategoryCode string          `json:"category_code" validate:"required,max=64"`
	DutyRate     decimal.Decimal `json:"duty_rate"`
	Description  *string         `json:"description,omitempty"`
}

// AdminUpsertDutyRate creates or replaces the duty rate for a category.
func AdminUpsertDutyRate(svc landedCostService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body dutyRateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Description != nil {
			desc := validators.SanitizeString(*body.Description, 255)
			body.Description = &desc
		}

		rate, err := svc.UpsertDutyRate(r.Context(), strings.TrimSpace(body.CategoryCode), body.DutyRate, body.Description)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDutyRateResponse(*rate))
	}
}
