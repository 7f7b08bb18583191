package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxReasonLength = 500

type stockAdmin interface {
	Provision(ctx context.Context, key stock.PoolKey, quantity int, actor audit.Actor) (*stock.Level, error)
	Restock(ctx context.Context, key stock.PoolKey, quantity int, reason string, actor audit.Actor) (*stock.Level, error)
	Adjust(ctx context.Context, key stock.PoolKey, delta int, reason string, actor audit.Actor) (*stock.Level, error)
	Archive(ctx context.Context, key stock.PoolKey, actor audit.Actor) error
	Get(ctx context.Context, key stock.PoolKey) (*stock.Level, error)
	History(ctx context.Context, key stock.PoolKey, limit int) ([]models.StockHistory, error)
}

// stockMutationRequest addresses a pool; location_id omitted means central stock.
type stockMutationRequest struct {
	ProductID  uuid.UUID  `json:"product_id" validate:"required"`
	VariantID  *uuid.UUID `json:"variant_id,omitempty"`
	LocationID *uuid.UUID `json:"location_id,omitempty"`
	Quantity   int        `json:"quantity"`
	Reason     string     `json:"reason,omitempty"`
}

func (b stockMutationRequest) key() stock.PoolKey {
	return stock.PoolKey{ProductID: b.ProductID, VariantID: b.VariantID, LocationID: b.LocationID}
}

type stockMutation func(ctx context.Context, svc stockAdmin, body stockMutationRequest, actor audit.Actor) (*stock.Level, error)

func stockMutationHandler(svc stockAdmin, logg *logger.Logger, status int, apply stockMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body stockMutationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.Reason = validators.SanitizeString(body.Reason, maxReasonLength)

		actor, _ := audit.FromContext(r.Context())
		level, err := apply(r.Context(), svc, body, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, level)
	}
}

// AdminProvisionStock creates a pool with its opening quantity.
func AdminProvisionStock(svc stockAdmin, logg *logger.Logger) http.HandlerFunc {
	return stockMutationHandler(svc, logg, http.StatusCreated, func(ctx context.Context, svc stockAdmin, body stockMutationRequest, actor audit.Actor) (*stock.Level, error) {
		return svc.Provision(ctx, body.key(), body.Quantity, actor)
	})
}

// AdminRestock adds received units to a pool.
func AdminRestock(svc stockAdmin, logg *logger.Logger) http.HandlerFunc {
	return stockMutationHandler(svc, logg, http.StatusOK, func(ctx context.Context, svc stockAdmin, body stockMutationRequest, actor audit.Actor) (*stock.Level, error) {
		return svc.Restock(ctx, body.key(), body.Quantity, body.Reason, actor)
	})
}

// AdminAdjustStock applies a signed correction; quantity carries the delta.
func AdminAdjustStock(svc stockAdmin, logg *logger.Logger) http.HandlerFunc {
	return stockMutationHandler(svc, logg, http.StatusOK, func(ctx context.Context, svc stockAdmin, body stockMutationRequest, actor audit.Actor) (*stock.Level, error) {
		if body.Reason == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required for adjustments")
		}
		return svc.Adjust(ctx, body.key(), body.Quantity, body.Reason, actor)
	})
}

// AdminArchiveStock retires a pool so it can no longer be sold from.
func AdminArchiveStock(svc stockAdmin, logg *logger.Logger) http.HandlerFunc {
	return stockMutationHandler(svc, logg, http.StatusOK, func(ctx context.Context, svc stockAdmin, body stockMutationRequest, actor audit.Actor) (*stock.Level, error) {
		if err := svc.Archive(ctx, body.key(), actor); err != nil {
			return nil, err
		}
		return svc.Get(ctx, body.key())
	})
}

func poolKeyFromQuery(r *http.Request) (stock.PoolKey, error) {
	productID, err := validators.ParseQueryUUID(r, "product_id")
	if err != nil {
		return stock.PoolKey{}, err
	}
	if productID == nil {
		return stock.PoolKey{}, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	variantID, err := validators.ParseQueryUUID(r, "variant_id")
	if err != nil {
		return stock.PoolKey{}, err
	}
	locationID, err := validators.ParseQueryUUID(r, "location_id")
	if err != nil {
		return stock.PoolKey{}, err
	}
	return stock.PoolKey{ProductID: *productID, VariantID: variantID, LocationID: locationID}, nil
}

// AdminStockLevel reads one pool.
func AdminStockLevel(svc stockAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := poolKeyFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		level, err := svc.Get(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, level)
	}
}

// AdminStockHistory returns the newest history rows for one pool.
func AdminStockHistory(svc stockAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := poolKeyFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.History(r.Context(), key, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newStockHistoryResponses(rows))
	}
}
