package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type procurementAdmin interface {
	ListPending(ctx context.Context, locationID *uuid.UUID) ([]models.ProcurementQueueItem, error)
	MarkOrdered(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error)
	MarkReceived(ctx context.Context, id uuid.UUID, receivedQty int, actor audit.Actor) (*models.ProcurementQueueItem, error)
	Cancel(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error)
	SetPriority(ctx context.Context, id uuid.UUID, priority enums.ProcurementPriority, actor audit.Actor) (*models.ProcurementQueueItem, error)
}

// AdminListProcurement returns the pending worklist, optionally for one location.
func AdminListProcurement(svc procurementAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locationID, err := validators.ParseQueryUUID(r, "location_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListPending(r.Context(), locationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]ProcurementItemResponse, 0, len(items))
		for i := range items {
			out = append(out, newProcurementItemResponse(&items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type procurementAction func(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error)

func procurementActionHandler(logg *logger.Logger, action procurementAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuidParam(r, "itemId", "procurement item id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor, _ := audit.FromContext(r.Context())
		item, err := action(r.Context(), itemID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProcurementItemResponse(item))
	}
}

// AdminMarkProcurementOrdered records that a supplier order was placed.
func AdminMarkProcurementOrdered(svc procurementAdmin, logg *logger.Logger) http.HandlerFunc {
	return procurementActionHandler(logg, svc.MarkOrdered)
}

// AdminCancelProcurement drops an entry from the worklist.
func AdminCancelProcurement(svc procurementAdmin, logg *logger.Logger) http.HandlerFunc {
	return procurementActionHandler(logg, svc.Cancel)
}

type receivedRequest struct {
	ReceivedQuantity int `json:"received_quantity" validate:"min=1"`
}

// AdminMarkProcurementReceived restocks the location and closes the entry.
func AdminMarkProcurementReceived(svc procurementAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body receivedRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		procurementActionHandler(logg, func(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error) {
			return svc.MarkReceived(ctx, id, body.ReceivedQuantity, actor)
		}).ServeHTTP(w, r)
	}
}

type priorityRequest struct {
	Priority string `json:"priority" validate:"required"`
}

// AdminSetProcurementPriority changes how urgently an entry should be sourced.
func AdminSetProcurementPriority(svc procurementAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body priorityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		priority, err := enums.ParseProcurementPriority(strings.ToLower(strings.TrimSpace(body.Priority)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority"))
			return
		}
		procurementActionHandler(logg, func(ctx context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error) {
			return svc.SetPriority(ctx, id, priority, actor)
		}).ServeHTTP(w, r)
	}
}
