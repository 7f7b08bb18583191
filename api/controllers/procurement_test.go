package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubProcurement struct {
	listLocation *uuid.UUID
	lastOp       string
	lastQty      int
	lastPriority enums.ProcurementPriority
	lastActor    audit.Actor
	err          error
}

func (s *stubProcurement) item(id uuid.UUID, status enums.ProcurementStatus) *models.ProcurementQueueItem {
	return &models.ProcurementQueueItem{ID: id, ProductID: uuid.New(), LocationID: uuid.New(), QuantityNeeded: 4, Status: status, Priority: enums.ProcurementPriorityNormal}
}

func (s *stubProcurement) ListPending(_ context.Context, locationID *uuid.UUID) ([]models.ProcurementQueueItem, error) {
	s.listLocation = locationID
	return []models.ProcurementQueueItem{*s.item(uuid.New(), enums.ProcurementStatusPending)}, nil
}

func (s *stubProcurement) MarkOrdered(_ context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error) {
	s.lastOp, s.lastActor = "ordered", actor
	if s.err != nil {
		return nil, s.err
	}
	return s.item(id, enums.ProcurementStatusOrdered), nil
}

func (s *stubProcurement) MarkReceived(_ context.Context, id uuid.UUID, qty int, actor audit.Actor) (*models.ProcurementQueueItem, error) {
	s.lastOp, s.lastQty, s.lastActor = "received", qty, actor
	return s.item(id, enums.ProcurementStatusReceived), nil
}

func (s *stubProcurement) Cancel(_ context.Context, id uuid.UUID, actor audit.Actor) (*models.ProcurementQueueItem, error) {
	s.lastOp, s.lastActor = "cancel", actor
	return s.item(id, enums.ProcurementStatusCancelled), nil
}

func (s *stubProcurement) SetPriority(_ context.Context, id uuid.UUID, priority enums.ProcurementPriority, actor audit.Actor) (*models.ProcurementQueueItem, error) {
	s.lastOp, s.lastPriority, s.lastActor = "priority", priority, actor
	item := s.item(id, enums.ProcurementStatusPending)
	item.Priority = priority
	return item, nil
}

func TestAdminListProcurementFiltersByLocation(t *testing.T) {
	svc := &stubProcurement{}
	locationID := uuid.New()

	rec := httptest.NewRecorder()
	AdminListProcurement(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/?location_id="+locationID.String(), nil, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.listLocation == nil || *svc.listLocation != locationID {
		t.Fatalf("location filter not passed")
	}
	var items []ProcurementItemResponse
	decodeData(t, rec, &items)
	if len(items) != 1 || items[0].Status != enums.ProcurementStatusPending {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestAdminProcurementWorkflow(t *testing.T) {
	svc := &stubProcurement{}
	itemID := uuid.New()
	admin := audit.Admin("buyer-1")
	params := map[string]string{"itemId": itemID.String()}

	rec := httptest.NewRecorder()
	AdminMarkProcurementOrdered(svc, nil).ServeHTTP(rec, withActor(newRequest(http.MethodPost, "/", nil, params), admin))
	if rec.Code != http.StatusOK || svc.lastOp != "ordered" || svc.lastActor != admin {
		t.Fatalf("ordered: code=%d op=%s actor=%v", rec.Code, svc.lastOp, svc.lastActor)
	}

	rec = httptest.NewRecorder()
	AdminMarkProcurementReceived(svc, nil).ServeHTTP(rec, withActor(newRequest(http.MethodPost, "/", strings.NewReader(`{"received_quantity":4}`), params), admin))
	if rec.Code != http.StatusOK || svc.lastOp != "received" || svc.lastQty != 4 {
		t.Fatalf("received: code=%d op=%s qty=%d", rec.Code, svc.lastOp, svc.lastQty)
	}
	var got ProcurementItemResponse
	decodeData(t, rec, &got)
	if got.ID != itemID || got.Status != enums.ProcurementStatusReceived {
		t.Fatalf("unexpected payload %+v", got)
	}

	rec = httptest.NewRecorder()
	AdminCancelProcurement(svc, nil).ServeHTTP(rec, withActor(newRequest(http.MethodPost, "/", nil, params), admin))
	if rec.Code != http.StatusOK || svc.lastOp != "cancel" {
		t.Fatalf("cancel: code=%d op=%s", rec.Code, svc.lastOp)
	}

	rec = httptest.NewRecorder()
	AdminSetProcurementPriority(svc, nil).ServeHTTP(rec, withActor(newRequest(http.MethodPut, "/", strings.NewReader(`{"priority":"URGENT"}`), params), admin))
	if rec.Code != http.StatusOK || svc.lastPriority != enums.ProcurementPriorityUrgent {
		t.Fatalf("priority: code=%d priority=%s", rec.Code, svc.lastPriority)
	}
}

func TestAdminMarkProcurementReceivedValidatesQuantity(t *testing.T) {
	svc := &stubProcurement{}
	rec := httptest.NewRecorder()
	AdminMarkProcurementReceived(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", strings.NewReader(`{"received_quantity":0}`), map[string]string{"itemId": uuid.NewString()}))
	if rec.Code != http.StatusBadRequest || svc.lastOp != "" {
		t.Fatalf("expected 400 without service call, got %d op=%s", rec.Code, svc.lastOp)
	}
}

func TestAdminMarkProcurementOrderedTerminalItem(t *testing.T) {
	svc := &stubProcurement{err: pkgerrors.New(pkgerrors.CodeStateConflict, "procurement item is closed")}
	rec := httptest.NewRecorder()
	AdminMarkProcurementOrdered(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", nil, map[string]string{"itemId": uuid.NewString()}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestAdminSetProcurementPriorityRejectsUnknown(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminSetProcurementPriority(&stubProcurement{}, nil).ServeHTTP(rec, newRequest(http.MethodPut, "/", strings.NewReader(`{"priority":"whenever"}`), map[string]string{"itemId": uuid.NewString()}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
