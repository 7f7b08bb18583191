package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stockCall struct {
	op     string
	key    stock.PoolKey
	qty    int
	reason string
	actor  audit.Actor
}

type stubStock struct {
	calls   []stockCall
	history []models.StockHistory
	err     error
}

func (s *stubStock) level(key stock.PoolKey, qty int) *stock.Level {
	return &stock.Level{Key: key, Quantity: qty, Status: enums.StockStatusActive, Exists: true}
}

func (s *stubStock) Provision(_ context.Context, key stock.PoolKey, quantity int, actor audit.Actor) (*stock.Level, error) {
	s.calls = append(s.calls, stockCall{op: "provision", key: key, qty: quantity, actor: actor})
	return s.level(key, quantity), s.err
}

func (s *stubStock) Restock(_ context.Context, key stock.PoolKey, quantity int, reason string, actor audit.Actor) (*stock.Level, error) {
	s.calls = append(s.calls, stockCall{op: "restock", key: key, qty: quantity, reason: reason, actor: actor})
	if s.err != nil {
		return nil, s.err
	}
	return s.level(key, 10+quantity), nil
}

func (s *stubStock) Adjust(_ context.Context, key stock.PoolKey, delta int, reason string, actor audit.Actor) (*stock.Level, error) {
	s.calls = append(s.calls, stockCall{op: "adjust", key: key, qty: delta, reason: reason, actor: actor})
	return s.level(key, 10+delta), s.err
}

func (s *stubStock) Archive(_ context.Context, key stock.PoolKey, actor audit.Actor) error {
	s.calls = append(s.calls, stockCall{op: "archive", key: key, actor: actor})
	return s.err
}

func (s *stubStock) Get(_ context.Context, key stock.PoolKey) (*stock.Level, error) {
	return s.level(key, 10), nil
}

func (s *stubStock) History(_ context.Context, key stock.PoolKey, limit int) ([]models.StockHistory, error) {
	s.calls = append(s.calls, stockCall{op: "history", key: key, qty: limit})
	return s.history, nil
}

func TestAdminProvisionStockCentral(t *testing.T) {
	svc := &stubStock{}
	productID := uuid.New()
	admin := audit.Admin("ops")

	req := withActor(newRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"`+productID.String()+`","quantity":12}`), nil), admin)
	rec := httptest.NewRecorder()
	AdminProvisionStock(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(svc.calls))
	}
	call := svc.calls[0]
	if call.op != "provision" || call.key.ProductID != productID || !call.key.IsCentral() || call.qty != 12 || call.actor != admin {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestAdminRestockLocation(t *testing.T) {
	svc := &stubStock{}
	locationID := uuid.New()
	body := `{"product_id":"` + uuid.NewString() + `","location_id":"` + locationID.String() + `","quantity":5,"reason":"  supplier delivery  "}`

	rec := httptest.NewRecorder()
	AdminRestock(svc, nil).ServeHTTP(rec, withActor(newRequest(http.MethodPost, "/", strings.NewReader(body), nil), audit.Admin("ops")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	call := svc.calls[0]
	if call.key.LocationID == nil || *call.key.LocationID != locationID || call.reason != "supplier delivery" {
		t.Fatalf("unexpected call %+v", call)
	}
	var level stock.Level
	decodeData(t, rec, &level)
	if level.Quantity != 15 {
		t.Fatalf("unexpected level %+v", level)
	}
}

func TestAdminRestockArchivedPool(t *testing.T) {
	svc := &stubStock{err: pkgerrors.New(pkgerrors.CodeStateConflict, "stock pool is archived")}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":5}`

	rec := httptest.NewRecorder()
	AdminRestock(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", strings.NewReader(body), nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestAdminAdjustStockRequiresReason(t *testing.T) {
	svc := &stubStock{}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":-2}`

	rec := httptest.NewRecorder()
	AdminAdjustStock(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", strings.NewReader(body), nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestAdminAdjustStockAppliesDelta(t *testing.T) {
	svc := &stubStock{}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":-2,"reason":"breakage"}`

	rec := httptest.NewRecorder()
	AdminAdjustStock(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", strings.NewReader(body), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.calls[0].qty != -2 || svc.calls[0].reason != "breakage" {
		t.Fatalf("unexpected call %+v", svc.calls[0])
	}
}

func TestAdminArchiveStock(t *testing.T) {
	svc := &stubStock{}
	rec := httptest.NewRecorder()
	AdminArchiveStock(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"`+uuid.NewString()+`"}`), nil))
	if rec.Code != http.StatusOK || svc.calls[0].op != "archive" {
		t.Fatalf("unexpected result %d %+v", rec.Code, svc.calls)
	}
}

func TestAdminStockHistory(t *testing.T) {
	productID := uuid.New()
	svc := &stubStock{history: []models.StockHistory{{
		ID:               uuid.New(),
		ProductID:        productID,
		ChangeType:       enums.StockChangeSale,
		QuantityChange:   -2,
		PreviousQuantity: 5,
		NewQuantity:      3,
		CreatedBy:        "customer:c-1",
	}}}

	rec := httptest.NewRecorder()
	AdminStockHistory(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/?product_id="+productID.String()+"&limit=10", nil, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.calls[0].qty != 10 || svc.calls[0].key.ProductID != productID {
		t.Fatalf("unexpected call %+v", svc.calls[0])
	}
	var rows []StockHistoryResponse
	decodeData(t, rec, &rows)
	if len(rows) != 1 || rows[0].NewQuantity != 3 || rows[0].ChangeType != enums.StockChangeSale {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestAdminStockHistoryRequiresProduct(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminStockHistory(&stubStock{}, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/", nil, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
