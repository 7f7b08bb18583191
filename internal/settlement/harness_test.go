package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/procurement"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

var warehouse = audit.Admin("warehouse")

type harnessOptions struct {
	ledger          ledgerWriter
	noDefault       bool
	maxAttempts     int
	followUpWorkers int
}

type harness struct {
	db          *gorm.DB
	client      *dbpkg.Client
	catalog     catalog.Repository
	stock       stock.Service
	orders      orders.Service
	ledger      ledger.Service
	procurement procurement.Service
	tasks       TaskRepository
	outbox      *outbox.Repository
	runner      FollowUpRunner
	service     Service
	location    *models.Location
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	ctx := context.Background()

	client, err := dbpkg.New(ctx, config.DBConfig{
		Driver:       config.DriverSQLite,
		DSN:          "file:settlement_" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	db := client.DB()
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.ProductVariant{},
		&models.Location{},
		&models.Stock{},
		&models.LocationStock{},
		&models.StockHistory{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.FinancialTransaction{},
		&models.TaxConfiguration{},
		&models.ProcurementQueueItem{},
		&models.SettlementTask{},
		&models.OutboxEvent{},
	))
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX `+procurement.PendingIndex+` ON procurement_queue
		(product_id, COALESCE(variant_id, ''), location_id) WHERE status = 'pending'`).Error)

	h := &harness{db: db, client: client, catalog: catalog.NewRepository(db), tasks: NewTaskRepository(db)}
	if !opts.noDefault {
		h.location = &models.Location{Code: "CPT-WH", Name: "Cape Town warehouse", IsDefault: true}
		require.NoError(t, db.Create(h.location).Error)
	}

	logg := logger.Nop()
	h.outbox = outbox.NewRepository(db)
	emitter := outbox.NewEmitter(h.outbox, logg)

	h.stock, err = stock.NewService(stock.ServiceParams{Pool: stock.NewGormPool(db), Catalog: h.catalog, Logger: logg})
	require.NoError(t, err)
	h.orders, err = orders.NewService(orders.NewRepository(db), client, emitter, logg)
	require.NoError(t, err)
	ledgerRepo := ledger.NewRepository(db)
	rates := ledger.NewTaxConfigProvider(ledgerRepo, decimal.NewFromInt(100))
	h.ledger, err = ledger.NewService(ledgerRepo, rates)
	require.NoError(t, err)
	h.procurement, err = procurement.NewService(procurement.ServiceParams{
		Repo:    procurement.NewRepository(db),
		Tx:      client,
		Stock:   h.stock,
		Catalog: h.catalog,
		Outbox:  emitter,
		Logger:  logg,
	})
	require.NoError(t, err)

	var ledgerSvc ledgerWriter = h.ledger
	if opts.ledger != nil {
		ledgerSvc = opts.ledger
	}
	h.runner, err = NewFollowUpRunner(RunnerParams{
		Tasks:       h.tasks,
		Tx:          client,
		Orders:      h.orders,
		Ledger:      ledgerSvc,
		Rates:       rates,
		Catalog:     h.catalog,
		Procurement: h.procurement,
		Outbox:      emitter,
		Logger:      logg,
		MaxAttempts: opts.maxAttempts,
	})
	require.NoError(t, err)

	h.service, err = NewService(ServiceParams{
		Tx:                  client,
		Stock:               h.stock,
		Orders:              h.orders,
		Tasks:               h.tasks,
		Outbox:              emitter,
		Runner:              h.runner,
		Logger:              logg,
		FollowUpConcurrency: opts.followUpWorkers,
		Currency:            "zar",
	})
	require.NoError(t, err)
	return h
}

func (h *harness) product(t *testing.T, name string, mutate func(*models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{SKU: name, Name: name}
	if mutate != nil {
		mutate(product)
	}
	require.NoError(t, h.db.Create(product).Error)
	return product
}

func (h *harness) provision(t *testing.T, key stock.PoolKey, quantity int) {
	t.Helper()
	_, err := h.stock.Provision(context.Background(), key, quantity, warehouse)
	require.NoError(t, err)
}

func (h *harness) quantity(t *testing.T, key stock.PoolKey) int {
	t.Helper()
	level, err := h.stock.Get(context.Background(), key)
	require.NoError(t, err)
	return level.Quantity
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

func request(lines ...RequestItem) Request {
	req := Request{
		CustomerEmail: "buyer@example.com",
		Items:         lines,
		DeliveryInfo:  []byte(`{"address":"1 Long St"}`),
	}
	total := req.LineTotal()
	req.DeclaredTotal = &total
	return req
}

func line(productID uuid.UUID, qty int, price, cost string) RequestItem {
	return RequestItem{
		ProductID:         productID,
		Quantity:          qty,
		UnitPriceSnapshot: amount(price),
		UnitCostSnapshot:  amount(cost),
	}
}

func amount(value string) *decimal.Decimal {
	parsed := decimal.RequireFromString(value)
	return &parsed
}
