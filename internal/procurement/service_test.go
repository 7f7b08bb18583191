package procurement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

var buyer = audit.Admin("buyer-1")

type restockCall struct {
	key      stock.PoolKey
	quantity int
	actor    audit.Actor
}

type fakeRestocker struct {
	mu    sync.Mutex
	calls []restockCall
	err   error
}

func (f *fakeRestocker) Restock(ctx context.Context, key stock.PoolKey, quantity int, reason string, actor audit.Actor) (*stock.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, restockCall{key: key, quantity: quantity, actor: actor})
	return &stock.Level{Key: key, Quantity: 10 + quantity, Status: enums.StockStatusActive, Exists: true}, nil
}

type fakeCatalog struct {
	location *models.Location
}

func (f fakeCatalog) DefaultLocation(ctx context.Context) (*models.Location, error) {
	return f.location, nil
}

// missOnce reports the first pending increment as a miss, reproducing the
// window where a concurrent writer inserts the pending row first.
type missOnce struct {
	Repository
	missed *bool
}

func (m missOnce) WithTx(tx *gorm.DB) Repository {
	return missOnce{Repository: m.Repository.WithTx(tx), missed: m.missed}
}

func (m missOnce) IncrementPending(ctx context.Context, key Key, quantity int, orderID *uuid.UUID, updatedBy string) (bool, error) {
	if !*m.missed {
		*m.missed = true
		return false, nil
	}
	return m.Repository.IncrementPending(ctx, key, quantity, orderID, updatedBy)
}

type fixture struct {
	client  *dbpkg.Client
	repo    Repository
	stock   *fakeRestocker
	outbox  *outbox.Repository
	service Service
}

func newFixture(t *testing.T, mutate func(*ServiceParams)) fixture {
	t.Helper()

	client, err := dbpkg.New(context.Background(), config.DBConfig{
		Driver:       config.DriverSQLite,
		DSN:          "file:procurement_" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	db := client.DB()
	require.NoError(t, db.AutoMigrate(&models.ProcurementQueueItem{}, &models.OutboxEvent{}))
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX `+PendingIndex+` ON procurement_queue
		(product_id, COALESCE(variant_id, ''), location_id) WHERE status = 'pending'`).Error)

	outboxRepo := outbox.NewRepository(db)
	f := fixture{
		client: client,
		repo:   NewRepository(db),
		stock:  &fakeRestocker{},
		outbox: outboxRepo,
	}
	params := ServiceParams{
		Repo:    f.repo,
		Tx:      client,
		Stock:   f.stock,
		Catalog: fakeCatalog{},
		Outbox:  outbox.NewEmitter(outboxRepo, logger.Nop()),
		Logger:  logger.Nop(),
	}
	if mutate != nil {
		mutate(&params)
	}
	f.service, err = NewService(params)
	require.NoError(t, err)
	return f
}

func (f fixture) enqueue(t *testing.T, demand Demand) *models.ProcurementQueueItem {
	t.Helper()
	var item *models.ProcurementQueueItem
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		item, err = f.service.EnqueueDemand(context.Background(), tx, demand)
		return err
	})
	require.NoError(t, err)
	return item
}

func TestEnqueueDemandMergesPendingRow(t *testing.T) {
	f := newFixture(t, nil)
	productID, locationID := uuid.New(), uuid.New()
	firstOrder, secondOrder := uuid.New(), uuid.New()

	first := f.enqueue(t, Demand{ProductID: productID, LocationID: locationID, Quantity: 2, OrderID: &firstOrder})
	second := f.enqueue(t, Demand{ProductID: productID, LocationID: locationID, Quantity: 3, OrderID: &secondOrder})

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.QuantityNeeded)
	assert.Equal(t, enums.ProcurementStatusPending, second.Status)
	assert.Equal(t, enums.ProcurementPriorityNormal, second.Priority)
	require.NotNil(t, second.LastOrderID)
	assert.Equal(t, secondOrder, *second.LastOrderID)
	assert.Equal(t, "service:settlement", second.UpdatedBy)

	variantID := uuid.New()
	variant := f.enqueue(t, Demand{ProductID: productID, VariantID: &variantID, LocationID: locationID, Quantity: 1})
	assert.NotEqual(t, first.ID, variant.ID)
	assert.Equal(t, 1, variant.QuantityNeeded)
}

func TestEnqueueDemandRetriesIncrementAfterLostInsert(t *testing.T) {
	f := newFixture(t, nil)
	productID, locationID := uuid.New(), uuid.New()
	existing := f.enqueue(t, Demand{ProductID: productID, LocationID: locationID, Quantity: 4})

	missed := false
	racing, err := NewService(ServiceParams{
		Repo:    missOnce{Repository: f.repo, missed: &missed},
		Tx:      f.client,
		Stock:   f.stock,
		Catalog: fakeCatalog{},
		Outbox:  outbox.NewEmitter(f.outbox, logger.Nop()),
	})
	require.NoError(t, err)

	var merged *models.ProcurementQueueItem
	err = f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		merged, err = racing.EnqueueDemand(context.Background(), tx, Demand{ProductID: productID, LocationID: locationID, Quantity: 6})
		return err
	})
	require.NoError(t, err)
	assert.True(t, missed)
	assert.Equal(t, existing.ID, merged.ID)
	assert.Equal(t, 10, merged.QuantityNeeded)

	var count int64
	require.NoError(t, f.client.DB().Model(&models.ProcurementQueueItem{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnqueueDemandOpensNewRowOnceOrdered(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	productID, locationID := uuid.New(), uuid.New()

	first := f.enqueue(t, Demand{ProductID: productID, LocationID: locationID, Quantity: 2})
	_, err := f.service.MarkOrdered(ctx, first.ID, buyer)
	require.NoError(t, err)

	next := f.enqueue(t, Demand{ProductID: productID, LocationID: locationID, Quantity: 1})
	assert.NotEqual(t, first.ID, next.ID)
	assert.Equal(t, 1, next.QuantityNeeded)
}

func TestEnqueueDemandValidation(t *testing.T) {
	f := newFixture(t, nil)
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := f.service.EnqueueDemand(context.Background(), tx, Demand{ProductID: uuid.New(), LocationID: uuid.New()})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResolveLocationPrecedence(t *testing.T) {
	ctx := context.Background()
	own, configured, fallback := uuid.New(), uuid.New(), uuid.New()

	f := newFixture(t, func(p *ServiceParams) {
		p.DefaultLocation = &configured
		p.Catalog = fakeCatalog{location: &models.Location{ID: fallback}}
	})
	got, err := f.service.ResolveLocation(ctx, &models.Product{LocationID: &own})
	require.NoError(t, err)
	assert.Equal(t, own, *got)

	got, err = f.service.ResolveLocation(ctx, &models.Product{})
	require.NoError(t, err)
	assert.Equal(t, configured, *got)

	f = newFixture(t, func(p *ServiceParams) {
		p.Catalog = fakeCatalog{location: &models.Location{ID: fallback}}
	})
	got, err = f.service.ResolveLocation(ctx, &models.Product{})
	require.NoError(t, err)
	assert.Equal(t, fallback, *got)

	f = newFixture(t, nil)
	got, err = f.service.ResolveLocation(ctx, &models.Product{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkReceivedRestocksLocationPool(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	variantID, locationID := uuid.New(), uuid.New()
	item := f.enqueue(t, Demand{ProductID: uuid.New(), VariantID: &variantID, LocationID: locationID, Quantity: 3})

	received, err := f.service.MarkReceived(ctx, item.ID, 5, buyer)
	require.NoError(t, err)
	assert.Equal(t, enums.ProcurementStatusReceived, received.Status)
	assert.NotNil(t, received.ReceivedAt)
	assert.Equal(t, "admin:buyer-1", received.UpdatedBy)

	require.Len(t, f.stock.calls, 1)
	call := f.stock.calls[0]
	assert.Equal(t, 5, call.quantity)
	assert.Equal(t, buyer, call.actor)
	require.NotNil(t, call.key.LocationID)
	assert.Equal(t, locationID, *call.key.LocationID)
	assert.Equal(t, &variantID, call.key.VariantID)

	events, err := f.outbox.ListByAggregate(nil, string(enums.AggregateProcurementItem), item.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventProcurementItemReceived, events[0].EventType)

	_, err = f.service.MarkReceived(ctx, item.ID, 5, buyer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Len(t, f.stock.calls, 1)
}

func TestMarkReceivedRevertsClaimWhenRestockFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	item := f.enqueue(t, Demand{ProductID: uuid.New(), LocationID: uuid.New(), Quantity: 3})
	_, err := f.service.MarkOrdered(ctx, item.ID, buyer)
	require.NoError(t, err)

	f.stock.err = errors.New("pool unavailable")
	_, err = f.service.MarkReceived(ctx, item.ID, 3, buyer)
	require.Error(t, err)

	reloaded, err := f.repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProcurementStatusOrdered, reloaded.Status)
	assert.Nil(t, reloaded.ReceivedAt)
}

func TestCancelAndPriorityRespectTerminalStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	locationID := uuid.New()
	low := f.enqueue(t, Demand{ProductID: uuid.New(), LocationID: locationID, Quantity: 1})
	urgent := f.enqueue(t, Demand{ProductID: uuid.New(), LocationID: locationID, Quantity: 1})
	other := f.enqueue(t, Demand{ProductID: uuid.New(), LocationID: uuid.New(), Quantity: 1})

	_, err := f.service.SetPriority(ctx, urgent.ID, enums.ProcurementPriorityUrgent, buyer)
	require.NoError(t, err)
	_, err = f.service.SetPriority(ctx, low.ID, enums.ProcurementPriority("whenever"), buyer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	items, err := f.service.ListPending(ctx, &locationID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, urgent.ID, items[0].ID)
	assert.Equal(t, low.ID, items[1].ID)

	all, err := f.service.ListPending(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cancelled, err := f.service.Cancel(ctx, other.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, enums.ProcurementStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = f.service.SetPriority(ctx, other.ID, enums.ProcurementPriorityHigh, buyer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.service.MarkOrdered(ctx, other.ID, buyer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.service.Cancel(ctx, uuid.New(), buyer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
