package stock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func setupStockTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	client, err := dbpkg.New(context.Background(), config.DBConfig{
		Driver:       config.DriverSQLite,
		DSN:          "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared",
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
	))
	return db
}

func TestGormPoolSeparatesCentralAndLocationStock(t *testing.T) {
	db := setupStockTestDB(t)
	pool := NewGormPool(db)
	ctx := context.Background()

	productID := uuid.New()
	locationID := uuid.New()
	central := PoolKey{ProductID: productID}
	franchise := PoolKey{ProductID: productID, LocationID: &locationID}

	require.NoError(t, pool.Create(ctx, Mutation{Key: central, Next: 10, ChangeType: enums.StockChangeInitial, Actor: testActor}))
	require.NoError(t, pool.Create(ctx, Mutation{Key: franchise, Next: 2, ChangeType: enums.StockChangeInitial, Actor: testActor}))
	assert.ErrorIs(t, pool.Create(ctx, Mutation{Key: central, Next: 1, ChangeType: enums.StockChangeInitial, Actor: testActor}), ErrPoolExists)

	level, err := pool.Read(ctx, central)
	require.NoError(t, err)
	assert.Equal(t, 10, level.Quantity)
	level, err = pool.Read(ctx, franchise)
	require.NoError(t, err)
	assert.Equal(t, 2, level.Quantity)

	var centralRows, locationRows int64
	require.NoError(t, db.Model(&models.Stock{}).Count(&centralRows).Error)
	require.NoError(t, db.Model(&models.LocationStock{}).Count(&locationRows).Error)
	assert.Equal(t, int64(1), centralRows)
	assert.Equal(t, int64(1), locationRows)
}

func TestGormPoolVariantKeysAreDistinct(t *testing.T) {
	db := setupStockTestDB(t)
	pool := NewGormPool(db)
	ctx := context.Background()

	productID := uuid.New()
	variantID := uuid.New()
	base := PoolKey{ProductID: productID}
	variant := PoolKey{ProductID: productID, VariantID: &variantID}

	require.NoError(t, pool.Create(ctx, Mutation{Key: variant, Next: 4, ChangeType: enums.StockChangeInitial, Actor: testActor}))

	level, err := pool.Read(ctx, base)
	require.NoError(t, err)
	assert.False(t, level.Exists, "variant row must not satisfy the product-level key")
	assert.Equal(t, 0, level.Available())

	level, err = pool.Read(ctx, variant)
	require.NoError(t, err)
	assert.True(t, level.Exists)
	assert.Equal(t, 4, level.Quantity)
}

func TestGormPoolApplyIsCompareAndSwap(t *testing.T) {
	db := setupStockTestDB(t)
	pool := NewGormPool(db)
	ctx := context.Background()
	key := PoolKey{ProductID: uuid.New()}
	orderID := uuid.New()

	require.NoError(t, pool.Create(ctx, Mutation{Key: key, Next: 5, ChangeType: enums.StockChangeInitial, Actor: testActor}))

	swapped, err := pool.Apply(ctx, Mutation{Key: key, Previous: 5, Next: 3, ChangeType: enums.StockChangeSale, OrderID: &orderID, Actor: testActor})
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = pool.Apply(ctx, Mutation{Key: key, Previous: 5, Next: 1, ChangeType: enums.StockChangeSale, OrderID: &orderID, Actor: testActor})
	require.NoError(t, err)
	assert.False(t, swapped, "stale previous quantity must lose")

	level, err := pool.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, level.Quantity)

	history, err := pool.History(ctx, key, 0)
	require.NoError(t, err)
	require.Len(t, history, 2, "the lost swap must not write history")
	assert.Equal(t, enums.StockChangeSale, history[0].ChangeType)
	assert.Equal(t, -2, history[0].QuantityChange)
}

func TestGormPoolRejectsNegativeQuantity(t *testing.T) {
	db := setupStockTestDB(t)
	pool := NewGormPool(db)
	ctx := context.Background()
	key := PoolKey{ProductID: uuid.New()}

	require.NoError(t, pool.Create(ctx, Mutation{Key: key, Next: 1, ChangeType: enums.StockChangeInitial, Actor: testActor}))

	_, err := pool.Apply(ctx, Mutation{Key: key, Previous: 1, Next: -1, ChangeType: enums.StockChangeSale, Actor: testActor})
	require.Error(t, err)

	level, err := pool.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, level.Quantity, "a rejected history row rolls back the counter")
}

func TestStockHistoryHookEnforcesArithmetic(t *testing.T) {
	db := setupStockTestDB(t)

	bad := models.StockHistory{
		ProductID:        uuid.New(),
		ChangeType:       enums.StockChangeSale,
		QuantityChange:   -1,
		PreviousQuantity: 5,
		NewQuantity:      3,
		CreatedBy:        testActor.String(),
	}
	require.Error(t, db.Create(&bad).Error)

	missingActor := models.StockHistory{
		ProductID:        uuid.New(),
		ChangeType:       enums.StockChangeRestock,
		QuantityChange:   2,
		PreviousQuantity: 0,
		NewQuantity:      2,
	}
	require.Error(t, db.Create(&missingActor).Error)
}

func TestServiceOverGormPool(t *testing.T) {
	db := setupStockTestDB(t)
	ctx := context.Background()

	product := models.Product{SKU: "MUG-1", Name: "Mug"}
	require.NoError(t, db.Create(&product).Error)
	location := models.Location{Code: "CPT", Name: "Cape Town", IsActive: true}
	require.NoError(t, db.Create(&location).Error)

	svc, err := NewService(ServiceParams{
		Pool:    NewGormPool(db),
		Catalog: catalog.NewRepository(db),
	})
	require.NoError(t, err)

	key := PoolKey{ProductID: product.ID, LocationID: &location.ID}
	_, err = svc.Provision(ctx, key, 1, testActor)
	require.NoError(t, err)

	_, err = svc.CheckAndReserve(ctx, []Item{{ProductID: product.ID, Quantity: 3}}, &location.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	_, err = svc.Restock(ctx, key, 4, "delivery", testActor)
	require.NoError(t, err)

	plan, err := svc.CheckAndReserve(ctx, []Item{{ProductID: product.ID, Quantity: 3}}, &location.ID)
	require.NoError(t, err)
	orderID := uuid.New()
	result := svc.Commit(ctx, plan, orderID, testActor)
	require.True(t, result.OK(), "commit: %v", result.Err())

	level, err := svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, level.Quantity)

	history, err := svc.History(ctx, key, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for _, row := range history {
		assert.Equal(t, row.PreviousQuantity+row.QuantityChange, row.NewQuantity)
		require.NotNil(t, row.LocationID)
		assert.Equal(t, location.ID, *row.LocationID)
	}
}

func TestGormPoolHistoryIsStrictlyOrderedPerKey(t *testing.T) {
	db := setupStockTestDB(t)
	pool := NewGormPool(db)
	ctx := context.Background()
	locationID := uuid.New()
	key := PoolKey{ProductID: uuid.New()}
	other := PoolKey{ProductID: key.ProductID, LocationID: &locationID}

	require.NoError(t, pool.Create(ctx, Mutation{Key: key, Next: 10, ChangeType: enums.StockChangeInitial, Actor: testActor}))
	require.NoError(t, pool.Create(ctx, Mutation{Key: other, Next: 4, ChangeType: enums.StockChangeInitial, Actor: testActor}))
	for qty := 10; qty > 4; qty-- {
		swapped, err := pool.Apply(ctx, Mutation{Key: key, Previous: qty, Next: qty - 1, ChangeType: enums.StockChangeSale, Actor: testActor})
		require.NoError(t, err)
		require.True(t, swapped)
	}

	history, err := pool.History(ctx, key, 0)
	require.NoError(t, err)
	require.Len(t, history, 7)
	for i, row := range history {
		assert.Equal(t, int64(len(history)-i), row.Seq)
		if i > 0 {
			assert.Equal(t, row.NewQuantity, history[i-1].PreviousQuantity, "row %d breaks the chain", i)
		}
	}

	branch, err := pool.History(ctx, other, 0)
	require.NoError(t, err)
	require.Len(t, branch, 1)
	assert.Equal(t, int64(1), branch[0].Seq)
}
