package stock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// memoryPool is a mutex-guarded StockPool with the same swap semantics as the
// gorm pool.
type memoryPool struct {
	mu          sync.Mutex
	levels      map[poolID]Level
	history     []models.StockHistory
	beforeApply func(m Mutation)
}

func newMemoryPool() *memoryPool {
	return &memoryPool{levels: map[poolID]Level{}}
}

func (p *memoryPool) seed(key PoolKey, quantity int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels[key.id()] = Level{Key: key, Quantity: quantity, Status: enums.StockStatusActive, Exists: true}
}

func (p *memoryPool) quantity(key PoolKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levels[key.id()].Quantity
}

func (p *memoryPool) Read(ctx context.Context, key PoolKey) (Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	level, ok := p.levels[key.id()]
	if !ok {
		return Level{Key: key}, nil
	}
	return level, nil
}

func (p *memoryPool) Apply(ctx context.Context, m Mutation) (bool, error) {
	if p.beforeApply != nil {
		p.beforeApply(m)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	level, ok := p.levels[m.Key.id()]
	if !ok || level.Status != enums.StockStatusActive || level.Quantity != m.Previous {
		return false, nil
	}
	if m.Next < 0 {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "negative stock")
	}
	level.Quantity = m.Next
	p.levels[m.Key.id()] = level
	p.appendHistory(m)
	return true, nil
}

func (p *memoryPool) Create(ctx context.Context, m Mutation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.levels[m.Key.id()]; ok {
		return ErrPoolExists
	}
	p.levels[m.Key.id()] = Level{Key: m.Key, Quantity: m.Next, Status: enums.StockStatusActive, Exists: true}
	p.appendHistory(m)
	return nil
}

func (p *memoryPool) SetStatus(ctx context.Context, key PoolKey, status enums.StockStatus, entry Mutation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	level := p.levels[key.id()]
	level.Status = status
	p.levels[key.id()] = level
	p.appendHistory(entry)
	return nil
}

func (p *memoryPool) History(ctx context.Context, key PoolKey, limit int) ([]models.StockHistory, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var rows []models.StockHistory
	for i := len(p.history) - 1; i >= 0; i-- {
		row := p.history[i]
		if (PoolKey{ProductID: row.ProductID, VariantID: row.VariantID, LocationID: row.LocationID}).id() != key.id() {
			continue
		}
		rows = append(rows, row)
		if limit > 0 && len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (p *memoryPool) appendHistory(m Mutation) {
	row := m.history()
	row.ID = uuid.New()
	row.CreatedAt = time.Now()
	for _, prior := range p.history {
		if (PoolKey{ProductID: prior.ProductID, VariantID: prior.VariantID, LocationID: prior.LocationID}).id() == m.Key.id() {
			row.Seq = max(row.Seq, prior.Seq)
		}
	}
	row.Seq++
	p.history = append(p.history, row)
}

type fakeCatalog struct {
	products  map[uuid.UUID]*models.Product
	variants  map[uuid.UUID]*models.ProductVariant
	locations map[uuid.UUID]*models.Location
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products:  map[uuid.UUID]*models.Product{},
		variants:  map[uuid.UUID]*models.ProductVariant{},
		locations: map[uuid.UUID]*models.Location{},
	}
}

func (c *fakeCatalog) addProduct(name string, hasVariants bool) *models.Product {
	product := &models.Product{ID: uuid.New(), Name: name, SKU: name, HasVariants: hasVariants, IsActive: true}
	c.products[product.ID] = product
	return product
}

func (c *fakeCatalog) addVariant(product *models.Product, name string, active bool) *models.ProductVariant {
	variant := &models.ProductVariant{ID: uuid.New(), ProductID: product.ID, Name: name, IsActive: active}
	c.variants[variant.ID] = variant
	return variant
}

func (c *fakeCatalog) addLocation(code string, active bool) *models.Location {
	location := &models.Location{ID: uuid.New(), Code: code, Name: code, IsActive: active}
	c.locations[location.ID] = location
	return location
}

func (c *fakeCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if product, ok := c.products[id]; ok {
		return product, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func (c *fakeCatalog) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	if variant, ok := c.variants[variantID]; ok && variant.ProductID == productID && variant.IsActive {
		return variant, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found for product")
}

func (c *fakeCatalog) CountActiveVariants(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	for _, variant := range c.variants {
		if variant.ProductID == productID && variant.IsActive {
			count++
		}
	}
	return count, nil
}

func (c *fakeCatalog) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	if location, ok := c.locations[id]; ok && location.IsActive {
		return location, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeLocationNotFound, "location not found or inactive")
}
