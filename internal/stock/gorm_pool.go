package stock

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type gormPool struct {
	db *gorm.DB
}

// NewGormPool returns a StockPool over the stock and location_stock tables.
func NewGormPool(db *gorm.DB) StockPool {
	return &gormPool{db: db}
}

func tableFor(key PoolKey) string {
	if key.IsCentral() {
		return "stock"
	}
	return "location_stock"
}

func scopeKey(key PoolKey) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		q = dbpkg.NullableUUID("variant_id", key.VariantID)(q.Where("product_id = ?", key.ProductID))
		if !key.IsCentral() {
			q = q.Where("location_id = ?", *key.LocationID)
		}
		return q
	}
}

type levelRow struct {
	Quantity int
	Status   enums.StockStatus
}

func (p *gormPool) Read(ctx context.Context, key PoolKey) (Level, error) {
	var row levelRow
	err := p.db.WithContext(ctx).
		Table(tableFor(key)).
		Select("quantity, status").
		Scopes(scopeKey(key)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Level{Key: key}, nil
		}
		return Level{}, err
	}
	return Level{Key: key, Quantity: row.Quantity, Status: row.Status, Exists: true}, nil
}

func (p *gormPool) Apply(ctx context.Context, mutation Mutation) (bool, error) {
	swapped := false
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(tableFor(mutation.Key)).
			Scopes(scopeKey(mutation.Key)).
			Where("quantity = ? AND status = ?", mutation.Previous, enums.StockStatusActive).
			Updates(map[string]any{
				"quantity":   mutation.Next,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := appendHistory(tx, mutation); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (p *gormPool) Create(ctx context.Context, mutation Mutation) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table(tableFor(mutation.Key)).Scopes(scopeKey(mutation.Key)).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrPoolExists
		}

		key := mutation.Key
		var row any
		if key.IsCentral() {
			row = &models.Stock{ProductID: key.ProductID, VariantID: key.VariantID, Quantity: mutation.Next}
		} else {
			row = &models.LocationStock{LocationID: *key.LocationID, ProductID: key.ProductID, VariantID: key.VariantID, Quantity: mutation.Next}
		}
		if err := tx.Create(row).Error; err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return ErrPoolExists
			}
			return err
		}
		return appendHistory(tx, mutation)
	})
}

func (p *gormPool) SetStatus(ctx context.Context, key PoolKey, status enums.StockStatus, entry Mutation) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(tableFor(key)).
			Scopes(scopeKey(key)).
			Updates(map[string]any{
				"status":     status,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return appendHistory(tx, entry)
	})
}

// historyKey scopes stock_history to one pool; central rows carry a null location.
func historyKey(key PoolKey) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("product_id = ?", key.ProductID).
			Scopes(dbpkg.NullableUUID("variant_id", key.VariantID), dbpkg.NullableUUID("location_id", key.LocationID))
	}
}

// appendHistory writes the next numbered row for the mutation's key. It runs
// after the pool row was written in tx, so the row lock serializes writers
// of the same key.
func appendHistory(tx *gorm.DB, mutation Mutation) error {
	var last int64
	if err := tx.Model(&models.StockHistory{}).
		Scopes(historyKey(mutation.Key)).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error; err != nil {
		return err
	}
	entry := mutation.history()
	entry.Seq = last + 1
	return tx.Create(&entry).Error
}

func (p *gormPool) History(ctx context.Context, key PoolKey, limit int) ([]models.StockHistory, error) {
	q := p.db.WithContext(ctx).
		Scopes(historyKey(key)).
		Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.StockHistory
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
