package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PendingIndex is the partial unique index that allows one pending row per key.
const PendingIndex = "ux_procurement_queue_pending_key"

// Key identifies a replenishment worklist row.
type Key struct {
	ProductID  uuid.UUID
	VariantID  *uuid.UUID
	LocationID uuid.UUID
}

// Repository persists procurement queue rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	IncrementPending(ctx context.Context, key Key, quantity int, orderID *uuid.UUID, updatedBy string) (bool, error)
	Create(ctx context.Context, item *models.ProcurementQueueItem) error
	FindPending(ctx context.Context, key Key) (*models.ProcurementQueueItem, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProcurementQueueItem, error)
	ListPending(ctx context.Context, locationID *uuid.UUID) ([]models.ProcurementQueueItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ProcurementStatus, updates map[string]any) (bool, error)
	UpdatePriority(ctx context.Context, id uuid.UUID, priority enums.ProcurementPriority, updatedBy string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a procurement repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) scopeKey(key Key) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		q = q.Where("product_id = ? AND location_id = ?", key.ProductID, key.LocationID)
		return dbpkg.NullableUUID("variant_id", key.VariantID)(q)
	}
}

// IncrementPending adds quantity to the pending row for key in a single
// UPDATE and reports whether such a row existed.
func (r *repository) IncrementPending(ctx context.Context, key Key, quantity int, orderID *uuid.UUID, updatedBy string) (bool, error) {
	updates := map[string]any{
		"quantity_needed": gorm.Expr("quantity_needed + ?", quantity),
		"updated_by":      updatedBy,
		"updated_at":      time.Now().UTC(),
	}
	if orderID != nil {
		updates["last_order_id"] = *orderID
	}
	res := r.db.WithContext(ctx).
		Model(&models.ProcurementQueueItem{}).
		Scopes(r.scopeKey(key)).
		Where("status = ?", enums.ProcurementStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Create(ctx context.Context, item *models.ProcurementQueueItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindPending(ctx context.Context, key Key) (*models.ProcurementQueueItem, error) {
	var item models.ProcurementQueueItem
	err := r.db.WithContext(ctx).
		Scopes(r.scopeKey(key)).
		Where("status = ?", enums.ProcurementStatusPending).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProcurementQueueItem, error) {
	var item models.ProcurementQueueItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// ListPending returns the open worklist, most urgent first.
func (r *repository) ListPending(ctx context.Context, locationID *uuid.UUID) ([]models.ProcurementQueueItem, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", []enums.ProcurementStatus{enums.ProcurementStatusPending, enums.ProcurementStatusOrdered})
	if locationID != nil {
		query = query.Where("location_id = ?", *locationID)
	}
	var items []models.ProcurementQueueItem
	err := query.
		Order("CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END").
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ProcurementStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.ProcurementQueueItem{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdatePriority(ctx context.Context, id uuid.UUID, priority enums.ProcurementPriority, updatedBy string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProcurementQueueItem{}).
		Where("id = ? AND status IN ?", id, []enums.ProcurementStatus{enums.ProcurementStatusPending, enums.ProcurementStatusOrdered}).
		Updates(map[string]any{
			"priority":   priority,
			"updated_by": updatedBy,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
