package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository manages persistence for financial transactions and tax rates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, txn *models.FinancialTransaction) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error)
	ActiveTaxConfiguration(ctx context.Context, at time.Time) (*models.TaxConfiguration, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert writes the transaction keyed by (order_id, transaction_type); a
// rerun overwrites the amounts instead of adding a second row. txn is
// reloaded so it carries the stored row's identity.
func (r *repository) Upsert(ctx context.Context, txn *models.FinancialTransaction) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}, {Name: "transaction_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"revenue_amount",
				"tax_amount",
				"cost_amount",
				"import_vat_amount",
				"corporate_tax_amount",
				"profit_before_tax",
				"net_profit_after_tax",
				"currency",
				"updated_at",
			}),
		}).
		Create(txn).Error
	if err != nil {
		return err
	}

	var stored models.FinancialTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND transaction_type = ?", txn.OrderID, txn.TransactionType).
		First(&stored).Error; err != nil {
		return err
	}
	*txn = stored
	return nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error) {
	var rows []models.FinancialTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ActiveTaxConfiguration(ctx context.Context, at time.Time) (*models.TaxConfiguration, error) {
	var row models.TaxConfiguration
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND effective_from <= ?", true, at).
		Order("effective_from DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
