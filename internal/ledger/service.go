package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// TaxConfigProvider resolves the rates in force for new transactions.
type TaxConfigProvider interface {
	GetActive(ctx context.Context) (TaxConfig, error)
}

type taxConfigProvider struct {
	repo    Repository
	reclaim decimal.Decimal
}

// NewTaxConfigProvider reads tax_configuration, falling back to the default
// rates with the given reclaim percent.
func NewTaxConfigProvider(repo Repository, reclaimPercent decimal.Decimal) TaxConfigProvider {
	return &taxConfigProvider{repo: repo, reclaim: reclaimPercent}
}

func (p *taxConfigProvider) GetActive(ctx context.Context) (TaxConfig, error) {
	row, err := p.repo.ActiveTaxConfiguration(ctx, time.Now().UTC())
	if err != nil {
		return TaxConfig{}, pkgerrors.Persistence(err, "load tax configuration")
	}
	if row == nil {
		return DefaultTaxConfig(p.reclaim), nil
	}
	return TaxConfig{
		TaxRate:          row.TaxRate,
		TaxInclusive:     row.TaxInclusive,
		ImportVATRate:    row.ImportVATRate,
		CorporateTaxRate: row.CorporateTaxRate,
		ReclaimPercent:   row.ImportVATReclaimPercent,
	}, nil
}

// Service records financial transactions for settled orders.
type Service interface {
	ComputeAndRecord(ctx context.Context, tx *gorm.DB, order *models.Order, cfg TaxConfig) (*models.FinancialTransaction, error)
	RecordSale(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.FinancialTransaction, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error)
}

type service struct {
	repo  Repository
	rates TaxConfigProvider
}

// NewService wires a ledger service with the provided repository and rates.
func NewService(repo Repository, rates TaxConfigProvider) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if rates == nil {
		return nil, fmt.Errorf("tax config provider required")
	}
	return &service{repo: repo, rates: rates}, nil
}

func (s *service) ComputeAndRecord(ctx context.Context, tx *gorm.DB, order *models.Order, cfg TaxConfig) (*models.FinancialTransaction, error) {
	if order == nil || order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	txn := Compute(order, cfg)
	if err := s.repo.WithTx(tx).Upsert(ctx, &txn); err != nil {
		return nil, pkgerrors.Persistence(err, "record financial transaction")
	}
	return &txn, nil
}

// RecordSale computes the sale transaction with the active rates.
func (s *service) RecordSale(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.FinancialTransaction, error) {
	cfg, err := s.rates.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.ComputeAndRecord(ctx, tx, order, cfg)
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error) {
	rows, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "list financial transactions")
	}
	return rows, nil
}
