package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// FinancialTransaction captures the tax and profit cascade of one settled order.
type FinancialTransaction struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_financial_transactions_order_type"`
	TransactionType    enums.TransactionType `gorm:"column:transaction_type;type:varchar(16);not null;uniqueIndex:ux_financial_transactions_order_type"`
	RevenueAmount      decimal.Decimal       `gorm:"column:revenue_amount;type:numeric(18,4);not null"`
	TaxAmount          decimal.Decimal       `gorm:"column:tax_amount;type:numeric(18,4);not null"`
	CostAmount         decimal.Decimal       `gorm:"column:cost_amount;type:numeric(18,4);not null"`
	ImportVATAmount    decimal.Decimal       `gorm:"column:import_vat_amount;type:numeric(18,4);not null"`
	CorporateTaxAmount decimal.Decimal       `gorm:"column:corporate_tax_amount;type:numeric(18,4);not null"`
	ProfitBeforeTax    decimal.Decimal       `gorm:"column:profit_before_tax;type:numeric(18,4);not null"`
	NetProfitAfterTax  decimal.Decimal       `gorm:"column:net_profit_after_tax;type:numeric(18,4);not null"`
	Currency           string                `gorm:"column:currency;type:varchar(3);not null"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *FinancialTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TaxConfiguration holds the rates used by the financial ledger. Rates are percentages.
type TaxConfiguration struct {
	ID                      uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TaxRate                 decimal.Decimal `gorm:"column:tax_rate;type:numeric(7,4);not null"`
	TaxInclusive            bool            `gorm:"column:tax_inclusive;not null;default:false"`
	ImportVATRate           decimal.Decimal `gorm:"column:import_vat_rate;type:numeric(7,4);not null"`
	CorporateTaxRate        decimal.Decimal `gorm:"column:corporate_tax_rate;type:numeric(7,4);not null"`
	ImportVATReclaimPercent decimal.Decimal `gorm:"column:import_vat_reclaim_percent;type:numeric(7,4);not null"`
	IsActive                bool            `gorm:"column:is_active;not null;default:true"`
	EffectiveFrom           time.Time       `gorm:"column:effective_from;not null"`
	CreatedAt               time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (TaxConfiguration) TableName() string { return "tax_configuration" }

func (c *TaxConfiguration) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
