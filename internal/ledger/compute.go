package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// TaxConfig is the rate set applied to one order. Rates are percentages.
type TaxConfig struct {
	TaxRate          decimal.Decimal
	TaxInclusive     bool
	ImportVATRate    decimal.Decimal
	CorporateTaxRate decimal.Decimal
	ReclaimPercent   decimal.Decimal
}

// DefaultTaxConfig is used when no active tax_configuration row exists.
func DefaultTaxConfig(reclaimPercent decimal.Decimal) TaxConfig {
	return TaxConfig{
		TaxRate:          decimal.NewFromInt(15),
		ImportVATRate:    decimal.NewFromInt(15),
		CorporateTaxRate: decimal.NewFromInt(27),
		ReclaimPercent:   reclaimPercent,
	}
}

// Compute derives the sale transaction for an order. The base amounts are
// rounded to cents first and the profit figures are derived from the rounded
// values, so the stored row satisfies the profit equations exactly.
func Compute(order *models.Order, cfg TaxConfig) models.FinancialTransaction {
	total := cents(order.Total)

	var tax, revenue decimal.Decimal
	if cfg.TaxInclusive {
		tax = cents(total.Mul(cfg.TaxRate).Div(hundred.Add(cfg.TaxRate)))
		revenue = total.Sub(tax)
	} else {
		tax = cents(total.Mul(cfg.TaxRate).Div(hundred))
		revenue = total
	}

	rawCost := decimal.Zero
	for _, line := range order.LineItems {
		rawCost = rawCost.Add(line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	cost := cents(rawCost)
	importVAT := cents(rawCost.Mul(cfg.ImportVATRate).Div(hundred).Mul(cfg.ReclaimPercent).Div(hundred))

	profitBeforeTax := revenue.Sub(cost.Sub(importVAT)).Sub(tax)
	corporate := cents(decimal.Max(decimal.Zero, profitBeforeTax).Mul(cfg.CorporateTaxRate).Div(hundred))
	net := profitBeforeTax.Sub(corporate)

	return models.FinancialTransaction{
		OrderID:            order.ID,
		TransactionType:    enums.TransactionTypeSale,
		RevenueAmount:      revenue,
		TaxAmount:          tax,
		CostAmount:         cost,
		ImportVATAmount:    importVAT,
		CorporateTaxAmount: corporate,
		ProfitBeforeTax:    profitBeforeTax,
		NetProfitAfterTax:  net,
		Currency:           order.Currency,
	}
}

func cents(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}
