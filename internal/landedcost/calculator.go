package landedcost

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var (
	hundred = decimal.NewFromInt(100)

	DefaultImportVATRate    = decimal.NewFromInt(15)
	DefaultSalesVATRate     = decimal.NewFromInt(15)
	DefaultCorporateTaxRate = decimal.NewFromInt(27)
	DefaultProfitMargin     = decimal.NewFromInt(30)
)

// Input carries the cost drivers for one unit. Rates are percentages; nil
// rates fall back to the defaults above.
type Input struct {
	BaseCost                decimal.Decimal  `json:"base_cost"`
	CategoryCode            string           `json:"category_code,omitempty"`
	CustomDutyRate          *decimal.Decimal `json:"custom_duty_rate,omitempty"`
	ImportVATRate           *decimal.Decimal `json:"import_vat_rate,omitempty"`
	SalesVATRate            *decimal.Decimal `json:"sales_vat_rate,omitempty"`
	CorporateTaxRate        *decimal.Decimal `json:"corporate_tax_rate,omitempty"`
	DesiredProfitMargin     *decimal.Decimal `json:"desired_profit_margin,omitempty"`
	TransportCostPerUnit    decimal.Decimal  `json:"transport_cost_per_unit"`
	ShipmentTransportCost   decimal.Decimal  `json:"shipment_transport_cost"`
	TotalProductsInShipment int              `json:"total_products_in_shipment,omitempty"`
	ProductCostProportion   *decimal.Decimal `json:"product_cost_proportion,omitempty"`
}

// CostBreakdown is the full landed-cost result. Money fields are rounded to cents.
type CostBreakdown struct {
	BaseCost                      decimal.Decimal `json:"base_cost"`
	TransportCostPerUnit          decimal.Decimal `json:"transport_cost_per_unit"`
	TransportCostAllocatedPerUnit decimal.Decimal `json:"transport_cost_allocated_per_unit"`
	CustomDutyRate                decimal.Decimal `json:"custom_duty_rate"`
	CustomDutyAmount              decimal.Decimal `json:"custom_duty_amount"`
	ImportVATRate                 decimal.Decimal `json:"import_vat_rate"`
	ImportVATAmount               decimal.Decimal `json:"import_vat_amount"`
	TotalLandedCost               decimal.Decimal `json:"total_landed_cost"`
	EffectiveCost                 decimal.Decimal `json:"effective_cost"`
	DesiredProfitMargin           decimal.Decimal `json:"desired_profit_margin"`
	SuggestedSellingPrice         decimal.Decimal `json:"suggested_selling_price"`
	SalesVATRate                  decimal.Decimal `json:"sales_vat_rate"`
	SalesVATAmount                decimal.Decimal `json:"sales_vat_amount"`
	PriceIncludingVAT             decimal.Decimal `json:"price_including_vat"`
	GrossProfit                   decimal.Decimal `json:"gross_profit"`
	CorporateTaxRate              decimal.Decimal `json:"corporate_tax_rate"`
	CorporateTaxAmount            decimal.Decimal `json:"corporate_tax_amount"`
	NetProfit                     decimal.Decimal `json:"net_profit"`
}

// Calculate turns supplier cost, freight, duty and tax rates into a suggested
// selling price. It performs no I/O. Intermediate values keep full precision
// and are rounded to two places only in the returned breakdown.
func Calculate(input Input) (CostBreakdown, error) {
	rates, err := resolveRates(input)
	if err != nil {
		return CostBreakdown{}, err
	}

	shipmentSize := decimal.NewFromInt(int64(rates.totalProducts))
	allocated := input.ShipmentTransportCost.Mul(rates.proportion).Div(shipmentSize)
	duty := input.BaseCost.Mul(rates.duty).Div(hundred)
	importVAT := input.BaseCost.Add(duty).Mul(rates.importVAT).Div(hundred)
	landed := input.BaseCost.Add(duty).Add(importVAT).Add(input.TransportCostPerUnit).Add(allocated)
	effective := landed.Sub(importVAT)

	price := effective.Div(decimal.NewFromInt(1).Sub(rates.margin.Div(hundred)))
	salesVAT := price.Mul(rates.salesVAT).Div(hundred)
	gross := price.Sub(effective)
	corporate := decimal.Max(gross, decimal.Zero).Mul(rates.corporate).Div(hundred)

	return CostBreakdown{
		BaseCost:                      money(input.BaseCost),
		TransportCostPerUnit:          money(input.TransportCostPerUnit),
		TransportCostAllocatedPerUnit: money(allocated),
		CustomDutyRate:                rates.duty,
		CustomDutyAmount:              money(duty),
		ImportVATRate:                 rates.importVAT,
		ImportVATAmount:               money(importVAT),
		TotalLandedCost:               money(landed),
		EffectiveCost:                 money(effective),
		DesiredProfitMargin:           rates.margin,
		SuggestedSellingPrice:         money(price),
		SalesVATRate:                  rates.salesVAT,
		SalesVATAmount:                money(salesVAT),
		PriceIncludingVAT:             money(price.Add(salesVAT)),
		GrossProfit:                   money(gross),
		CorporateTaxRate:              rates.corporate,
		CorporateTaxAmount:            money(corporate),
		NetProfit:                     money(gross.Sub(corporate)),
	}, nil
}

type resolvedRates struct {
	duty          decimal.Decimal
	importVAT     decimal.Decimal
	salesVAT      decimal.Decimal
	corporate     decimal.Decimal
	margin        decimal.Decimal
	proportion    decimal.Decimal
	totalProducts int
}

func resolveRates(input Input) (resolvedRates, error) {
	if !input.BaseCost.IsPositive() {
		return resolvedRates{}, invalid("base_cost must be greater than zero", "base_cost")
	}
	if input.TransportCostPerUnit.IsNegative() {
		return resolvedRates{}, invalid("transport_cost_per_unit must not be negative", "transport_cost_per_unit")
	}
	if input.ShipmentTransportCost.IsNegative() {
		return resolvedRates{}, invalid("shipment_transport_cost must not be negative", "shipment_transport_cost")
	}

	rates := resolvedRates{
		duty:          orDefault(input.CustomDutyRate, decimal.Zero),
		importVAT:     orDefault(input.ImportVATRate, DefaultImportVATRate),
		salesVAT:      orDefault(input.SalesVATRate, DefaultSalesVATRate),
		corporate:     orDefault(input.CorporateTaxRate, DefaultCorporateTaxRate),
		margin:        orDefault(input.DesiredProfitMargin, DefaultProfitMargin),
		proportion:    orDefault(input.ProductCostProportion, decimal.NewFromInt(1)),
		totalProducts: input.TotalProductsInShipment,
	}
	if rates.totalProducts == 0 {
		rates.totalProducts = 1
	}

	for _, check := range []struct {
		field string
		rate  decimal.Decimal
	}{
		{"custom_duty_rate", rates.duty},
		{"import_vat_rate", rates.importVAT},
		{"sales_vat_rate", rates.salesVAT},
		{"corporate_tax_rate", rates.corporate},
	} {
		if check.rate.IsNegative() {
			return resolvedRates{}, invalid(check.field+" must not be negative", check.field)
		}
	}
	if rates.margin.IsNegative() || rates.margin.GreaterThanOrEqual(hundred) {
		return resolvedRates{}, invalid("desired_profit_margin must be in [0, 100)", "desired_profit_margin")
	}
	if rates.totalProducts < 1 {
		return resolvedRates{}, invalid("total_products_in_shipment must be at least 1", "total_products_in_shipment")
	}
	if rates.proportion.IsNegative() || rates.proportion.GreaterThan(decimal.NewFromInt(1)) {
		return resolvedRates{}, invalid("product_cost_proportion must be in [0, 1]", "product_cost_proportion")
	}
	return rates, nil
}

func orDefault(value *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if value == nil {
		return fallback
	}
	return *value
}

func money(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

func invalid(message, field string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).
		WithDetails(map[string]any{"field": field})
}
