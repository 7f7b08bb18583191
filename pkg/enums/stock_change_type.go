package enums

import "fmt"

// StockChangeType classifies a stock_history row.
type StockChangeType string

const (
	StockChangeInitial    StockChangeType = "initial"
	StockChangeSale       StockChangeType = "sale"
	StockChangeRestock    StockChangeType = "restock"
	StockChangeAdjustment StockChangeType = "adjustment"
	StockChangeReturn     StockChangeType = "return"
)

var validStockChangeTypes = []StockChangeType{
	StockChangeInitial,
	StockChangeSale,
	StockChangeRestock,
	StockChangeAdjustment,
	StockChangeReturn,
}

// String implements fmt.Stringer.
func (c StockChangeType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known StockChangeType.
func (c StockChangeType) IsValid() bool {
	for _, candidate := range validStockChangeTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseStockChangeType converts raw input into a StockChangeType.
func ParseStockChangeType(value string) (StockChangeType, error) {
	for _, candidate := range validStockChangeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock change type %q", value)
}
