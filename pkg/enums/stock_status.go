package enums

// StockStatus is the soft state of a stock row; rows are never hard-deleted.
type StockStatus string

const (
	StockStatusActive   StockStatus = "active"
	StockStatusArchived StockStatus = "archived"
)

// IsValid reports whether the value is a known StockStatus.
func (s StockStatus) IsValid() bool {
	return s == StockStatusActive || s == StockStatusArchived
}
