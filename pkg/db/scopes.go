package db

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NullableUUID matches column against value, treating nil as IS NULL. Plain
// equality never matches NULL, so optional key columns go through here.
func NullableUUID(column string, value *uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if value == nil {
			return q.Where(column + " IS NULL")
		}
		return q.Where(column+" = ?", *value)
	}
}
