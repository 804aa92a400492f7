package models

import "time"

// InvoiceSequence is the per-year counter row backing gapless invoice numbers.
// NextValue is only ever advanced atomically inside the allocation statement.
type InvoiceSequence struct {
	Year      int       `gorm:"column:year;primaryKey"`
	NextValue int64     `gorm:"column:next_value;not null;default:1"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
