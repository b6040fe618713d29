package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductUnit is one inventory row. A unit is purchasable iff
// available_qty > reserved_qty.
type ProductUnit struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Category     string    `gorm:"column:category;not null;index:idx_product_units_lookup"`
	Variant      string    `gorm:"column:variant;not null;index:idx_product_units_lookup"`
	Location     string    `gorm:"column:location;not null"`
	PriceCents   int64     `gorm:"column:price_cents;not null"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
