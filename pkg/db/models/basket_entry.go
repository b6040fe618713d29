package models

import (
	"time"

	"github.com/google/uuid"
)

// BasketEntry is the persisted mirror of a buyer's in-progress reservation.
// Each row corresponds to exactly one reserved_qty increment on its unit.
type BasketEntry struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID            int64     `gorm:"column:buyer_id;not null;index"`
	ProductUnitID      uuid.UUID `gorm:"column:product_unit_id;type:uuid;not null"`
	ReservedPriceCents int64     `gorm:"column:reserved_price_cents;not null"`
	ReservedAt         time.Time `gorm:"column:reserved_at;not null;index"`
}
