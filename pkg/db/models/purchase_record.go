package models

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseRecord is the immutable audit row written once per finalized item.
type PurchaseRecord struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID        int64     `gorm:"column:buyer_id;not null;index"`
	ProductName    string    `gorm:"column:product_name;not null"`
	Category       string    `gorm:"column:category;not null"`
	Variant        string    `gorm:"column:variant;not null"`
	PricePaidCents int64     `gorm:"column:price_paid_cents;not null"`
	Location       string    `gorm:"column:location;not null"`
	PurchasedAt    time.Time `gorm:"column:purchased_at;not null"`
}
