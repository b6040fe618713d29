package models

import "time"

// ResellerDiscount maps (buyer, category) to a per-item percentage applied at
// finalization time. Only buyers flagged as resellers receive it.
type ResellerDiscount struct {
	BuyerID    int64     `gorm:"column:buyer_id;primaryKey"`
	Category   string    `gorm:"column:category;primaryKey"`
	Percentage int       `gorm:"column:percentage;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
