package models

import "time"

// Buyer tracks the chat-platform user and their wallet balance in the
// settlement currency's minor unit.
type Buyer struct {
	ID           int64     `gorm:"column:id;primaryKey"`
	Username     string    `gorm:"column:username"`
	BalanceCents int64     `gorm:"column:balance_cents;not null;default:0"`
	IsReseller   bool      `gorm:"column:is_reseller;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
