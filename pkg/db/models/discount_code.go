package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
)

// DiscountCode is a general basket-level discount. Usable iff active, not
// expired, and under its usage cap.
type DiscountCode struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code      string             `gorm:"column:code;not null;uniqueIndex:ux_discount_codes_code"`
	Type      enums.DiscountType `gorm:"column:type;type:discount_type;not null"`
	Value     int64              `gorm:"column:value;not null"`
	IsActive  bool               `gorm:"column:is_active;not null;default:true"`
	MaxUses   *int               `gorm:"column:max_uses"`
	UsesCount int                `gorm:"column:uses_count;not null;default:0"`
	ExpiryAt  *time.Time         `gorm:"column:expiry_at"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
