package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PendingSettlement links an external payment intent to the buyer action it
// will complete. Deleted on any terminal outcome; its absence makes terminal
// webhook redelivery a no-op.
type PendingSettlement struct {
	PaymentID           string          `gorm:"column:payment_id;primaryKey"`
	BuyerID             int64           `gorm:"column:buyer_id;not null;index"`
	SettlementAsset     string          `gorm:"column:settlement_asset;not null"`
	TargetAmountCents   int64           `gorm:"column:target_amount_cents;not null"`
	ExpectedAssetAmount decimal.Decimal `gorm:"column:expected_asset_amount;type:numeric(30,12);not null"`
	IsPurchase          bool            `gorm:"column:is_purchase;not null"`
	BasketSnapshot      json.RawMessage `gorm:"column:basket_snapshot;type:jsonb"`
	DiscountCode        *string         `gorm:"column:discount_code"`
	OrderReference      string          `gorm:"column:order_reference;not null;uniqueIndex:ux_pending_settlements_order_ref"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
}
