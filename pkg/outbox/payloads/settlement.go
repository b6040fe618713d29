package payloads

import (
	"time"

	"github.com/google/uuid"
)

// BuyerNotificationEvent asks the notifier worker to deliver a chat message.
type BuyerNotificationEvent struct {
	BuyerID int64  `json:"buyerId"`
	Text    string `json:"text"`
}

// OperatorAlertEvent is raised for failures that need human reconciliation.
type OperatorAlertEvent struct {
	PaymentID string `json:"paymentId"`
	BuyerID   int64  `json:"buyerId"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

// PurchaseFinalizedEvent records a completed purchase settlement.
type PurchaseFinalizedEvent struct {
	PaymentID      string    `json:"paymentId"`
	BuyerID        int64     `json:"buyerId"`
	ItemCount      int       `json:"itemCount"`
	TotalPaidCents int64     `json:"totalPaidCents"`
	FinalizedAt    time.Time `json:"finalizedAt"`
}

// BalanceCreditedEvent records a wallet top-up settlement.
type BalanceCreditedEvent struct {
	PaymentID     string `json:"paymentId"`
	BuyerID       int64  `json:"buyerId"`
	CreditedCents int64  `json:"creditedCents"`
}

// SettlementFailedEvent records a terminal non-paid settlement outcome.
type SettlementFailedEvent struct {
	PaymentID string `json:"paymentId"`
	BuyerID   int64  `json:"buyerId"`
	Status    string `json:"status"`
	Underpaid bool   `json:"underpaid"`
}

// PaymentIntentOpenedEvent records a newly opened external payment intent.
type PaymentIntentOpenedEvent struct {
	PaymentID         string `json:"paymentId"`
	BuyerID           int64  `json:"buyerId"`
	Asset             string `json:"asset"`
	TargetAmountCents int64  `json:"targetAmountCents"`
	IsPurchase        bool   `json:"isPurchase"`
}

// ReservationReleasedEvent records reserved stock returned to the pool.
type ReservationReleasedEvent struct {
	ProductUnitID uuid.UUID `json:"productUnitId"`
	BuyerID       int64     `json:"buyerId"`
	Reason        string    `json:"reason"`
}

// BasketExpiredEvent records entries swept after the reservation TTL.
type BasketExpiredEvent struct {
	BuyerID      int64     `json:"buyerId"`
	EntryID      uuid.UUID `json:"entryId"`
	ProductUnit  uuid.UUID `json:"productUnitId"`
	ReservedAt   time.Time `json:"reservedAt"`
	ReleasedAt   time.Time `json:"releasedAt"`
	TTLExceededS int64     `json:"ttlExceededSeconds"`
}
