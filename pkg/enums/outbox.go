package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePendingSettlement OutboxAggregateType = "pending_settlement"
	AggregateBasket            OutboxAggregateType = "basket"
	AggregateBuyer             OutboxAggregateType = "buyer"
	AggregateProductUnit       OutboxAggregateType = "product_unit"
	AggregateNotification      OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePendingSettlement,
	AggregateBasket,
	AggregateBuyer,
	AggregateProductUnit,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPurchaseFinalized     OutboxEventType = "purchase_finalized"
	EventBalanceCredited       OutboxEventType = "balance_credited"
	EventSettlementUnderpaid   OutboxEventType = "settlement_underpaid"
	EventSettlementFailed      OutboxEventType = "settlement_failed"
	EventReservationReleased   OutboxEventType = "reservation_released"
	EventBasketExpired         OutboxEventType = "basket_expired"
	EventBuyerNotification     OutboxEventType = "buyer_notification_requested"
	EventOperatorAlert         OutboxEventType = "operator_alert"
	EventPaymentIntentOpened   OutboxEventType = "payment_intent_opened"
	EventCatalogInvalidated    OutboxEventType = "catalog_invalidated"
	EventDiscountUsageRecorded OutboxEventType = "discount_usage_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPurchaseFinalized,
	EventBalanceCredited,
	EventSettlementUnderpaid,
	EventSettlementFailed,
	EventReservationReleased,
	EventBasketExpired,
	EventBuyerNotification,
	EventOperatorAlert,
	EventPaymentIntentOpened,
	EventCatalogInvalidated,
	EventDiscountUsageRecorded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
