package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ovasilenko/chatmarket-backend/pkg/config"
	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	topic := cfg.NotificationTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventBuyerNotification,
			AggregateType:  enums.AggregateNotification,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.BuyerNotificationEvent{} },
		},
		{
			EventType:      enums.EventOperatorAlert,
			AggregateType:  enums.AggregatePendingSettlement,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.OperatorAlertEvent{} },
		},
		{
			EventType:      enums.EventPurchaseFinalized,
			AggregateType:  enums.AggregatePendingSettlement,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.PurchaseFinalizedEvent{} },
		},
		{
			EventType:      enums.EventBalanceCredited,
			AggregateType:  enums.AggregateBuyer,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.BalanceCreditedEvent{} },
		},
		{
			EventType:      enums.EventSettlementUnderpaid,
			AggregateType:  enums.AggregatePendingSettlement,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.SettlementFailedEvent{} },
		},
		{
			EventType:      enums.EventSettlementFailed,
			AggregateType:  enums.AggregatePendingSettlement,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.SettlementFailedEvent{} },
		},
		{
			EventType:      enums.EventPaymentIntentOpened,
			AggregateType:  enums.AggregatePendingSettlement,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.PaymentIntentOpenedEvent{} },
		},
		{
			EventType:      enums.EventReservationReleased,
			AggregateType:  enums.AggregateProductUnit,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.ReservationReleasedEvent{} },
		},
		{
			EventType:      enums.EventBasketExpired,
			AggregateType:  enums.AggregateBasket,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.BasketExpiredEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	r.entries[desc.EventType] = desc
}

// Resolve decodes an outbox row into its typed payload and target topic.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NonRetryableError{Err: fmt.Errorf("no descriptor registered for event type %q", event.EventType)}
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NonRetryableError{Err: fmt.Errorf(
			"aggregate mismatch for %s: row has %q, descriptor expects %q",
			event.EventType, event.AggregateType, desc.AggregateType,
		)}
	}

	var envelope outbox.PayloadEnvelope
	decoder := json.NewDecoder(bytes.NewReader(event.Payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&envelope); err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode envelope: %w", err)}
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode payload for %s: %w", event.EventType, err)}
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
