package notify

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/ovasilenko/chatmarket-backend/internal/chat"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox/idempotency"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox/payloads"
)

const notificationConsumer = "chat-notifications"

// Consumer delivers buyer notifications and operator alerts from the
// notification topic to the chat platform.
type Consumer struct {
	sender         chat.Sender
	subscription   *pubsub.Subscriber
	idempotency    *idempotency.Manager
	logg           *logger.Logger
	operatorChatID int64
}

// NewConsumer builds the chat notification consumer. A zero operator chat id
// downgrades operator alerts to log-only.
func NewConsumer(sender chat.Sender, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger, operatorChatID int64) (*Consumer, error) {
	if sender == nil {
		return nil, fmt.Errorf("chat sender required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		sender:         sender,
		subscription:   subscription,
		idempotency:    manager,
		logg:           logg,
		operatorChatID: operatorChatID,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	switch eventType {
	case string(enums.EventBuyerNotification), string(enums.EventOperatorAlert):
	default:
		// Everything else on the topic is an audit event with no chat fanout.
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, notificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.deliver(ctx, eventType, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification delivery failed", err)
		_ = c.idempotency.Delete(ctx, notificationConsumer, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) deliver(ctx context.Context, eventType string, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case string(enums.EventBuyerNotification):
		var payload payloads.BuyerNotificationEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse buyer notification: %w", err)
		}
		if err := c.sender.SendMessage(ctx, payload.BuyerID, payload.Text); err != nil {
			return err
		}
		c.logg.Info(c.logg.WithBuyerID(logCtx, payload.BuyerID), "buyer notified")
		return nil

	case string(enums.EventOperatorAlert):
		var payload payloads.OperatorAlertEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse operator alert: %w", err)
		}
		text := fmt.Sprintf("ALERT: %s\npayment: %s\nbuyer: %d", payload.Reason, payload.PaymentID, payload.BuyerID)
		if payload.Detail != "" {
			text += "\ndetail: " + payload.Detail
		}
		if c.operatorChatID == 0 {
			c.logg.Warn(c.logg.WithPaymentID(logCtx, payload.PaymentID),
				"operator chat not configured; alert logged only")
			return nil
		}
		if err := c.sender.SendMessage(ctx, c.operatorChatID, text); err != nil {
			return err
		}
		c.logg.Info(c.logg.WithPaymentID(logCtx, payload.PaymentID), "operator alerted")
		return nil
	}
	return nil
}
