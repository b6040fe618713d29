package main

import (
	"context"
	"errors"
	"io"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/config"
	"github.com/ovasilenko/chatmarket-backend/pkg/db"
	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox/payloads"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox/registry"
)

type capturedPublish struct {
	topic string
	msg   *gcppubsub.Message
}

type stubResult struct {
	id  string
	err error
}

func (r stubResult) Get(context.Context) (string, error) { return r.id, r.err }

type stubPublisher struct {
	topic string
	sink  *[]capturedPublish
	err   error
}

func (p *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	*p.sink = append(*p.sink, capturedPublish{topic: p.topic, msg: msg})
	return stubResult{id: "srv-1", err: p.err}
}

type stubPubSub struct{}

func (stubPubSub) Ping(context.Context) error            { return nil }
func (stubPubSub) Publisher(string) *gcppubsub.Publisher { return nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:publisher_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
		`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  payload TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  attempt_count INTEGER NOT NULL,
  created_at DATETIME
);`,
	} {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, publishErr error, maxAttempts int) (*Service, *[]capturedPublish) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	cfg := &config.Config{}
	cfg.PubSub.NotificationTopic = "cm-notification-events"
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.PollIntervalMS = 10
	cfg.Outbox.MaxAttempts = maxAttempts

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	require.NoError(t, err)

	var published []capturedPublish
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         db.NewFromConn(conn),
		PubSub:     stubPubSub{},
		Repository: outbox.NewRepository(conn),
		Registry:   eventRegistry,
		PublisherFactory: func(topic string) publisher {
			return &stubPublisher{topic: topic, sink: &published, err: publishErr}
		},
		DLQRepository: outbox.NewDLQRepository(conn),
	})
	require.NoError(t, err)
	return svc, &published
}

func emitEvent(t *testing.T, conn *gorm.DB) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc := outbox.NewService(outbox.NewRepository(conn), logg)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventBuyerNotification,
			AggregateType: enums.AggregateNotification,
			AggregateID:   "42",
			Data:          payloads.BuyerNotificationEvent{BuyerID: 42, Text: "hi"},
			Version:       1,
		})
	}))
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, published := newTestService(t, conn, nil, 10)

	emitEvent(t, conn)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, *published, 1)

	sent := (*published)[0]
	require.Equal(t, "cm-notification-events", sent.topic)
	require.Equal(t, string(enums.EventBuyerNotification), sent.msg.Attributes["event_type"])
	require.Equal(t, "42", sent.msg.Attributes["aggregate_id"])
	require.NotEmpty(t, sent.msg.Attributes["event_id"])

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	require.NotNil(t, row.PublishedAt)
}

func TestProcessBatchEmptyOutbox(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, published := newTestService(t, conn, nil, 10)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
	require.Empty(t, *published)
}

func TestProcessBatchRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, errors.New("pubsub unavailable"), 10)

	emitEvent(t, conn)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	require.Nil(t, row.PublishedAt)
	require.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)

	var dlq int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&dlq).Error)
	require.Equal(t, int64(0), dlq)
}

func TestProcessBatchExhaustedAttemptsGoToDLQ(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, errors.New("pubsub unavailable"), 3)

	emitEvent(t, conn)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("1 = 1").Update("attempt_count", 2).Error)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	var entry models.OutboxDLQ
	require.NoError(t, conn.First(&entry).Error)
	require.Equal(t, string(enums.EventBuyerNotification), entry.EventType)
	require.Contains(t, entry.ErrorReason, "max_attempts")

	// Pinned at the terminal attempt count so the next fetch skips it.
	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	require.Equal(t, 3, row.AttemptCount)

	processed, err = svc.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestProcessBatchUnknownEventTypeIsTerminal(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, published := newTestService(t, conn, nil, 10)

	require.NoError(t, conn.Create(&models.OutboxEvent{
		EventType:     enums.OutboxEventType("mystery_event"),
		AggregateType: enums.AggregateNotification,
		AggregateID:   "1",
		Payload:       []byte(`{"version":1,"eventId":"x","occurredAt":"2026-01-01T00:00:00Z","data":{}}`),
	}).Error)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Empty(t, *published)

	var entry models.OutboxDLQ
	require.NoError(t, conn.First(&entry).Error)
	require.Equal(t, "mystery_event", entry.EventType)
	require.Contains(t, entry.ErrorReason, "non_retryable")
}
