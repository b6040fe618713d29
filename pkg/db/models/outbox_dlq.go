package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxDLQ stores events that exhausted their publish attempts.
type OutboxDLQ struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      uuid.UUID       `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_outbox_dlq_event"`
	EventType    string          `gorm:"column:event_type;not null"`
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ErrorReason  string          `gorm:"column:error_reason;not null"`
	AttemptCount int             `gorm:"column:attempt_count;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the singular table name from the schema.
func (OutboxDLQ) TableName() string {
	return "outbox_dlq"
}
