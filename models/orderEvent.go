package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"gorm.io/gorm"
)

// Publish statuses for OrderEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// OrderEventRecord is the outbox row written in the same transaction as the
// order change it describes. The dispatcher publishes it after commit.
type OrderEventRecord struct {
	ID               int              `gorm:"primary_key;index:idx_order_event_dispatch,priority:3" json:"id"`
	OrderKind        OrderKind        `gorm:"size:20;index;not null" json:"order_kind"`
	OrderNumber      string           `gorm:"size:50;index;not null" json:"order_number"`
	Action           OrderEventAction `gorm:"size:20;not null" json:"action"`
	OperatorId       string           `gorm:"size:100" json:"operator_id"`
	Payload          []byte           `gorm:"type:mediumblob" json:"payload"`
	CorrelationId    string           `gorm:"size:64;index" json:"correlation_id"`
	PublishStatus    string           `gorm:"size:20;index;not null;default:'PENDING';index:idx_order_event_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int              `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time       `gorm:"index;index:idx_order_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time       `gorm:"index" json:"locked_at"`
	LockedBy         *string          `gorm:"size:100" json:"locked_by"`
	LastPublishError *string          `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time       `gorm:"index" json:"published_at"`
	PubSubMessageId  *string          `gorm:"size:255" json:"pubsub_message_id"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToOrderEventMessage(record OrderEventRecord) config.OrderEventMessage {
	return config.OrderEventMessage{
		ID:            record.ID,
		OrderKind:     string(record.OrderKind),
		OrderNumber:   record.OrderNumber,
		Action:        string(record.Action),
		OperatorId:    record.OperatorId,
		OccurredAt:    record.CreatedAt,
		Payload:       json.RawMessage(record.Payload),
		CorrelationId: record.CorrelationId,
	}
}

// recordOrderEvent appends an outbox row when order events are enabled.
func recordOrderEvent(tx *gorm.DB, kind OrderKind, orderNumber string, action OrderEventAction, operator Operator, payload interface{}) error {
	if !config.OrderEventsEnabled() {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return newInvariantViolation("encode order event", err)
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(tx.Statement.Context)
	now := time.Now().UTC()
	record := OrderEventRecord{
		OrderKind:     kind,
		OrderNumber:   orderNumber,
		Action:        action,
		OperatorId:    operator.Id,
		Payload:       b,
		CorrelationId: correlationId,
		PublishStatus: OutboxPublishStatusPending,
		NextAttemptAt: &now,
	}
	return tx.Create(&record).Error
}

// GetOrderEvents lists the outbox rows of one order, oldest first.
func GetOrderEvents(ctx context.Context, kind OrderKind, orderNumber string) ([]*OrderEventRecord, error) {
	var records []*OrderEventRecord
	if err := config.GetDB().WithContext(ctx).
		Where("order_kind = ? AND order_number = ?", kind, orderNumber).
		Order("id").
		Find(&records).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return records, nil
}
