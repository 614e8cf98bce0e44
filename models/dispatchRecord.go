package models

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/allocation_backend/config"
	"gorm.io/gorm"
)

// Outbox publish lifecycle for DispatchRecord.
const (
	DispatchPublishPending    = "PENDING"
	DispatchPublishProcessing = "PROCESSING"
	DispatchPublishSent       = "SENT"
	DispatchPublishFailed     = "FAILED"
	DispatchPublishDead       = "DEAD"
)

// DispatchRecord is the transactional-outbox row written when an
// allocation is executed. The dispatcher publishes it to the warehouse
// management system after commit; the row is the source of truth for
// delivery state.
type DispatchRecord struct {
	ID             int            `gorm:"primary_key;index:idx_dispatch_claim,priority:3" json:"id"`
	AllocationId   int            `gorm:"index;not null" json:"allocation_id"`
	AllocationCode string         `gorm:"size:50;index;not null" json:"allocation_code"`
	WarehouseCode  string         `gorm:"size:50;index;not null" json:"warehouse_code"`
	ReferenceType  string         `gorm:"size:20;not null" json:"reference_type"`
	Action         DispatchAction `gorm:"type:enum('C','U','D')" json:"action"`
	ExecutedAt     time.Time      `gorm:"index;not null" json:"executed_at"`
	Payload        []byte         `gorm:"type:blob" json:"payload"`
	// Publish happens after commit via the outbox dispatcher.
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_dispatch_claim,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_dispatch_claim,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// dispatchPayload is what the WMS receives: the executed header plus its
// final detail rows.
type dispatchPayload struct {
	Header  AllocationHeader   `json:"header"`
	Details []AllocationDetail `json:"details"`
}

// QueueWarehouseDispatch writes the outbox row inside the execute
// transaction so the event and the status change commit atomically.
func QueueWarehouseDispatch(tx *gorm.DB, header *AllocationHeader, details []AllocationDetail, correlationId string) error {
	executedAt := time.Now()
	if header.ExecutedAt != nil {
		executedAt = *header.ExecutedAt
	}

	payload, err := json.Marshal(dispatchPayload{Header: *header, Details: details})
	if err != nil {
		return err
	}

	record := DispatchRecord{
		AllocationId:   header.ID,
		AllocationCode: header.AllocationCode,
		WarehouseCode:  header.WarehouseCode,
		ReferenceType:  HistoryReferenceAllocation,
		Action:         DispatchActionCreate,
		ExecutedAt:     executedAt,
		Payload:        payload,
		PublishStatus:  DispatchPublishPending,
		CorrelationId:  correlationId,
	}
	return tx.Create(&record).Error
}

func ConvertToDispatchMessage(record DispatchRecord) config.DispatchMessage {
	return config.DispatchMessage{
		ID:             record.ID,
		AllocationId:   record.AllocationId,
		AllocationCode: record.AllocationCode,
		WarehouseCode:  record.WarehouseCode,
		ReferenceType:  record.ReferenceType,
		Action:         string(record.Action),
		ExecutedAt:     record.ExecutedAt,
		Payload:        record.Payload,
		CorrelationId:  record.CorrelationId,
	}
}
