package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/utils"
)

// History is the audit trail. Writes are best-effort: a failed audit row
// is logged and swallowed, it never fails the operation it records.
type History struct {
	ID            int               `gorm:"primary_key" json:"id"`
	ActionType    HistoryActionType `gorm:"size:20;not null;index" json:"action_type"`
	ReferenceId   int               `gorm:"index:idx_history_ref,priority:2;not null" json:"reference_id"`
	ReferenceType string            `gorm:"size:20;index:idx_history_ref,priority:1;not null" json:"reference_type"`
	OldObj        []byte            `gorm:"type:blob" json:"old_obj"`
	NewObj        []byte            `gorm:"type:blob" json:"new_obj"`
	Description   string            `gorm:"size:500" json:"description"`
	UserName      string            `gorm:"size:100" json:"user_name"`
	CorrelationId string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

const HistoryReferenceAllocation = "ALLOC"

func saveAllocationHistory(ctx context.Context, actionType HistoryActionType, allocationId int, oldObj interface{}, newObj interface{}, description string, userName string) {
	logger := config.GetLogger()

	var oldJSON, newJSON []byte
	var err error
	if oldObj != nil {
		if oldJSON, err = json.Marshal(oldObj); err != nil {
			config.LogError(logger, "models", "saveAllocationHistory", "Failed to marshal old object", allocationId, err)
			oldJSON = nil
		}
	}
	if newObj != nil {
		if newJSON, err = json.Marshal(newObj); err != nil {
			config.LogError(logger, "models", "saveAllocationHistory", "Failed to marshal new object", allocationId, err)
			newJSON = nil
		}
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	history := History{
		ActionType:    actionType,
		ReferenceId:   allocationId,
		ReferenceType: HistoryReferenceAllocation,
		OldObj:        oldJSON,
		NewObj:        newJSON,
		Description:   description,
		UserName:      userName,
		CorrelationId: correlationId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&history).Error; err != nil {
		config.LogError(logger, "models", "saveAllocationHistory", "Failed to save history", allocationId, err)
	}
}

// GetAllocationHistory returns the audit rows for an allocation, newest first.
func GetAllocationHistory(ctx context.Context, allocationId int) ([]*History, error) {
	db := config.GetDB()
	var histories []*History
	err := db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", HistoryReferenceAllocation, allocationId).
		Order("id DESC").
		Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}
