package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// SyncRun is the audit-trail aggregate for one synchronization attempt.
// Terminal statuses (completed, partial) are never mutated back to running;
// a retry creates a new run pointing back through ParentRunId.
type SyncRun struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	System          string     `gorm:"index;size:8;not null" json:"system"`
	RunType         string     `gorm:"size:16;not null" json:"run_type"`
	Status          string     `gorm:"index;size:16;not null" json:"status"`
	EntityTypesJSON []byte     `gorm:"type:json" json:"entity_types"`
	FullSync        bool       `gorm:"default:false" json:"full_sync"`
	Fetched         int        `json:"fetched"`
	Created         int        `json:"created"`
	Updated         int        `json:"updated"`
	Skipped         int        `json:"skipped"`
	Failed          int        `json:"failed"`
	ParentRunId     *uint      `gorm:"index" json:"parent_run_id"`
	CorrelationId   string     `gorm:"size:64" json:"correlation_id"`
	StartedAt       *time.Time `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	DurationMs      int64      `json:"duration_ms"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncItem is append-only. It carries enough raw payload to replay the
// record later; resolution failures leave LocalId null.
type SyncItem struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	SyncRunId    uint      `gorm:"index;not null" json:"sync_run_id"`
	EntityType   string    `gorm:"size:32;not null" json:"entity_type"`
	ExternalId   string    `gorm:"index;size:128" json:"external_id"`
	Action       string    `gorm:"size:16;not null" json:"action"`
	LocalId      *uint     `json:"local_id"`
	PayloadJSON  []byte    `gorm:"type:json" json:"payload"`
	ErrorClass   string    `gorm:"size:32" json:"error_class"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *SyncRun) IsTerminal() bool {
	return r.Status == SyncRunStatusCompleted || r.Status == SyncRunStatusPartial
}

func GetSyncRun(ctx context.Context, db *gorm.DB, id uint) (*SyncRun, error) {
	var run SyncRun
	if err := db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
