package models

import "time"

// WebhookEvent logs every received webhook call, accepted or not.
type WebhookEvent struct {
	ID            uint      `gorm:"primary_key" json:"id"`
	System        string    `gorm:"index;size:8;not null" json:"system"`
	EntityType    string    `gorm:"size:32;not null" json:"entity_type"`
	Action        string    `gorm:"size:16" json:"action"`
	ExternalId    string    `gorm:"size:128" json:"external_id"`
	PayloadJSON   []byte    `gorm:"type:json" json:"payload"`
	StatusCode    int       `json:"status_code"`
	CorrelationId string    `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
