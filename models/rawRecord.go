package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RawRecord stages the untouched upstream payload before transformation.
// The resolver's phone natural-key fallback reads from here, and every
// record can be replayed from its staged payload.
type RawRecord struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	System      string    `gorm:"uniqueIndex:idx_raw_record,priority:1;size:8;not null" json:"system"`
	EntityType  string    `gorm:"uniqueIndex:idx_raw_record,priority:2;size:32;not null" json:"entity_type"`
	ExternalId  string    `gorm:"uniqueIndex:idx_raw_record,priority:3;size:128;not null" json:"external_id"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	FetchedAt   time.Time `gorm:"not null" json:"fetched_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertRawRecord replaces the staged payload for (system, entityType, externalId).
func UpsertRawRecord(ctx context.Context, db *gorm.DB, system, entityType, externalId string, payload []byte) error {
	record := RawRecord{
		System:      system,
		EntityType:  entityType,
		ExternalId:  externalId,
		PayloadJSON: payload,
		FetchedAt:   time.Now().UTC(),
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "system"}, {Name: "entity_type"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload_json", "fetched_at"}),
	}).Create(&record).Error
}

func GetRawRecord(ctx context.Context, db *gorm.DB, system, entityType, externalId string) (*RawRecord, error) {
	var record RawRecord
	err := db.WithContext(ctx).
		Where("system = ? AND entity_type = ? AND external_id = ?", system, entityType, externalId).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
