package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SavingsAccount struct {
	ID                  uint            `gorm:"primary_key" json:"id"`
	ClientId            *uint           `gorm:"index" json:"client_id"`
	AccountNo           string          `gorm:"size:64" json:"account_no"`
	Status              string          `gorm:"size:16;not null;default:active" json:"status"`
	Balance             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	Currency            string          `gorm:"size:8" json:"currency"`
	ExternalReferenceId string          `gorm:"uniqueIndex;size:128" json:"external_reference_id"`
	SourceSystem        string          `gorm:"index;size:8" json:"source_system"`
	LastSyncedAt        *time.Time      `json:"last_synced_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
