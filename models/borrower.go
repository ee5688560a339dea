package models

import "time"

// Borrower is the minimal identity record kept convergent with the richer
// Client profile through a shared normalized phone number.
type Borrower struct {
	ID                  uint       `gorm:"primary_key" json:"id"`
	FullName            string     `gorm:"size:255;not null" json:"full_name"`
	Phone               string     `gorm:"size:32" json:"phone"`
	NormalizedPhone     string     `gorm:"index;size:32" json:"normalized_phone"`
	NationalId          string     `gorm:"size:64" json:"national_id"`
	Status              string     `gorm:"size:16;not null;default:active" json:"status"`
	ExternalReferenceId string     `gorm:"uniqueIndex;size:128" json:"external_reference_id"`
	SourceSystem        string     `gorm:"index;size:8" json:"source_system"`
	LastSyncedAt        *time.Time `json:"last_synced_at"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
