package models

import "time"

// Client is the rich profile record read by dashboards and the portal.
// Credit score stays within [10,100]; new clients start at 50 / Medium.
type Client struct {
	ID                  uint       `gorm:"primary_key" json:"id"`
	BorrowerId          *uint      `gorm:"index" json:"borrower_id"`
	FirstName           string     `gorm:"size:128" json:"first_name"`
	LastName            string     `gorm:"size:128" json:"last_name"`
	FullName            string     `gorm:"size:255;not null" json:"full_name"`
	BusinessName        string     `gorm:"size:255" json:"business_name"`
	Phone               string     `gorm:"size:32" json:"phone"`
	NormalizedPhone     string     `gorm:"index;size:32" json:"normalized_phone"`
	Email               string     `gorm:"size:255" json:"email"`
	NationalId          string     `gorm:"size:64" json:"national_id"`
	Address             string     `gorm:"size:512" json:"address"`
	Gender              string     `gorm:"size:16" json:"gender"`
	DateOfBirth         *time.Time `json:"date_of_birth"`
	CreditScore         int        `gorm:"not null;default:50" json:"credit_score"`
	RiskLevel           string     `gorm:"size:16;not null;default:Medium" json:"risk_level"`
	Status              string     `gorm:"size:16;not null;default:active" json:"status"`
	ExternalReferenceId string     `gorm:"uniqueIndex;size:128" json:"external_reference_id"`
	SourceSystem        string     `gorm:"index;size:8" json:"source_system"`
	LastSyncedAt        *time.Time `json:"last_synced_at"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
