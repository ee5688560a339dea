package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Repayment rows are the only canonical rows that may be hard-deleted,
// a deletion models an upstream reversal.
type Repayment struct {
	ID                  uint            `gorm:"primary_key" json:"id"`
	LoanId              uint            `gorm:"index;not null" json:"loan_id"`
	AmountPaid          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	Method              string          `gorm:"size:32;not null;default:cash" json:"method"`
	ReceiptReference    string          `gorm:"size:128" json:"receipt_reference"`
	PaidAt              *time.Time      `json:"paid_at"`
	Reversed            bool            `gorm:"default:false" json:"reversed"`
	ExternalReferenceId string          `gorm:"uniqueIndex;size:128" json:"external_reference_id"`
	SourceSystem        string          `gorm:"index;size:8" json:"source_system"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
