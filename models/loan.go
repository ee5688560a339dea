package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Loan struct {
	ID           uint            `gorm:"primary_key" json:"id"`
	ClientId     uint            `gorm:"index;not null" json:"client_id"`
	ProductRef   string          `gorm:"size:128" json:"product_ref"`
	Principal    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"principal"`
	InterestRate decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"interest_rate"`
	TermMonths   int             `json:"term_months"`
	Status       string          `gorm:"index;size:16;not null;default:pending" json:"status"`
	// TotalDue is derived upstream; once set it is never overwritten by a
	// later transform, only read by the balance recomputation.
	TotalDue            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_due"`
	TotalPaid           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_paid"`
	OutstandingBalance  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"outstanding_balance"`
	DaysOverdue         int             `json:"days_overdue"`
	InArrears           bool            `gorm:"default:false" json:"in_arrears"`
	IsNPA               bool            `gorm:"default:false" json:"is_npa"`
	DisbursedAt         *time.Time      `json:"disbursed_at"`
	MaturityAt          *time.Time      `json:"maturity_at"`
	LastPaymentDate     *time.Time      `json:"last_payment_date"`
	ExternalReferenceId string          `gorm:"uniqueIndex;size:128" json:"external_reference_id"`
	SourceSystem        string          `gorm:"index;size:8" json:"source_system"`
	LastSyncedAt        *time.Time      `json:"last_synced_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
