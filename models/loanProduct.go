package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoanProduct struct {
	ID                  uint            `gorm:"primary_key" json:"id"`
	Name                string          `gorm:"size:255;not null" json:"name"`
	ShortName           string          `gorm:"size:32" json:"short_name"`
	Currency            string          `gorm:"size:8" json:"currency"`
	InterestRate        decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"interest_rate"`
	MinPrincipal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_principal"`
	MaxPrincipal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"max_principal"`
	TermMonths          int             `json:"term_months"`
	Active              bool            `gorm:"default:true" json:"active"`
	ExternalReferenceId string          `gorm:"uniqueIndex;size:128" json:"external_reference_id"`
	SourceSystem        string          `gorm:"index;size:8" json:"source_system"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
