package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationSnapshot is immutable once written. Variances are
// upstream minus local per metric.
type ReconciliationSnapshot struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	System      string     `gorm:"index;size:8;not null" json:"system"`
	Status      string     `gorm:"size:32;not null" json:"status"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`

	UpstreamClients    int `json:"upstream_clients"`
	UpstreamLoans      int `json:"upstream_loans"`
	UpstreamRepayments int `json:"upstream_repayments"`
	LocalClients       int `json:"local_clients"`
	LocalLoans         int `json:"local_loans"`
	LocalRepayments    int `json:"local_repayments"`

	UpstreamDisbursed   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"upstream_disbursed"`
	UpstreamOutstanding decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"upstream_outstanding"`
	UpstreamRepaid      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"upstream_repaid"`
	UpstreamSavings     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"upstream_savings"`
	LocalDisbursed      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"local_disbursed"`
	LocalOutstanding    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"local_outstanding"`
	LocalRepaid         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"local_repaid"`
	LocalSavings        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"local_savings"`

	VarianceClients     int             `json:"variance_clients"`
	VarianceLoans       int             `json:"variance_loans"`
	VarianceRepayments  int             `json:"variance_repayments"`
	VarianceDisbursed   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_disbursed"`
	VarianceOutstanding decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_outstanding"`
	VarianceRepaid      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_repaid"`
	VarianceSavings     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_savings"`

	CollectionErrorsJSON []byte    `gorm:"type:json" json:"collection_errors"`
	CorrelationId        string    `gorm:"size:64" json:"correlation_id"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
}
