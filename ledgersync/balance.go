package ledgersync

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// ComputeBalance is the pure core of the balance invariant:
// outstanding == max(0, totalDue - sum of non-reversed repayment amounts).
func ComputeBalance(totalDue decimal.Decimal, repayments []models.Repayment) (totalPaid, outstanding decimal.Decimal) {
	totalPaid = decimal.Zero
	for _, r := range repayments {
		if r.Reversed {
			continue
		}
		totalPaid = totalPaid.Add(r.AmountPaid)
	}
	outstanding = utils.DecimalMax(decimal.Zero, totalDue.Sub(totalPaid))
	return totalPaid, outstanding
}

// EffectiveTotalDue falls back to the principal when upstream never set a
// due amount. Once positive it is never overwritten.
func EffectiveTotalDue(totalDue, principal decimal.Decimal) decimal.Decimal {
	if totalDue.IsPositive() {
		return totalDue
	}
	return principal
}

// RecomputeLoanBalance reloads the loan's repayments and rewrites the
// derived totals, serialized per loan. lastPaymentAt is set only for a
// repayment create/update; reversals pass nil and leave the stamp alone.
// A settled loan also transitions to completed with its arrears cleared.
func RecomputeLoanBalance(ctx context.Context, db *gorm.DB, loanId uint, lastPaymentAt *time.Time) error {
	release, _ := obtainEntityLock(ctx, "loan-balance", fmt.Sprint(loanId))
	defer release()

	var loan models.Loan
	if err := db.WithContext(ctx).First(&loan, loanId).Error; err != nil {
		return newPersistenceError("loan load for balance recompute failed", err)
	}

	var repayments []models.Repayment
	if err := db.WithContext(ctx).Where("loan_id = ?", loanId).Find(&repayments).Error; err != nil {
		return newPersistenceError("repayment load for balance recompute failed", err)
	}

	totalDue := EffectiveTotalDue(loan.TotalDue, loan.Principal)
	totalPaid, outstanding := ComputeBalance(totalDue, repayments)

	updates := map[string]interface{}{
		"total_due":           totalDue,
		"total_paid":          totalPaid,
		"outstanding_balance": outstanding,
	}
	if lastPaymentAt != nil {
		updates["last_payment_date"] = lastPaymentAt
	}
	if !outstanding.IsPositive() && totalPaid.IsPositive() {
		updates["status"] = models.LoanStatusCompleted
		updates["days_overdue"] = 0
		updates["in_arrears"] = false
	}

	if err := db.WithContext(ctx).Model(&models.Loan{}).Where("id = ?", loanId).
		Updates(updates).Error; err != nil {
		return newPersistenceError("balance write failed", err)
	}
	return nil
}
