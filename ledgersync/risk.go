package ledgersync

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/models"
)

const (
	riskScoreFloor   = 10
	riskScoreCeiling = 100
)

// AssessRisk is a pure state transition over (score, risk). First matching
// rule wins; no rule leaves both values unchanged.
func AssessRisk(score int, risk string, daysOverdue int, loanStatus string, isNPA bool) (int, string) {
	switch {
	case isNPA || loanStatus == models.LoanStatusDefaulted:
		return clampScore(score - 30), models.RiskLevelHigh
	case daysOverdue > 90:
		return clampScore(score - 20), models.RiskLevelHigh
	case daysOverdue > 30:
		return clampScore(score - 10), models.RiskLevelMedium
	case loanStatus == models.LoanStatusCompleted && daysOverdue == 0:
		newScore := clampScore(score + 5)
		if newScore >= 70 {
			return newScore, models.RiskLevelLow
		}
		return newScore, models.RiskLevelMedium
	default:
		return score, risk
	}
}

func clampScore(score int) int {
	if score < riskScoreFloor {
		return riskScoreFloor
	}
	if score > riskScoreCeiling {
		return riskScoreCeiling
	}
	return score
}

// ApplyRiskAssessment reassesses the loan's owning profile, serialized per
// client. The write only happens when the assessment actually changed, so
// repeated syncs of an unchanged loan do not churn the audit trail.
func ApplyRiskAssessment(ctx context.Context, db *gorm.DB, loan *models.Loan) error {
	release, _ := obtainEntityLock(ctx, "client-risk", fmt.Sprint(loan.ClientId))
	defer release()

	var client models.Client
	if err := db.WithContext(ctx).First(&client, loan.ClientId).Error; err != nil {
		return newPersistenceError("client load for risk assessment failed", err)
	}

	newScore, newRisk := AssessRisk(client.CreditScore, client.RiskLevel, loan.DaysOverdue, loan.Status, loan.IsNPA)
	if newScore == client.CreditScore && newRisk == client.RiskLevel {
		return nil
	}

	err := db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", client.ID).
		Updates(map[string]interface{}{
			"credit_score": newScore,
			"risk_level":   newRisk,
		}).Error
	if err != nil {
		return newPersistenceError("risk write failed", err)
	}
	return nil
}
