package ledgersync

import (
	"testing"

	"bitbucket.org/imfsl/ledger_backend/models"
)

func TestAssessRiskRuleChain(t *testing.T) {
	cases := []struct {
		name        string
		score       int
		risk        string
		daysOverdue int
		loanStatus  string
		isNPA       bool
		wantScore   int
		wantRisk    string
	}{
		{
			name:  "defaulted loan drops thirty and forces high",
			score: 50, risk: models.RiskLevelMedium,
			loanStatus: models.LoanStatusDefaulted,
			wantScore:  20, wantRisk: models.RiskLevelHigh,
		},
		{
			name:  "npa outranks overdue buckets",
			score: 80, risk: models.RiskLevelLow,
			daysOverdue: 45, loanStatus: models.LoanStatusActive, isNPA: true,
			wantScore: 50, wantRisk: models.RiskLevelHigh,
		},
		{
			name:  "over ninety days drops twenty",
			score: 60, risk: models.RiskLevelMedium,
			daysOverdue: 91, loanStatus: models.LoanStatusActive,
			wantScore: 40, wantRisk: models.RiskLevelHigh,
		},
		{
			name:  "over thirty days drops ten",
			score: 60, risk: models.RiskLevelLow,
			daysOverdue: 31, loanStatus: models.LoanStatusActive,
			wantScore: 50, wantRisk: models.RiskLevelMedium,
		},
		{
			name:  "exactly thirty days leaves profile alone",
			score: 60, risk: models.RiskLevelLow,
			daysOverdue: 30, loanStatus: models.LoanStatusActive,
			wantScore: 60, wantRisk: models.RiskLevelLow,
		},
		{
			name:  "clean completion above threshold earns low",
			score: 70, risk: models.RiskLevelMedium,
			loanStatus: models.LoanStatusCompleted,
			wantScore:  75, wantRisk: models.RiskLevelLow,
		},
		{
			name:  "clean completion below threshold stays medium",
			score: 60, risk: models.RiskLevelHigh,
			loanStatus: models.LoanStatusCompleted,
			wantScore:  65, wantRisk: models.RiskLevelMedium,
		},
		{
			name:  "completed but overdue earns nothing",
			score: 60, risk: models.RiskLevelMedium,
			daysOverdue: 5, loanStatus: models.LoanStatusCompleted,
			wantScore: 60, wantRisk: models.RiskLevelMedium,
		},
		{
			name:  "healthy active loan is a no-op",
			score: 55, risk: models.RiskLevelMedium,
			loanStatus: models.LoanStatusActive,
			wantScore:  55, wantRisk: models.RiskLevelMedium,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotScore, gotRisk := AssessRisk(tc.score, tc.risk, tc.daysOverdue, tc.loanStatus, tc.isNPA)
			if gotScore != tc.wantScore || gotRisk != tc.wantRisk {
				t.Fatalf("AssessRisk = (%d, %s), want (%d, %s)", gotScore, gotRisk, tc.wantScore, tc.wantRisk)
			}
		})
	}
}

func TestAssessRiskClampsAtFloor(t *testing.T) {
	score, risk := AssessRisk(25, models.RiskLevelHigh, 0, models.LoanStatusDefaulted, false)
	if score != riskScoreFloor {
		t.Fatalf("score = %d, want floor %d", score, riskScoreFloor)
	}
	if risk != models.RiskLevelHigh {
		t.Fatalf("risk = %s", risk)
	}
}

func TestAssessRiskClampsAtCeiling(t *testing.T) {
	score, _ := AssessRisk(98, models.RiskLevelLow, 0, models.LoanStatusCompleted, false)
	if score != riskScoreCeiling {
		t.Fatalf("score = %d, want ceiling %d", score, riskScoreCeiling)
	}
}

// A defaulted loan never improves the profile no matter how low the score
// already is.
func TestAssessRiskDefaultedNeverIncreasesScore(t *testing.T) {
	for score := riskScoreFloor; score <= riskScoreCeiling; score += 5 {
		got, _ := AssessRisk(score, models.RiskLevelMedium, 0, models.LoanStatusDefaulted, false)
		if got > score {
			t.Fatalf("score %d increased to %d on defaulted loan", score, got)
		}
	}
}
