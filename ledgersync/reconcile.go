package ledgersync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// monetary variances up to one unit are tolerated (rounding between
// upstream report currencies and the canonical decimals).
var varianceTolerance = decimal.NewFromInt(1)

// UpstreamTotals aggregates one side of the comparison.
type UpstreamTotals struct {
	Clients     int
	Loans       int
	Repayments  int
	Disbursed   decimal.Decimal
	Outstanding decimal.Decimal
	Repaid      decimal.Decimal
	Savings     decimal.Decimal
}

// ComputeVariances fills the variance columns and decides the snapshot
// status: reconciled iff all count variances are zero and all monetary
// variances are within tolerance.
func ComputeVariances(snap *models.ReconciliationSnapshot) {
	snap.VarianceClients = snap.UpstreamClients - snap.LocalClients
	snap.VarianceLoans = snap.UpstreamLoans - snap.LocalLoans
	snap.VarianceRepayments = snap.UpstreamRepayments - snap.LocalRepayments
	snap.VarianceDisbursed = snap.UpstreamDisbursed.Sub(snap.LocalDisbursed)
	snap.VarianceOutstanding = snap.UpstreamOutstanding.Sub(snap.LocalOutstanding)
	snap.VarianceRepaid = snap.UpstreamRepaid.Sub(snap.LocalRepaid)
	snap.VarianceSavings = snap.UpstreamSavings.Sub(snap.LocalSavings)

	countsClean := snap.VarianceClients == 0 && snap.VarianceLoans == 0 && snap.VarianceRepayments == 0
	moneyClean := withinTolerance(snap.VarianceDisbursed) &&
		withinTolerance(snap.VarianceOutstanding) &&
		withinTolerance(snap.VarianceRepaid) &&
		withinTolerance(snap.VarianceSavings)

	if countsClean && moneyClean {
		snap.Status = models.ReconciliationStatusReconciled
	} else {
		snap.Status = models.ReconciliationStatusVarianceDetected
	}
}

func withinTolerance(v decimal.Decimal) bool {
	return v.Abs().LessThanOrEqual(varianceTolerance)
}

// RunReconciliation compares full upstream totals against the canonical
// rows tagged as sourced from that system and persists an immutable
// snapshot. A failure fetching one upstream collection degrades that
// collection to empty (full variance); the run always reports a status.
func RunReconciliation(ctx context.Context, db *gorm.DB, integration *models.Integration, periodStart, periodEnd *time.Time) (*models.ReconciliationSnapshot, error) {
	ctx, span := tracer.Start(ctx, "sync.reconcile")
	span.SetAttributes(attribute.String("sync.system", integration.SystemCode))
	defer span.End()

	client, err := NewUpstreamClient(integration)
	if err != nil {
		return nil, err
	}

	upstream, collectionErrors := fetchUpstreamTotals(ctx, client, integration)
	local, err := fetchLocalTotals(ctx, db, integration.SystemCode)
	if err != nil {
		return nil, err
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	errorsJSON, _ := json.Marshal(collectionErrors)

	snap := &models.ReconciliationSnapshot{
		System:      integration.SystemCode,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,

		UpstreamClients:     upstream.Clients,
		UpstreamLoans:       upstream.Loans,
		UpstreamRepayments:  upstream.Repayments,
		UpstreamDisbursed:   upstream.Disbursed,
		UpstreamOutstanding: upstream.Outstanding,
		UpstreamRepaid:      upstream.Repaid,
		UpstreamSavings:     upstream.Savings,

		LocalClients:     local.Clients,
		LocalLoans:       local.Loans,
		LocalRepayments:  local.Repayments,
		LocalDisbursed:   local.Disbursed,
		LocalOutstanding: local.Outstanding,
		LocalRepaid:      local.Repaid,
		LocalSavings:     local.Savings,

		CollectionErrorsJSON: errorsJSON,
		CorrelationId:        correlationId,
	}
	ComputeVariances(snap)

	if err := db.WithContext(ctx).Create(snap).Error; err != nil {
		return nil, newPersistenceError("snapshot write failed", err)
	}
	return snap, nil
}

// fetchUpstreamTotals pages every relevant upstream collection. The
// returned map carries the per-collection fetch errors that degraded to
// empty totals.
func fetchUpstreamTotals(ctx context.Context, client UpstreamClient, integration *models.Integration) (UpstreamTotals, map[string]string) {
	totals := UpstreamTotals{
		Disbursed:   decimal.Zero,
		Outstanding: decimal.Zero,
		Repaid:      decimal.Zero,
		Savings:     decimal.Zero,
	}
	collectionErrors := map[string]string{}
	limit := integration.PageSize
	if limit <= 0 {
		limit = 100
	}

	if err := pageCollection(ctx, client, models.EntityTypeClient, limit, func(item map[string]interface{}) {
		totals.Clients++
	}); err != nil {
		totals.Clients = 0
		collectionErrors[models.EntityTypeClient] = err.Error()
	}

	if err := pageCollection(ctx, client, models.EntityTypeLoan, limit, func(item map[string]interface{}) {
		totals.Loans++
		totals.Disbursed = totals.Disbursed.Add(upstreamLoanPrincipal(client.System(), item))
		totals.Outstanding = totals.Outstanding.Add(upstreamLoanOutstanding(client.System(), item))
	}); err != nil {
		totals.Loans = 0
		totals.Disbursed = decimal.Zero
		totals.Outstanding = decimal.Zero
		collectionErrors[models.EntityTypeLoan] = err.Error()
	}

	if err := pageCollection(ctx, client, models.EntityTypeRepayment, limit, func(item map[string]interface{}) {
		// Same filter as the ingest transform: only repayment-type,
		// non-reversed transactions count toward repaid totals.
		if !isRepaymentTransaction(item) {
			return
		}
		if reversed := pickBool(item, "is_reversed", "reversed", "manuallyReversed"); reversed {
			return
		}
		totals.Repayments++
		totals.Repaid = totals.Repaid.Add(toDecimal(firstOf(item, "repayment_amount", "amount_paid", "amount")))
	}); err != nil {
		totals.Repayments = 0
		totals.Repaid = decimal.Zero
		collectionErrors[models.EntityTypeRepayment] = err.Error()
	}

	if integration.Provider == models.IntegrationProviderFineract && integration.SavingsEnabled {
		if err := pageCollection(ctx, client, models.EntityTypeSavingsAccount, limit, func(item map[string]interface{}) {
			balance := pickDecimal(item, "accountBalance", "balance")
			if summary := pickMap(item, "summary"); summary != nil && balance.IsZero() {
				balance = pickDecimal(summary, "accountBalance", "availableBalance")
			}
			totals.Savings = totals.Savings.Add(balance)
		}); err != nil {
			totals.Savings = decimal.Zero
			collectionErrors[models.EntityTypeSavingsAccount] = err.Error()
		}
	}

	return totals, collectionErrors
}

func pageCollection(ctx context.Context, client UpstreamClient, entityType string, limit int, visit func(map[string]interface{})) error {
	for offset := 0; offset <= maxPaginationOffset; offset += limit {
		page, err := client.FetchPage(ctx, entityType, offset, limit, nil)
		if err != nil {
			return err
		}
		for _, raw := range page.Items {
			item, decodeErr := decodePayload(raw)
			if decodeErr != nil {
				continue
			}
			visit(item)
		}
		if !page.HasMore || len(page.Items) == 0 {
			return nil
		}
	}
	return nil
}

func upstreamLoanPrincipal(system string, item map[string]interface{}) decimal.Decimal {
	switch system {
	case models.SystemFineract:
		return pickDecimal(item, "principal", "approvedPrincipal", "proposedPrincipal")
	default:
		return pickDecimal(item, "loan_principal_amount", "principal_amount", "principal", "amount")
	}
}

func upstreamLoanOutstanding(system string, item map[string]interface{}) decimal.Decimal {
	switch system {
	case models.SystemFineract:
		if summary := pickMap(item, "summary"); summary != nil {
			return pickDecimal(summary, "totalOutstanding", "principalOutstanding")
		}
		return decimal.Zero
	default:
		return pickDecimal(item, "loan_balance", "outstanding_balance", "balance")
	}
}

func firstOf(item map[string]interface{}, keys ...string) interface{} {
	v, _ := pickRaw(item, keys...)
	return v
}

// fetchLocalTotals aggregates the canonical rows tagged as sourced from
// one system, matched on the external-reference prefix.
func fetchLocalTotals(ctx context.Context, db *gorm.DB, system string) (UpstreamTotals, error) {
	var totals UpstreamTotals
	totals.Disbursed = decimal.Zero
	totals.Outstanding = decimal.Zero
	totals.Repaid = decimal.Zero
	totals.Savings = decimal.Zero

	var clientCount int64
	if err := db.WithContext(ctx).Model(&models.Client{}).
		Where("external_reference_id LIKE ?", RefPrefix(system, models.EntityTypeClient)+"%").
		Count(&clientCount).Error; err != nil {
		return totals, newPersistenceError("local client aggregate failed", err)
	}
	totals.Clients = int(clientCount)

	type loanAggregate struct {
		Count       int64
		Disbursed   decimal.Decimal
		Outstanding decimal.Decimal
	}
	var loans loanAggregate
	if err := db.WithContext(ctx).Model(&models.Loan{}).
		Select("COUNT(*) AS count, COALESCE(SUM(principal), 0) AS disbursed, COALESCE(SUM(outstanding_balance), 0) AS outstanding").
		Where("external_reference_id LIKE ?", RefPrefix(system, models.EntityTypeLoan)+"%").
		Scan(&loans).Error; err != nil {
		return totals, newPersistenceError("local loan aggregate failed", err)
	}
	totals.Loans = int(loans.Count)
	totals.Disbursed = loans.Disbursed
	totals.Outstanding = loans.Outstanding

	type repaymentAggregate struct {
		Count  int64
		Repaid decimal.Decimal
	}
	var repayments repaymentAggregate
	if err := db.WithContext(ctx).Model(&models.Repayment{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount_paid), 0) AS repaid").
		Where("external_reference_id LIKE ? AND reversed = ?",
			RefPrefix(system, models.EntityTypeRepayment)+"%", false).
		Scan(&repayments).Error; err != nil {
		return totals, newPersistenceError("local repayment aggregate failed", err)
	}
	totals.Repayments = int(repayments.Count)
	totals.Repaid = repayments.Repaid

	var savings decimal.Decimal
	if err := db.WithContext(ctx).Model(&models.SavingsAccount{}).
		Select("COALESCE(SUM(balance), 0)").
		Where("external_reference_id LIKE ?", RefPrefix(system, models.EntityTypeSavingsAccount)+"%").
		Scan(&savings).Error; err != nil {
		return totals, newPersistenceError("local savings aggregate failed", err)
	}
	totals.Savings = savings

	return totals, nil
}
