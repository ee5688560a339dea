package ledgersync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/imfsl/ledger_backend/models"
)

func TestComputeVariancesReconciled(t *testing.T) {
	snap := &models.ReconciliationSnapshot{
		UpstreamClients: 40, LocalClients: 40,
		UpstreamLoans: 120, LocalLoans: 120,
		UpstreamRepayments: 310, LocalRepayments: 310,
		UpstreamDisbursed: dec(t, "5000000"), LocalDisbursed: dec(t, "5000000"),
		UpstreamOutstanding: dec(t, "1200000.50"), LocalOutstanding: dec(t, "1200001.25"),
		UpstreamRepaid: dec(t, "3800000"), LocalRepaid: dec(t, "3800000"),
	}
	ComputeVariances(snap)

	if snap.Status != models.ReconciliationStatusReconciled {
		t.Fatalf("Status = %q, sub-unit money drift is within tolerance", snap.Status)
	}
	if !snap.VarianceOutstanding.Equal(dec(t, "-0.75")) {
		t.Fatalf("VarianceOutstanding = %s", snap.VarianceOutstanding)
	}
}

func TestComputeVariancesCountMismatch(t *testing.T) {
	snap := &models.ReconciliationSnapshot{
		UpstreamClients: 40, LocalClients: 40,
		UpstreamLoans: 120, LocalLoans: 118,
		UpstreamRepayments: 310, LocalRepayments: 310,
	}
	ComputeVariances(snap)

	if snap.VarianceLoans != 2 {
		t.Fatalf("VarianceLoans = %d, want 2", snap.VarianceLoans)
	}
	if snap.Status != models.ReconciliationStatusVarianceDetected {
		t.Fatalf("Status = %q, any count mismatch is a variance", snap.Status)
	}
}

func TestComputeVariancesMoneyToleranceBoundary(t *testing.T) {
	snap := &models.ReconciliationSnapshot{
		UpstreamRepaid: dec(t, "100001"), LocalRepaid: dec(t, "100000"),
	}
	ComputeVariances(snap)
	if snap.Status != models.ReconciliationStatusReconciled {
		t.Fatalf("Status = %q, variance of exactly one unit is tolerated", snap.Status)
	}

	snap = &models.ReconciliationSnapshot{
		UpstreamRepaid: dec(t, "100001.01"), LocalRepaid: dec(t, "100000"),
	}
	ComputeVariances(snap)
	if snap.Status != models.ReconciliationStatusVarianceDetected {
		t.Fatalf("Status = %q, variance above one unit is not", snap.Status)
	}
}

// A collection that failed to fetch degrades to zero upstream totals, so a
// non-empty local side always surfaces as a variance rather than a silent
// clean snapshot.
func TestComputeVariancesDegradedCollection(t *testing.T) {
	snap := &models.ReconciliationSnapshot{
		UpstreamClients: 0, LocalClients: 40,
		UpstreamDisbursed: decimal.Zero, LocalDisbursed: dec(t, "5000000"),
	}
	ComputeVariances(snap)

	if snap.VarianceClients != -40 {
		t.Fatalf("VarianceClients = %d", snap.VarianceClients)
	}
	if snap.Status != models.ReconciliationStatusVarianceDetected {
		t.Fatalf("Status = %q", snap.Status)
	}
}

func TestWithinTolerance(t *testing.T) {
	cases := map[string]bool{
		"0":     true,
		"1":     true,
		"-1":    true,
		"0.99":  true,
		"-0.5":  true,
		"1.01":  false,
		"-1.01": false,
		"250":   false,
	}
	for raw, want := range cases {
		if got := withinTolerance(dec(t, raw)); got != want {
			t.Fatalf("withinTolerance(%s) = %v, want %v", raw, got, want)
		}
	}
}

// fakeUpstreamClient serves canned single-page collections so the
// upstream aggregation can run without a live system.
type fakeUpstreamClient struct {
	system string
	pages  map[string][]json.RawMessage
	errs   map[string]error
}

func (f *fakeUpstreamClient) System() string { return f.system }

func (f *fakeUpstreamClient) FetchPage(ctx context.Context, entityType string, offset, limit int, modifiedSince *time.Time) (Page, error) {
	if err := f.errs[entityType]; err != nil {
		return Page{}, err
	}
	if offset > 0 {
		return Page{}, nil
	}
	items := f.pages[entityType]
	return Page{Items: items, Total: len(items), HasMore: false}, nil
}

func (f *fakeUpstreamClient) FetchOne(ctx context.Context, entityType, externalId string) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUpstreamClient) Mutate(ctx context.Context, entityType, externalId, command string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

// A Fineract loan-transaction feed mixes disbursements, fees and waivers
// with repayments. Only non-reversed repayment-type transactions may
// count toward the repaid totals.
func TestFetchUpstreamTotalsCountsOnlyRepaymentTransactions(t *testing.T) {
	client := &fakeUpstreamClient{
		system: models.SystemFineract,
		pages: map[string][]json.RawMessage{
			models.EntityTypeRepayment: {
				json.RawMessage(`{"id":1,"loanId":12,"amount":50000,"type":{"value":"Disbursement"}}`),
				json.RawMessage(`{"id":2,"loanId":12,"amount":10000,"type":{"value":"Repayment"}}`),
				json.RawMessage(`{"id":3,"loanId":12,"amount":300,"type":{"value":"Fee Payment"}}`),
				json.RawMessage(`{"id":4,"loanId":12,"amount":2000,"type":{"value":"Repayment"},"manuallyReversed":true}`),
				json.RawMessage(`{"id":5,"loanId":12,"amount":500,"type":{"value":"Recovery Repayment"}}`),
			},
		},
	}
	integration := &models.Integration{Provider: models.IntegrationProviderFineract, PageSize: 10}

	totals, collectionErrors := fetchUpstreamTotals(context.Background(), client, integration)
	if len(collectionErrors) != 0 {
		t.Fatalf("collectionErrors = %v", collectionErrors)
	}
	if totals.Repayments != 2 {
		t.Fatalf("Repayments = %d, want 2 (one repayment, one recovery)", totals.Repayments)
	}
	if !totals.Repaid.Equal(dec(t, "10500")) {
		t.Fatalf("Repaid = %s, want 10500", totals.Repaid)
	}
}

func TestFetchUpstreamTotalsDegradesFailedCollection(t *testing.T) {
	client := &fakeUpstreamClient{
		system: models.SystemFineract,
		pages: map[string][]json.RawMessage{
			models.EntityTypeClient: {
				json.RawMessage(`{"id":1,"displayName":"Asha Mushi"}`),
			},
		},
		errs: map[string]error{
			models.EntityTypeLoan: errors.New("upstream 500"),
		},
	}
	integration := &models.Integration{Provider: models.IntegrationProviderFineract, PageSize: 10}

	totals, collectionErrors := fetchUpstreamTotals(context.Background(), client, integration)
	if totals.Clients != 1 {
		t.Fatalf("Clients = %d, want 1", totals.Clients)
	}
	if totals.Loans != 0 || !totals.Disbursed.IsZero() || !totals.Outstanding.IsZero() {
		t.Fatal("failed loan collection must degrade to empty totals")
	}
	if collectionErrors[models.EntityTypeLoan] == "" {
		t.Fatal("degraded collection must record its fetch error")
	}
}
