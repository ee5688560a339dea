package ledgersync

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/imfsl/ledger_backend/models"
)

func TestMapLoanStatusTotality(t *testing.T) {
	cases := map[string]string{
		"active":                models.LoanStatusActive,
		"Open":                  models.LoanStatusActive,
		"CURRENT":               models.LoanStatusActive,
		"disbursed":             models.LoanStatusActive,
		"restructured":          models.LoanStatusActive,
		"pending":               models.LoanStatusPending,
		"approved":              models.LoanStatusPending,
		"processing":            models.LoanStatusPending,
		"closed":                models.LoanStatusCompleted,
		"paid":                  models.LoanStatusCompleted,
		"fully_paid":            models.LoanStatusCompleted,
		"settled":               models.LoanStatusCompleted,
		"completed":             models.LoanStatusCompleted,
		"written_off":           models.LoanStatusDefaulted,
		"default":               models.LoanStatusDefaulted,
		"defaulted":             models.LoanStatusDefaulted,
		"rejected":              models.LoanStatusDefaulted,
		"cancelled":             models.LoanStatusDefaulted,
		"loanStatusType.active": models.LoanStatusActive,
		"Written Off":           models.LoanStatusDefaulted,
	}
	for token, want := range cases {
		if got := MapLoanStatus(token); got != want {
			t.Fatalf("MapLoanStatus(%q) = %q, want %q", token, got, want)
		}
	}
}

func TestMapLoanStatusUnknownDefaultsToPending(t *testing.T) {
	for _, token := range []string{"", "frobnicated", "UNKNOWN-42"} {
		if got := MapLoanStatus(token); got != models.LoanStatusPending {
			t.Fatalf("MapLoanStatus(%q) = %q, want pending", token, got)
		}
	}
}

func TestMapPaymentMethod(t *testing.T) {
	cases := map[string]string{
		"mpesa":          models.PaymentMethodMobileMoney,
		"M-Pesa":         models.PaymentMethodMobileMoney,
		"Tigo Pesa":      models.PaymentMethodMobileMoney,
		"airtel_money":   models.PaymentMethodMobileMoney,
		"bank":           models.PaymentMethodBankTransfer,
		"check":          models.PaymentMethodCheque,
		"cheque":         models.PaymentMethodCheque,
		"cash":           models.PaymentMethodCash,
		"":               models.PaymentMethodCash,
		"carrier-pigeon": models.PaymentMethodCash,
	}
	for token, want := range cases {
		if got := MapPaymentMethod(token); got != want {
			t.Fatalf("MapPaymentMethod(%q) = %q, want %q", token, got, want)
		}
	}
}

func TestTransformClientLoanDisk(t *testing.T) {
	payload := mustDecode(t, `{
		"borrower_id": 77,
		"borrower_firstname": "Asha",
		"borrower_lastname": "Mushi",
		"borrower_mobile": "+255 754 123 456",
		"borrower_identity_number": "NIDA-1",
		"borrower_business_name": "Asha Traders"
	}`)

	got, err := TransformClient(models.SystemLoanDisk, payload)
	if err != nil {
		t.Fatalf("TransformClient: %v", err)
	}
	if got.ExternalId != "77" {
		t.Fatalf("ExternalId = %q", got.ExternalId)
	}
	if got.Client.ExternalReferenceId != "LD-CLIENT-77" {
		t.Fatalf("ref = %q", got.Client.ExternalReferenceId)
	}
	if got.Client.FullName != "Asha Mushi" {
		t.Fatalf("FullName = %q", got.Client.FullName)
	}
	if got.Borrower.NormalizedPhone != "+255754123456" {
		t.Fatalf("NormalizedPhone = %q", got.Borrower.NormalizedPhone)
	}
	if got.Borrower.NormalizedPhone != got.Client.NormalizedPhone {
		t.Fatal("identity and profile phone keys diverge")
	}
	if got.Client.Status != models.RecordStatusActive {
		t.Fatalf("Status = %q", got.Client.Status)
	}
}

func TestTransformClientBusinessNameFallback(t *testing.T) {
	payload := mustDecode(t, `{"borrower_id": "5", "borrower_business_name": "Duka Lako"}`)
	got, err := TransformClient(models.SystemLoanDisk, payload)
	if err != nil {
		t.Fatalf("TransformClient: %v", err)
	}
	if got.Client.FullName != "Duka Lako" {
		t.Fatalf("FullName = %q", got.Client.FullName)
	}
}

func TestTransformClientDropsMalformedEmail(t *testing.T) {
	payload := mustDecode(t, `{"borrower_id": "6", "borrower_fullname": "Juma Said", "borrower_email": "not-an-email"}`)
	got, err := TransformClient(models.SystemLoanDisk, payload)
	if err != nil {
		t.Fatalf("TransformClient: %v", err)
	}
	if got.Client.Email != "" {
		t.Fatalf("Email = %q, want malformed address dropped", got.Client.Email)
	}

	payload = mustDecode(t, `{"borrower_id": "6", "borrower_fullname": "Juma Said", "borrower_email": "juma@example.com"}`)
	got, err = TransformClient(models.SystemLoanDisk, payload)
	if err != nil {
		t.Fatalf("TransformClient: %v", err)
	}
	if got.Client.Email != "juma@example.com" {
		t.Fatalf("Email = %q", got.Client.Email)
	}
}

func TestTransformClientRequiresName(t *testing.T) {
	payload := mustDecode(t, `{"borrower_id": "5", "borrower_mobile": "0754123456"}`)
	_, err := TransformClient(models.SystemLoanDisk, payload)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if classify(err) != models.SyncErrorValidation {
		t.Fatalf("class = %q", classify(err))
	}
}

func TestTransformClientFineract(t *testing.T) {
	payload := mustDecode(t, `{
		"id": 31,
		"displayName": "Juma Kessy",
		"mobileNo": "0754000111",
		"active": true,
		"dateOfBirth": [1985, 2, 28],
		"identifiers": [{"documentKey": "NIDA-XYZ", "documentType": {"name": "National ID"}}]
	}`)
	got, err := TransformClient(models.SystemFineract, payload)
	if err != nil {
		t.Fatalf("TransformClient: %v", err)
	}
	if got.Client.ExternalReferenceId != "FN-CLIENT-31" {
		t.Fatalf("ref = %q", got.Client.ExternalReferenceId)
	}
	if got.Client.NationalId != "NIDA-XYZ" {
		t.Fatalf("NationalId = %q", got.Client.NationalId)
	}
	if got.Client.DateOfBirth == nil || got.Client.DateOfBirth.Year() != 1985 {
		t.Fatalf("DateOfBirth = %v", got.Client.DateOfBirth)
	}
}

func TestTransformClientFineractInactive(t *testing.T) {
	payload := mustDecode(t, `{"id": 31, "displayName": "Juma Kessy", "active": false}`)
	got, err := TransformClient(models.SystemFineract, payload)
	if err != nil {
		t.Fatalf("TransformClient: %v", err)
	}
	if !got.Deleted || got.Client.Status != models.RecordStatusInactive {
		t.Fatalf("Deleted = %v, Status = %q", got.Deleted, got.Client.Status)
	}
}

func TestTransformLoanLoanDisk(t *testing.T) {
	payload := mustDecode(t, `{
		"loan_id": "900",
		"borrower_id": "77",
		"loan_principal_amount": "100000",
		"loan_interest_percentage": "12.5",
		"loan_duration": 12,
		"loan_status": "active",
		"loan_due_amount": "112500"
	}`)
	got, err := TransformLoan(models.SystemLoanDisk, payload)
	if err != nil {
		t.Fatalf("TransformLoan: %v", err)
	}
	if got.OwnerExternalId != "77" {
		t.Fatalf("OwnerExternalId = %q", got.OwnerExternalId)
	}
	if got.Loan.Status != models.LoanStatusActive {
		t.Fatalf("Status = %q", got.Loan.Status)
	}
	if !got.Loan.TotalDue.Equal(decimal.RequireFromString("112500")) {
		t.Fatalf("TotalDue = %s", got.Loan.TotalDue)
	}
}

func TestTransformLoanRequiresPositivePrincipal(t *testing.T) {
	payload := mustDecode(t, `{"loan_id": "900", "borrower_id": "77", "loan_principal_amount": "0"}`)
	_, err := TransformLoan(models.SystemLoanDisk, payload)
	if err == nil || classify(err) != models.SyncErrorValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransformLoanMissingOwnerIsResolutionError(t *testing.T) {
	payload := mustDecode(t, `{"loan_id": "900", "loan_principal_amount": "1000"}`)
	_, err := TransformLoan(models.SystemLoanDisk, payload)
	if err == nil || classify(err) != models.SyncErrorResolution {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

func TestTransformLoanFineractNPAForcesDefault(t *testing.T) {
	payload := mustDecode(t, `{
		"id": 12,
		"clientId": 31,
		"principal": 500000,
		"status": {"value": "Active", "code": "loanStatusType.active"},
		"isNPA": true,
		"summary": {"totalExpectedRepayment": 560000}
	}`)
	got, err := TransformLoan(models.SystemFineract, payload)
	if err != nil {
		t.Fatalf("TransformLoan: %v", err)
	}
	if got.Loan.Status != models.LoanStatusDefaulted {
		t.Fatalf("Status = %q, want defaulted for NPA", got.Loan.Status)
	}
	if !got.Loan.IsNPA {
		t.Fatal("IsNPA not carried")
	}
}

func TestTransformLoanFineractStatusFlags(t *testing.T) {
	payload := mustDecode(t, `{
		"id": 12, "clientId": 31, "principal": 1000,
		"status": {"closedObligationsMet": true}
	}`)
	got, err := TransformLoan(models.SystemFineract, payload)
	if err != nil {
		t.Fatalf("TransformLoan: %v", err)
	}
	if got.Loan.Status != models.LoanStatusCompleted {
		t.Fatalf("Status = %q", got.Loan.Status)
	}
}

func TestTransformRepaymentLoanDisk(t *testing.T) {
	payload := mustDecode(t, `{
		"repayment_id": "r1",
		"loan_id": "900",
		"repayment_amount": "40000",
		"repayment_method": "MPESA",
		"receipt_number": "RCP-1",
		"repayment_date": "2024-03-09"
	}`)
	got, err := TransformRepayment(models.SystemLoanDisk, payload)
	if err != nil {
		t.Fatalf("TransformRepayment: %v", err)
	}
	if got.Repayment.Method != models.PaymentMethodMobileMoney {
		t.Fatalf("Method = %q", got.Repayment.Method)
	}
	if got.LoanExternalId != "900" {
		t.Fatalf("LoanExternalId = %q", got.LoanExternalId)
	}
	if got.Repayment.Reversed {
		t.Fatal("Reversed should default false")
	}
}

func TestTransformRepaymentRequiresPositiveAmount(t *testing.T) {
	payload := mustDecode(t, `{"repayment_id": "r1", "loan_id": "900", "repayment_amount": "-5"}`)
	_, err := TransformRepayment(models.SystemLoanDisk, payload)
	if err == nil || classify(err) != models.SyncErrorValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransformRepaymentFineractTransaction(t *testing.T) {
	payload := mustDecode(t, `{
		"id": 345,
		"loanId": "12",
		"amount": 70000,
		"date": [2024, 3, 9],
		"type": {"value": "Repayment", "code": "loanTransactionType.repayment"},
		"manuallyReversed": false,
		"paymentDetailData": {"paymentType": {"name": "M-Pesa"}, "receiptNumber": "X9"}
	}`)
	got, err := TransformRepayment(models.SystemFineract, payload)
	if err != nil {
		t.Fatalf("TransformRepayment: %v", err)
	}
	if got.ExternalId != "12:345" {
		t.Fatalf("ExternalId = %q", got.ExternalId)
	}
	if got.Repayment.Method != models.PaymentMethodMobileMoney {
		t.Fatalf("Method = %q", got.Repayment.Method)
	}
	if got.Repayment.ReceiptReference != "X9" {
		t.Fatalf("Receipt = %q", got.Repayment.ReceiptReference)
	}
}

func TestTransformRepaymentFineractNonRepaymentTypeSkipped(t *testing.T) {
	payload := mustDecode(t, `{
		"id": 346, "loanId": "12", "amount": 500,
		"type": {"value": "Disbursement"}
	}`)
	_, err := TransformRepayment(models.SystemFineract, payload)
	if err == nil || classify(err) != models.SyncErrorValidation {
		t.Fatalf("expected validation skip, got %v", err)
	}
}

func TestTransformLoanProduct(t *testing.T) {
	payload := mustDecode(t, `{
		"id": 3,
		"name": "Biashara Loan",
		"shortName": "BSH",
		"currency": {"code": "TZS"},
		"interestRatePerPeriod": 2.5,
		"numberOfRepayments": 12
	}`)
	got, err := TransformLoanProduct(models.SystemFineract, payload)
	if err != nil {
		t.Fatalf("TransformLoanProduct: %v", err)
	}
	if got.Product.ExternalReferenceId != "FN-PRODUCT-3" {
		t.Fatalf("ref = %q", got.Product.ExternalReferenceId)
	}
	if got.Product.Currency != "TZS" {
		t.Fatalf("Currency = %q", got.Product.Currency)
	}
}

func TestTransformSavingsAccount(t *testing.T) {
	payload := mustDecode(t, `{
		"id": 8,
		"clientId": 31,
		"accountNo": "000000008",
		"status": {"active": true},
		"summary": {"accountBalance": 25000}
	}`)
	got, err := TransformSavingsAccount(models.SystemFineract, payload)
	if err != nil {
		t.Fatalf("TransformSavingsAccount: %v", err)
	}
	if got.Account.ExternalReferenceId != "FN-SAV-8" {
		t.Fatalf("ref = %q", got.Account.ExternalReferenceId)
	}
	if !got.Account.Balance.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("Balance = %s", got.Account.Balance)
	}
}

func TestExtractExternalId(t *testing.T) {
	ld := mustDecode(t, `{"borrower_id": 9}`)
	if got := ExtractExternalId(models.SystemLoanDisk, models.EntityTypeClient, ld); got != "9" {
		t.Fatalf("ExtractExternalId = %q", got)
	}
	fn := mustDecode(t, `{"id": 345, "loanId": "12"}`)
	if got := ExtractExternalId(models.SystemFineract, models.EntityTypeRepayment, fn); got != "12:345" {
		t.Fatalf("ExtractExternalId = %q", got)
	}
}
