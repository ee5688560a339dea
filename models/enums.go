package models

// Upstream system codes. These appear as the first segment of every
// external reference key, so they must stay short and stable.
const (
	SystemLoanDisk = "LD"
	SystemFineract = "FN"
)

const (
	IntegrationProviderLoanDisk = "loandisk"
	IntegrationProviderFineract = "fineract"
)

const (
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusError        = "error"
)

// Canonical entity types. The second segment of an external reference key.
const (
	EntityTypeClient         = "CLIENT"
	EntityTypeLoan           = "LOAN"
	EntityTypeRepayment      = "REPAYMENT"
	EntityTypeLoanProduct    = "PRODUCT"
	EntityTypeSavingsAccount = "SAV"
)

const (
	RecordStatusActive   = "active"
	RecordStatusInactive = "inactive"
)

// Loan statuses form a closed vocabulary. Every upstream token maps onto
// exactly one of these.
const (
	LoanStatusPending   = "pending"
	LoanStatusActive    = "active"
	LoanStatusCompleted = "completed"
	LoanStatusDefaulted = "defaulted"
)

const (
	PaymentMethodCash         = "cash"
	PaymentMethodMobileMoney  = "mobile_money"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCheque       = "cheque"
)

const (
	RiskLevelLow    = "Low"
	RiskLevelMedium = "Medium"
	RiskLevelHigh   = "High"
)

const (
	SyncRunTypeWebhook   = "webhook"
	SyncRunTypeScheduled = "scheduled"
	SyncRunTypeManual    = "manual"
)

const (
	SyncRunStatusQueued    = "queued"
	SyncRunStatusRunning   = "running"
	SyncRunStatusCompleted = "completed"
	SyncRunStatusPartial   = "partial"
)

const (
	SyncItemActionCreated  = "created"
	SyncItemActionUpdated  = "updated"
	SyncItemActionDeleted  = "deleted"
	SyncItemActionUpserted = "upserted"
)

const (
	ReconciliationStatusReconciled       = "reconciled"
	ReconciliationStatusVarianceDetected = "variance_detected"
)

// Per-item error classes, recorded on the sync item for later replay.
const (
	SyncErrorValidation  = "validation"
	SyncErrorResolution  = "resolution"
	SyncErrorUpstream    = "upstream"
	SyncErrorPersistence = "persistence"
)
