package ledgersync

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// loanStatusMap collapses every observed upstream status vocabulary onto
// the four canonical values. Unrecognized tokens default to pending.
var loanStatusMap = map[string]string{
	"active":       models.LoanStatusActive,
	"open":         models.LoanStatusActive,
	"current":      models.LoanStatusActive,
	"disbursed":    models.LoanStatusActive,
	"restructured": models.LoanStatusActive,

	"pending":    models.LoanStatusPending,
	"approved":   models.LoanStatusPending,
	"processing": models.LoanStatusPending,

	"closed":     models.LoanStatusCompleted,
	"paid":       models.LoanStatusCompleted,
	"fully_paid": models.LoanStatusCompleted,
	"settled":    models.LoanStatusCompleted,
	"completed":  models.LoanStatusCompleted,
	"overpaid":   models.LoanStatusCompleted,

	"written_off": models.LoanStatusDefaulted,
	"default":     models.LoanStatusDefaulted,
	"defaulted":   models.LoanStatusDefaulted,
	"rejected":    models.LoanStatusDefaulted,
	"cancelled":   models.LoanStatusDefaulted,
}

func MapLoanStatus(token string) string {
	normalized := strings.ToLower(strings.TrimSpace(token))
	normalized = strings.TrimPrefix(normalized, "loanstatustype.")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, ".", "_")
	if mapped, ok := loanStatusMap[normalized]; ok {
		return mapped
	}
	return models.LoanStatusPending
}

var paymentMethodMap = map[string]string{
	"mpesa":        models.PaymentMethodMobileMoney,
	"m-pesa":       models.PaymentMethodMobileMoney,
	"m_pesa":       models.PaymentMethodMobileMoney,
	"tigo_pesa":    models.PaymentMethodMobileMoney,
	"tigopesa":     models.PaymentMethodMobileMoney,
	"airtel_money": models.PaymentMethodMobileMoney,
	"mobile_money": models.PaymentMethodMobileMoney,
	"mobile":       models.PaymentMethodMobileMoney,

	"bank":          models.PaymentMethodBankTransfer,
	"bank_transfer": models.PaymentMethodBankTransfer,
	"transfer":      models.PaymentMethodBankTransfer,

	"check":  models.PaymentMethodCheque,
	"cheque": models.PaymentMethodCheque,

	"cash": models.PaymentMethodCash,
}

func MapPaymentMethod(token string) string {
	normalized := strings.ToLower(strings.TrimSpace(token))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if mapped, ok := paymentMethodMap[normalized]; ok {
		return mapped
	}
	return models.PaymentMethodCash
}

// ExtractExternalId pulls the upstream id for a payload independent of
// full transformation, so raw staging happens even for records that later
// fail validation.
func ExtractExternalId(system, entityType string, payload map[string]interface{}) string {
	switch system {
	case models.SystemLoanDisk:
		switch entityType {
		case models.EntityTypeClient:
			return pickString(payload, "borrower_id", "id")
		case models.EntityTypeLoan:
			return pickString(payload, "loan_id", "id")
		case models.EntityTypeRepayment:
			return pickString(payload, "repayment_id", "id")
		}
	case models.SystemFineract:
		switch entityType {
		case models.EntityTypeClient:
			return pickString(payload, "id", "clientId")
		case models.EntityTypeLoan:
			return pickString(payload, "id", "loanId")
		case models.EntityTypeRepayment:
			txId := pickString(payload, "id", "transactionId")
			loanId := pickString(payload, "loanId", "loan_id")
			if txId != "" && loanId != "" {
				return FineractTransactionId(loanId, txId)
			}
		}
	}
	return pickString(payload, "id")
}

// ClientTransform carries both materializations of one person. The two
// sides are written independently and converge through the phone key.
type ClientTransform struct {
	ExternalId string
	Borrower   models.Borrower
	Client     models.Client
	Deleted    bool
}

type LoanTransform struct {
	ExternalId      string
	OwnerExternalId string
	Loan            models.Loan
	Deleted         bool
}

type RepaymentTransform struct {
	ExternalId     string
	LoanExternalId string
	Repayment      models.Repayment
	Deleted        bool
}

type LoanProductTransform struct {
	ExternalId string
	Product    models.LoanProduct
}

type SavingsTransform struct {
	ExternalId      string
	OwnerExternalId string
	Account         models.SavingsAccount
}

// TransformClient maps a raw client/borrower payload onto the canonical
// identity + profile pair. The identity requires a name in at least one of
// three shapes: full name, first+last, or business name.
func TransformClient(system string, payload map[string]interface{}) (*ClientTransform, error) {
	var externalId, fullName, firstName, lastName, businessName string
	var phone, email, nationalId, address, gender string
	var dob *time.Time
	deleted := false

	switch system {
	case models.SystemLoanDisk:
		externalId = pickString(payload, "borrower_id", "id")
		fullName = pickString(payload, "borrower_fullname", "full_name", "name")
		firstName = pickString(payload, "borrower_firstname", "first_name")
		lastName = pickString(payload, "borrower_lastname", "last_name")
		businessName = pickString(payload, "borrower_business_name", "business_name")
		phone = pickString(payload, "borrower_mobile", "mobile", "phone", "phone_number")
		email = pickString(payload, "borrower_email", "email")
		nationalId = pickString(payload, "borrower_identity_number", "identity_number", "national_id")
		address = pickString(payload, "borrower_address", "address")
		gender = pickString(payload, "borrower_gender", "gender")
		dob = pickTime(payload, "borrower_dob", "dob", "date_of_birth")
		deleted = pickBool(payload, "is_deleted", "deleted")
	case models.SystemFineract:
		externalId = pickString(payload, "id", "clientId")
		fullName = pickString(payload, "displayName", "fullname", "full_name")
		firstName = pickString(payload, "firstname", "firstName")
		lastName = pickString(payload, "lastname", "lastName")
		phone = pickString(payload, "mobileNo", "mobile", "phone")
		email = pickString(payload, "emailAddress", "email")
		gender = fineractCodeValue(payload, "gender")
		dob = pickTime(payload, "dateOfBirth", "date_of_birth")
		nationalId = fineractNationalId(payload)
		if active, found := pickRaw(payload, "active"); found {
			if b, ok := active.(bool); ok && !b {
				deleted = true
			}
		}
	default:
		return nil, newValidationError("unknown system %q", system)
	}

	if externalId == "" {
		return nil, newValidationError("client payload has no upstream id")
	}
	if fullName == "" {
		composed := strings.TrimSpace(firstName + " " + lastName)
		if composed != "" {
			fullName = composed
		} else if businessName != "" {
			fullName = businessName
		}
	}
	if fullName == "" {
		return nil, newValidationError("client %s has no resolvable name", externalId)
	}
	// Malformed upstream emails are dropped, not stored.
	if email != "" && !utils.IsValidEmail(email) {
		email = ""
	}

	normalizedPhone, _ := utils.NormalizePhone(phone)
	ref := BuildExternalRef(system, models.EntityTypeClient, externalId)
	status := models.RecordStatusActive
	if deleted {
		status = models.RecordStatusInactive
	}

	return &ClientTransform{
		ExternalId: externalId,
		Deleted:    deleted,
		Borrower: models.Borrower{
			FullName:            fullName,
			Phone:               phone,
			NormalizedPhone:     normalizedPhone,
			NationalId:          nationalId,
			Status:              status,
			ExternalReferenceId: ref,
			SourceSystem:        system,
		},
		Client: models.Client{
			FirstName:           firstName,
			LastName:            lastName,
			FullName:            fullName,
			BusinessName:        businessName,
			Phone:               phone,
			NormalizedPhone:     normalizedPhone,
			Email:               email,
			NationalId:          nationalId,
			Address:             address,
			Gender:              gender,
			DateOfBirth:         dob,
			Status:              status,
			ExternalReferenceId: ref,
			SourceSystem:        system,
		},
	}, nil
}

// TransformLoan maps a raw loan payload. The owner is returned as an
// external reference for the resolver; an unresolvable owner skips the
// record later, never creates a placeholder parent.
func TransformLoan(system string, payload map[string]interface{}) (*LoanTransform, error) {
	var externalId, ownerId, statusToken, productId string
	var principal, interestRate, totalDue decimal.Decimal
	var termMonths, daysOverdue int
	var inArrears, isNPA, deleted bool
	var disbursedAt, maturityAt *time.Time

	switch system {
	case models.SystemLoanDisk:
		externalId = pickString(payload, "loan_id", "id")
		ownerId = pickString(payload, "borrower_id", "client_id")
		principal = pickDecimal(payload, "loan_principal_amount", "principal_amount", "principal", "amount")
		interestRate = pickDecimal(payload, "loan_interest_percentage", "interest_rate", "interest")
		termMonths = pickInt(payload, "loan_duration", "duration_months", "term")
		statusToken = pickString(payload, "loan_status", "status")
		totalDue = pickDecimal(payload, "loan_due_amount", "total_due", "due_amount")
		daysOverdue = pickInt(payload, "days_overdue", "overdue_days")
		inArrears = daysOverdue > 0 || pickBool(payload, "in_arrears")
		disbursedAt = pickTime(payload, "loan_released_date", "released_date", "disbursement_date")
		maturityAt = pickTime(payload, "loan_maturity_date", "maturity_date")
		productId = pickString(payload, "loan_product_id", "product_id")
		deleted = pickBool(payload, "is_deleted", "deleted")
	case models.SystemFineract:
		externalId = pickString(payload, "id", "loanId")
		ownerId = pickString(payload, "clientId", "client_id")
		principal = pickDecimal(payload, "principal", "approvedPrincipal", "proposedPrincipal")
		interestRate = pickDecimal(payload, "interestRatePerPeriod", "annualInterestRate")
		termMonths = pickInt(payload, "numberOfRepayments", "termFrequency")
		statusToken = fineractStatusToken(payload)
		isNPA = pickBool(payload, "isNPA")
		inArrears = pickBool(payload, "inArrears", "isLoanInArrears")
		daysOverdue = fineractDaysOverdue(payload)
		productId = pickString(payload, "loanProductId", "productId")
		if summary := pickMap(payload, "summary"); summary != nil {
			totalDue = pickDecimal(summary, "totalExpectedRepayment", "totalRepaymentExpected")
		}
		if timeline := pickMap(payload, "timeline"); timeline != nil {
			disbursedAt = pickTime(timeline, "actualDisbursementDate", "expectedDisbursementDate")
			maturityAt = pickTime(timeline, "expectedMaturityDate", "actualMaturityDate")
		}
	default:
		return nil, newValidationError("unknown system %q", system)
	}

	if externalId == "" {
		return nil, newValidationError("loan payload has no upstream id")
	}
	if !deleted && !principal.IsPositive() {
		return nil, newValidationError("loan %s has non-positive principal", externalId)
	}
	if ownerId == "" {
		return nil, newResolutionError("loan %s has no owning client id", externalId)
	}

	status := MapLoanStatus(statusToken)
	if isNPA {
		status = models.LoanStatusDefaulted
	}
	if daysOverdue > 0 {
		inArrears = true
	}

	var productRef string
	if productId != "" {
		productRef = BuildExternalRef(system, models.EntityTypeLoanProduct, productId)
	}

	return &LoanTransform{
		ExternalId:      externalId,
		OwnerExternalId: ownerId,
		Deleted:         deleted,
		Loan: models.Loan{
			ProductRef:          productRef,
			Principal:           principal,
			InterestRate:        interestRate,
			TermMonths:          termMonths,
			Status:              status,
			TotalDue:            totalDue,
			DaysOverdue:         daysOverdue,
			InArrears:           inArrears,
			IsNPA:               isNPA,
			DisbursedAt:         disbursedAt,
			MaturityAt:          maturityAt,
			ExternalReferenceId: BuildExternalRef(system, models.EntityTypeLoan, externalId),
			SourceSystem:        system,
		},
	}, nil
}

// isRepaymentTransaction reports whether a transaction payload counts
// toward repayment totals. LoanDisk repayments carry no type object and
// always count; Fineract puts disbursements, fees and waivers on the same
// loan-transaction feed, and only repayment and recovery types count.
func isRepaymentTransaction(payload map[string]interface{}) bool {
	txType := pickMap(payload, "type")
	if txType == nil {
		return true
	}
	value := strings.ToLower(pickString(txType, "value", "code"))
	if value == "" {
		return true
	}
	return strings.Contains(value, "repayment") || strings.Contains(value, "recovery")
}

// TransformRepayment maps a raw repayment/transaction payload.
func TransformRepayment(system string, payload map[string]interface{}) (*RepaymentTransform, error) {
	var externalId, loanId, methodToken, receipt string
	var amount decimal.Decimal
	var paidAt *time.Time
	var reversed, deleted bool

	switch system {
	case models.SystemLoanDisk:
		externalId = pickString(payload, "repayment_id", "id")
		loanId = pickString(payload, "loan_id")
		amount = pickDecimal(payload, "repayment_amount", "amount_paid", "amount")
		methodToken = pickString(payload, "repayment_method", "payment_method", "method")
		receipt = pickString(payload, "receipt_number", "receipt", "reference")
		paidAt = pickTime(payload, "repayment_date", "collection_date", "paid_at", "date")
		reversed = pickBool(payload, "is_reversed", "reversed")
		deleted = pickBool(payload, "is_deleted", "deleted")
	case models.SystemFineract:
		txId := pickString(payload, "id", "transactionId")
		loanId = pickString(payload, "loanId", "loan_id")
		if txId != "" && loanId != "" {
			externalId = FineractTransactionId(loanId, txId)
		}
		amount = pickDecimal(payload, "amount", "netDisbursalAmount")
		paidAt = pickTime(payload, "date", "submittedOnDate")
		reversed = pickBool(payload, "manuallyReversed", "reversed")
		receipt = pickString(payload, "receiptNumber", "externalId")
		if !isRepaymentTransaction(payload) {
			return nil, newValidationError("transaction %s is not a repayment", externalId)
		}
		if paymentDetail := pickMap(payload, "paymentDetailData"); paymentDetail != nil {
			if paymentType := pickMap(paymentDetail, "paymentType"); paymentType != nil {
				methodToken = pickString(paymentType, "name")
			}
			if receipt == "" {
				receipt = pickString(paymentDetail, "receiptNumber")
			}
		}
	default:
		return nil, newValidationError("unknown system %q", system)
	}

	if externalId == "" {
		return nil, newValidationError("repayment payload has no upstream id")
	}
	if loanId == "" {
		return nil, newResolutionError("repayment %s has no owning loan id", externalId)
	}
	if !deleted && !amount.IsPositive() {
		return nil, newValidationError("repayment %s has non-positive amount", externalId)
	}

	return &RepaymentTransform{
		ExternalId:     externalId,
		LoanExternalId: loanId,
		Deleted:        deleted,
		Repayment: models.Repayment{
			AmountPaid:          amount,
			Method:              MapPaymentMethod(methodToken),
			ReceiptReference:    receipt,
			PaidAt:              paidAt,
			Reversed:            reversed,
			ExternalReferenceId: BuildExternalRef(system, models.EntityTypeRepayment, externalId),
			SourceSystem:        system,
		},
	}, nil
}

func TransformLoanProduct(system string, payload map[string]interface{}) (*LoanProductTransform, error) {
	externalId := pickString(payload, "id", "product_id")
	if externalId == "" {
		return nil, newValidationError("loan product payload has no upstream id")
	}
	name := pickString(payload, "name", "product_name")
	if name == "" {
		return nil, newValidationError("loan product %s has no name", externalId)
	}

	active := true
	if v, found := pickRaw(payload, "active", "status"); found {
		if b, ok := v.(bool); ok {
			active = b
		}
	}

	return &LoanProductTransform{
		ExternalId: externalId,
		Product: models.LoanProduct{
			Name:                name,
			ShortName:           pickString(payload, "shortName", "short_name"),
			Currency:            fineractCodeValue(payload, "currency"),
			InterestRate:        pickDecimal(payload, "interestRatePerPeriod", "annualInterestRate", "interest_rate"),
			MinPrincipal:        pickDecimal(payload, "minPrincipal", "min_principal"),
			MaxPrincipal:        pickDecimal(payload, "maxPrincipal", "max_principal"),
			TermMonths:          pickInt(payload, "numberOfRepayments", "term_months"),
			Active:              active,
			ExternalReferenceId: BuildExternalRef(system, models.EntityTypeLoanProduct, externalId),
			SourceSystem:        system,
		},
	}, nil
}

func TransformSavingsAccount(system string, payload map[string]interface{}) (*SavingsTransform, error) {
	externalId := pickString(payload, "id", "savingsId", "account_id")
	if externalId == "" {
		return nil, newValidationError("savings payload has no upstream id")
	}
	ownerId := pickString(payload, "clientId", "client_id")

	status := models.RecordStatusActive
	if statusMap := pickMap(payload, "status"); statusMap != nil {
		if active, found := pickRaw(statusMap, "active"); found {
			if b, ok := active.(bool); ok && !b {
				status = models.RecordStatusInactive
			}
		}
	}

	balance := pickDecimal(payload, "accountBalance", "balance")
	if summary := pickMap(payload, "summary"); summary != nil && balance.IsZero() {
		balance = pickDecimal(summary, "accountBalance", "availableBalance")
	}

	return &SavingsTransform{
		ExternalId:      externalId,
		OwnerExternalId: ownerId,
		Account: models.SavingsAccount{
			AccountNo:           pickString(payload, "accountNo", "account_no"),
			Status:              status,
			Balance:             balance,
			Currency:            fineractCodeValue(payload, "currency"),
			ExternalReferenceId: BuildExternalRef(system, models.EntityTypeSavingsAccount, externalId),
			SourceSystem:        system,
		},
	}, nil
}

// fineractStatusToken extracts the status token from Fineract's status
// object, which carries value ("Active"), code ("loanStatusType.active")
// and boolean flags.
func fineractStatusToken(payload map[string]interface{}) string {
	v, found := pickRaw(payload, "status")
	if !found {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if token := pickString(t, "value", "code"); token != "" {
			return token
		}
		if pickBool(t, "active") {
			return "active"
		}
		if pickBool(t, "closed") || pickBool(t, "closedObligationsMet") {
			return "closed"
		}
		if pickBool(t, "writtenOff") || pickBool(t, "chargedOff") {
			return "written_off"
		}
		if pickBool(t, "pendingApproval", "waitingForDisbursal") {
			return "pending"
		}
	}
	return ""
}

// fineractCodeValue reads Fineract's {name|code|value} code objects, also
// accepting a bare string.
func fineractCodeValue(payload map[string]interface{}, key string) string {
	v, found := pickRaw(payload, key)
	if !found {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		return pickString(t, "code", "name", "value", "displaySymbol")
	}
	return ""
}

func fineractDaysOverdue(payload map[string]interface{}) int {
	if days := pickInt(payload, "daysOverdue", "overdueDays"); days > 0 {
		return days
	}
	if summary := pickMap(payload, "summary"); summary != nil {
		if since := pickTime(summary, "overdueSinceDate"); since != nil {
			days := int(time.Since(*since).Hours() / 24)
			if days > 0 {
				return days
			}
		}
	}
	if delinquent := pickMap(payload, "delinquent"); delinquent != nil {
		if days := pickInt(delinquent, "delinquentDays", "pastDueDays"); days > 0 {
			return days
		}
	}
	return 0
}

// fineractNationalId scans the identifiers array for a national-id style
// document and returns its key.
func fineractNationalId(payload map[string]interface{}) string {
	identifiers := pickSlice(payload, "identifiers", "clientIdentifiers")
	for _, item := range identifiers {
		identifier, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		docKey := pickString(identifier, "documentKey", "document_key")
		if docKey == "" {
			continue
		}
		docType := ""
		if dt := pickMap(identifier, "documentType"); dt != nil {
			docType = strings.ToLower(pickString(dt, "name"))
		}
		if docType == "" || strings.Contains(docType, "national") || strings.Contains(docType, "id") {
			return docKey
		}
	}
	return ""
}
