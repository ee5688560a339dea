package ledgersync

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// ResolveClient finds the canonical profile for an upstream client id.
// Resolution order: (1) direct external-reference lookup; (2) fallback
// through the staged raw payload's phone natural key. Unresolved parents
// skip the dependent record, placeholder parents are never created.
func ResolveClient(ctx context.Context, db *gorm.DB, system, ownerExternalId string) (*models.Client, error) {
	ref := BuildExternalRef(system, models.EntityTypeClient, ownerExternalId)

	var client models.Client
	err := db.WithContext(ctx).Where("external_reference_id = ?", ref).First(&client).Error
	if err == nil {
		return &client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newPersistenceError("client lookup failed", err)
	}

	phone, ok := phoneFromStaging(ctx, db, system, ownerExternalId)
	if !ok {
		return nil, newResolutionError("client %s not found for system %s", ownerExternalId, system)
	}

	err = db.WithContext(ctx).Where("normalized_phone = ? AND status = ?", phone, models.RecordStatusActive).
		Order("id").First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newResolutionError("client %s not found by reference or phone", ownerExternalId)
		}
		return nil, newPersistenceError("client phone lookup failed", err)
	}
	return &client, nil
}

// ResolveBorrowerByPhone matches the identity record by normalized phone,
// used to keep identity and profile convergent when only one side synced.
func ResolveBorrowerByPhone(ctx context.Context, db *gorm.DB, normalizedPhone string) (*models.Borrower, error) {
	if normalizedPhone == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var borrower models.Borrower
	err := db.WithContext(ctx).Where("normalized_phone = ?", normalizedPhone).
		Order("id").First(&borrower).Error
	if err != nil {
		return nil, err
	}
	return &borrower, nil
}

// ResolveLoan finds the canonical loan for an upstream loan id. Loans have
// no natural-key fallback; the reference either resolves or the dependent
// repayment is skipped.
func ResolveLoan(ctx context.Context, db *gorm.DB, system, loanExternalId string) (*models.Loan, error) {
	ref := BuildExternalRef(system, models.EntityTypeLoan, loanExternalId)

	var loan models.Loan
	err := db.WithContext(ctx).Where("external_reference_id = ?", ref).First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newResolutionError("loan %s not found for system %s", loanExternalId, system)
		}
		return nil, newPersistenceError("loan lookup failed", err)
	}
	return &loan, nil
}

func ResolveLoanByRef(ctx context.Context, db *gorm.DB, ref string) (*models.Loan, error) {
	var loan models.Loan
	err := db.WithContext(ctx).Where("external_reference_id = ?", ref).First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newResolutionError("loan ref %s not found", ref)
		}
		return nil, newPersistenceError("loan lookup failed", err)
	}
	return &loan, nil
}

// phoneFromStaging extracts a normalized phone from the staged raw payload
// for an upstream client id.
func phoneFromStaging(ctx context.Context, db *gorm.DB, system, externalId string) (string, bool) {
	record, err := models.GetRawRecord(ctx, db, system, models.EntityTypeClient, externalId)
	if err != nil {
		return "", false
	}
	payload, err := decodePayload(record.PayloadJSON)
	if err != nil {
		return "", false
	}

	var raw string
	switch system {
	case models.SystemLoanDisk:
		raw = pickString(payload, "borrower_mobile", "mobile", "phone", "phone_number")
	case models.SystemFineract:
		raw = pickString(payload, "mobileNo", "mobile", "phone")
	}
	return normalizeOrEmpty(raw)
}

func normalizeOrEmpty(raw string) (string, bool) {
	normalized, ok := utils.NormalizePhone(raw)
	if !ok {
		return "", false
	}
	return normalized, true
}
