package ledgersync

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/config"
	"bitbucket.org/imfsl/ledger_backend/models"
)

// isDuplicateKeyErr detects a unique-key race between two deliveries of
// the same upstream record. The loser folds into a replace.
func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// UpsertClient dual-writes the identity and profile records. The two
// writes are independent: one side failing is logged and does not roll
// back the other, the next sync converges them. The profile row carries
// the canonical local id.
func UpsertClient(ctx context.Context, db *gorm.DB, t *ClientTransform) (action string, localId *uint, err error) {
	logger := config.GetLogger()

	borrowerId, borrowerErr := upsertBorrower(ctx, db, t)
	if borrowerErr != nil {
		config.LogError(logger, "ledgersync", "UpsertClient", "identity write failed", t.ExternalId, borrowerErr)
	}

	var existing models.Client
	found := true
	err = db.WithContext(ctx).Where("external_reference_id = ?", t.Client.ExternalReferenceId).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, newPersistenceError("client lookup failed", err)
		}
		found = false
	}

	row := t.Client
	now := time.Now().UTC()
	row.LastSyncedAt = &now
	if borrowerId != 0 {
		row.BorrowerId = &borrowerId
	}
	if found {
		// Full replace, preserving only identity linkage and derived risk.
		row.ID = existing.ID
		row.CreditScore = existing.CreditScore
		row.RiskLevel = existing.RiskLevel
		if row.BorrowerId == nil {
			row.BorrowerId = existing.BorrowerId
		}
		row.CreatedAt = existing.CreatedAt
	}

	if err := db.WithContext(ctx).Save(&row).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return retryClientReplace(ctx, db, t, borrowerId)
		}
		return "", nil, newPersistenceError("client write failed", err)
	}

	if t.Deleted {
		if err := DeactivateClientCascade(ctx, db, row.ID); err != nil {
			return "", nil, err
		}
		return models.SyncItemActionDeleted, &row.ID, nil
	}
	if found {
		return models.SyncItemActionUpdated, &row.ID, nil
	}
	return models.SyncItemActionCreated, &row.ID, nil
}

func retryClientReplace(ctx context.Context, db *gorm.DB, t *ClientTransform, borrowerId uint) (string, *uint, error) {
	var existing models.Client
	if err := db.WithContext(ctx).Where("external_reference_id = ?", t.Client.ExternalReferenceId).
		First(&existing).Error; err != nil {
		return "", nil, newPersistenceError("client replace after duplicate key failed", err)
	}
	row := t.Client
	row.ID = existing.ID
	row.CreditScore = existing.CreditScore
	row.RiskLevel = existing.RiskLevel
	row.CreatedAt = existing.CreatedAt
	if borrowerId != 0 {
		row.BorrowerId = &borrowerId
	} else {
		row.BorrowerId = existing.BorrowerId
	}
	now := time.Now().UTC()
	row.LastSyncedAt = &now
	if err := db.WithContext(ctx).Save(&row).Error; err != nil {
		return "", nil, newPersistenceError("client replace after duplicate key failed", err)
	}
	return models.SyncItemActionUpdated, &row.ID, nil
}

func upsertBorrower(ctx context.Context, db *gorm.DB, t *ClientTransform) (uint, error) {
	var existing models.Borrower
	err := db.WithContext(ctx).Where("external_reference_id = ?", t.Borrower.ExternalReferenceId).
		First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	// Converge on the phone natural key when the reference never synced.
	if errors.Is(err, gorm.ErrRecordNotFound) && t.Borrower.NormalizedPhone != "" {
		if byPhone, phoneErr := ResolveBorrowerByPhone(ctx, db, t.Borrower.NormalizedPhone); phoneErr == nil {
			existing = *byPhone
			err = nil
		}
	}

	row := t.Borrower
	now := time.Now().UTC()
	row.LastSyncedAt = &now
	if err == nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	}
	if saveErr := db.WithContext(ctx).Save(&row).Error; saveErr != nil {
		if isDuplicateKeyErr(saveErr) {
			if refetchErr := db.WithContext(ctx).
				Where("external_reference_id = ?", t.Borrower.ExternalReferenceId).
				First(&existing).Error; refetchErr == nil {
				row.ID = existing.ID
				row.CreatedAt = existing.CreatedAt
				if retryErr := db.WithContext(ctx).Save(&row).Error; retryErr == nil {
					return row.ID, nil
				}
			}
		}
		return 0, saveErr
	}
	return row.ID, nil
}

// DeactivateClientCascade applies the deactivation policy: the identity
// and profile go inactive and any pending or active loans they hold
// transition to defaulted.
func DeactivateClientCascade(ctx context.Context, db *gorm.DB, clientId uint) error {
	var client models.Client
	if err := db.WithContext(ctx).First(&client, clientId).Error; err != nil {
		return newPersistenceError("client load for cascade failed", err)
	}

	if err := db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", clientId).
		Update("status", models.RecordStatusInactive).Error; err != nil {
		return newPersistenceError("client deactivation failed", err)
	}
	if client.BorrowerId != nil {
		if err := db.WithContext(ctx).Model(&models.Borrower{}).Where("id = ?", *client.BorrowerId).
			Update("status", models.RecordStatusInactive).Error; err != nil {
			return newPersistenceError("borrower deactivation failed", err)
		}
	}
	err := db.WithContext(ctx).Model(&models.Loan{}).
		Where("client_id = ? AND status IN ?", clientId,
			[]string{models.LoanStatusPending, models.LoanStatusActive}).
		Update("status", models.LoanStatusDefaulted).Error
	if err != nil {
		return newPersistenceError("loan cascade failed", err)
	}
	return nil
}

// DeleteClientByExternalRef resolves an explicit delete that carries only
// the upstream id and applies the deactivation cascade to the existing
// row. A reference that never synced is an idempotent no-op.
func DeleteClientByExternalRef(ctx context.Context, db *gorm.DB, ref string) (string, *uint, error) {
	var existing models.Client
	if err := db.WithContext(ctx).Where("external_reference_id = ?", ref).
		First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SyncItemActionDeleted, nil, nil
		}
		return "", nil, newPersistenceError("client lookup failed", err)
	}
	if err := DeactivateClientCascade(ctx, db, existing.ID); err != nil {
		return "", nil, err
	}
	return models.SyncItemActionDeleted, &existing.ID, nil
}

// DeleteLoanByExternalRef soft-deletes by reference: the loan row stays
// and transitions to defaulted.
func DeleteLoanByExternalRef(ctx context.Context, db *gorm.DB, ref string) (string, *uint, error) {
	var existing models.Loan
	if err := db.WithContext(ctx).Where("external_reference_id = ?", ref).
		First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SyncItemActionDeleted, nil, nil
		}
		return "", nil, newPersistenceError("loan lookup failed", err)
	}
	if err := db.WithContext(ctx).Model(&models.Loan{}).Where("id = ?", existing.ID).
		Update("status", models.LoanStatusDefaulted).Error; err != nil {
		return "", nil, newPersistenceError("loan soft delete failed", err)
	}
	return models.SyncItemActionDeleted, &existing.ID, nil
}

// DeleteRepaymentByExternalRef hard-deletes by reference. The existing
// row names its owning loan, so the recompute needs nothing beyond the
// reference itself.
func DeleteRepaymentByExternalRef(ctx context.Context, db *gorm.DB, ref string) (string, *uint, error) {
	var existing models.Repayment
	if err := db.WithContext(ctx).Where("external_reference_id = ?", ref).
		First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SyncItemActionDeleted, nil, nil
		}
		return "", nil, newPersistenceError("repayment lookup failed", err)
	}
	if err := db.WithContext(ctx).Delete(&models.Repayment{}, existing.ID).Error; err != nil {
		return "", nil, newPersistenceError("repayment delete failed", err)
	}
	if err := RecomputeLoanBalance(ctx, db, existing.LoanId, nil); err != nil {
		return "", nil, err
	}
	return models.SyncItemActionDeleted, &existing.ID, nil
}

// UpsertLoan creates or fully replaces the canonical loan row. Derived
// fields (paid totals, outstanding, last payment date) survive the replace
// and are rewritten by the balance recompute; total_due is kept once set.
func UpsertLoan(ctx context.Context, db *gorm.DB, t *LoanTransform, owner *models.Client) (action string, localId *uint, err error) {
	var existing models.Loan
	found := true
	err = db.WithContext(ctx).Where("external_reference_id = ?", t.Loan.ExternalReferenceId).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, newPersistenceError("loan lookup failed", err)
		}
		found = false
	}

	if t.Deleted {
		if !found {
			return models.SyncItemActionDeleted, nil, nil
		}
		if err := db.WithContext(ctx).Model(&models.Loan{}).Where("id = ?", existing.ID).
			Update("status", models.LoanStatusDefaulted).Error; err != nil {
			return "", nil, newPersistenceError("loan soft delete failed", err)
		}
		return models.SyncItemActionDeleted, &existing.ID, nil
	}

	row := t.Loan
	row.ClientId = owner.ID
	now := time.Now().UTC()
	row.LastSyncedAt = &now
	if found {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		row.TotalPaid = existing.TotalPaid
		row.OutstandingBalance = existing.OutstandingBalance
		row.LastPaymentDate = existing.LastPaymentDate
		if existing.TotalDue.IsPositive() {
			row.TotalDue = existing.TotalDue
		}
	}

	if err := db.WithContext(ctx).Save(&row).Error; err != nil {
		if isDuplicateKeyErr(err) {
			if refetchErr := db.WithContext(ctx).
				Where("external_reference_id = ?", t.Loan.ExternalReferenceId).
				First(&existing).Error; refetchErr == nil {
				row.ID = existing.ID
				row.CreatedAt = existing.CreatedAt
				if retryErr := db.WithContext(ctx).Save(&row).Error; retryErr == nil {
					return models.SyncItemActionUpdated, &row.ID, nil
				}
			}
		}
		return "", nil, newPersistenceError("loan write failed", err)
	}

	if found {
		return models.SyncItemActionUpdated, &row.ID, nil
	}
	return models.SyncItemActionCreated, &row.ID, nil
}

// UpsertRepayment creates or replaces a repayment. A deletion is the one
// hard delete in the canonical store, modeling an upstream reversal, and
// always triggers a balance recompute on the owning loan.
func UpsertRepayment(ctx context.Context, db *gorm.DB, t *RepaymentTransform, loan *models.Loan) (action string, localId *uint, err error) {
	var existing models.Repayment
	found := true
	err = db.WithContext(ctx).Where("external_reference_id = ?", t.Repayment.ExternalReferenceId).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, newPersistenceError("repayment lookup failed", err)
		}
		found = false
	}

	if t.Deleted {
		if found {
			if err := db.WithContext(ctx).Delete(&models.Repayment{}, existing.ID).Error; err != nil {
				return "", nil, newPersistenceError("repayment delete failed", err)
			}
		}
		if err := RecomputeLoanBalance(ctx, db, loan.ID, nil); err != nil {
			return "", nil, err
		}
		if found {
			return models.SyncItemActionDeleted, &existing.ID, nil
		}
		return models.SyncItemActionDeleted, nil, nil
	}

	row := t.Repayment
	row.LoanId = loan.ID
	if found {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	}
	if err := db.WithContext(ctx).Save(&row).Error; err != nil {
		if isDuplicateKeyErr(err) {
			if refetchErr := db.WithContext(ctx).
				Where("external_reference_id = ?", t.Repayment.ExternalReferenceId).
				First(&existing).Error; refetchErr == nil {
				row.ID = existing.ID
				row.CreatedAt = existing.CreatedAt
				if retryErr := db.WithContext(ctx).Save(&row).Error; retryErr != nil {
					return "", nil, newPersistenceError("repayment write failed", retryErr)
				}
				found = true
			}
		} else {
			return "", nil, newPersistenceError("repayment write failed", err)
		}
	}

	var lastPaymentAt *time.Time
	if !row.Reversed {
		lastPaymentAt = row.PaidAt
	}
	if err := RecomputeLoanBalance(ctx, db, loan.ID, lastPaymentAt); err != nil {
		return "", nil, err
	}

	if found {
		return models.SyncItemActionUpdated, &row.ID, nil
	}
	return models.SyncItemActionCreated, &row.ID, nil
}

func UpsertLoanProduct(ctx context.Context, db *gorm.DB, t *LoanProductTransform) (action string, localId *uint, err error) {
	var existing models.LoanProduct
	found := true
	err = db.WithContext(ctx).Where("external_reference_id = ?", t.Product.ExternalReferenceId).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, newPersistenceError("loan product lookup failed", err)
		}
		found = false
	}

	row := t.Product
	if found {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	}
	if err := db.WithContext(ctx).Save(&row).Error; err != nil {
		return "", nil, newPersistenceError("loan product write failed", err)
	}
	if found {
		return models.SyncItemActionUpdated, &row.ID, nil
	}
	return models.SyncItemActionCreated, &row.ID, nil
}

func UpsertSavingsAccount(ctx context.Context, db *gorm.DB, t *SavingsTransform, owner *models.Client) (action string, localId *uint, err error) {
	var existing models.SavingsAccount
	found := true
	err = db.WithContext(ctx).Where("external_reference_id = ?", t.Account.ExternalReferenceId).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, newPersistenceError("savings lookup failed", err)
		}
		found = false
	}

	row := t.Account
	if owner != nil {
		row.ClientId = &owner.ID
	}
	now := time.Now().UTC()
	row.LastSyncedAt = &now
	if found {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if row.ClientId == nil {
			row.ClientId = existing.ClientId
		}
	}
	if err := db.WithContext(ctx).Save(&row).Error; err != nil {
		return "", nil, newPersistenceError("savings write failed", err)
	}
	if found {
		return models.SyncItemActionUpdated, &row.ID, nil
	}
	return models.SyncItemActionCreated, &row.ID, nil
}
