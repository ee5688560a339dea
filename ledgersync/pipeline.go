package ledgersync

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/config"
	"bitbucket.org/imfsl/ledger_backend/models"
)

// RecordContext identifies one ingestion unit. Deleted marks an explicit
// delete action from the routing boundary (webhook), payloads can also
// carry their own deletion flags.
type RecordContext struct {
	System     string
	EntityType string
	RunId      uint
	Deleted    bool
}

type RecordResult struct {
	Action      string
	LocalId     *uint
	ExternalRef string
	ExternalId  string
}

// ProcessRecord runs one raw upstream record through the full pipeline:
// raw staging, parent resolution, transform, upsert, derived-state
// recompute, lineage. Each unit is processed to completion independently;
// the error return is already recorded on the sync item.
func ProcessRecord(ctx context.Context, db *gorm.DB, rc RecordContext, raw json.RawMessage) (RecordResult, error) {
	result, err := processRecord(ctx, db, rc, raw)

	action := result.Action
	if action == "" {
		action = models.SyncItemActionUpserted
	}
	RecordSyncItem(ctx, db, rc.RunId, rc.EntityType, result.ExternalId, action, result.LocalId, raw, err)

	if err != nil {
		config.LogError(config.GetLogger(), "ledgersync", "ProcessRecord",
			rc.System+"/"+rc.EntityType, result.ExternalId, err)
	}
	return result, err
}

func processRecord(ctx context.Context, db *gorm.DB, rc RecordContext, raw json.RawMessage) (RecordResult, error) {
	payload, err := decodePayload(raw)
	if err != nil {
		return RecordResult{}, newValidationError("payload is not a JSON object: %v", err)
	}

	if rc.Deleted {
		switch rc.EntityType {
		case models.EntityTypeClient, models.EntityTypeLoan, models.EntityTypeRepayment:
			return processExplicitDelete(ctx, db, rc, payload)
		}
	}

	switch rc.EntityType {
	case models.EntityTypeClient:
		return processClient(ctx, db, rc, payload, raw)
	case models.EntityTypeLoan:
		return processLoan(ctx, db, rc, payload, raw)
	case models.EntityTypeRepayment:
		return processRepayment(ctx, db, rc, payload, raw)
	case models.EntityTypeLoanProduct:
		return processLoanProduct(ctx, db, rc, payload)
	case models.EntityTypeSavingsAccount:
		return processSavingsAccount(ctx, db, rc, payload)
	default:
		return RecordResult{}, newValidationError("unknown entity type %q", rc.EntityType)
	}
}

// stageRaw upserts the untouched payload before validation so the phone
// natural-key fallback can read it even when the transform rejects the
// record.
func stageRaw(ctx context.Context, db *gorm.DB, rc RecordContext, payload map[string]interface{}, raw json.RawMessage) string {
	externalId := ExtractExternalId(rc.System, rc.EntityType, payload)
	if externalId == "" {
		return ""
	}
	if err := models.UpsertRawRecord(ctx, db, rc.System, rc.EntityType, externalId, raw); err != nil {
		config.LogError(config.GetLogger(), "ledgersync", "stageRaw", "raw staging failed", externalId, err)
	}
	return externalId
}

// processExplicitDelete handles a routed delete action. Its payload can
// be nothing more than the synthesized upstream id, so it never goes
// through the full transform: the existing row is resolved by external
// reference and the delete policy applied to it. A reference that never
// synced is an idempotent no-op.
func processExplicitDelete(ctx context.Context, db *gorm.DB, rc RecordContext, payload map[string]interface{}) (RecordResult, error) {
	externalId := ExtractExternalId(rc.System, rc.EntityType, payload)
	if externalId == "" {
		return RecordResult{}, newValidationError("delete payload has no upstream id")
	}
	result := RecordResult{
		ExternalId:  externalId,
		ExternalRef: BuildExternalRef(rc.System, rc.EntityType, externalId),
	}

	var action string
	var localId *uint
	var err error
	switch rc.EntityType {
	case models.EntityTypeClient:
		action, localId, err = DeleteClientByExternalRef(ctx, db, result.ExternalRef)
	case models.EntityTypeLoan:
		action, localId, err = DeleteLoanByExternalRef(ctx, db, result.ExternalRef)
	case models.EntityTypeRepayment:
		action, localId, err = DeleteRepaymentByExternalRef(ctx, db, result.ExternalRef)
	}
	if err != nil {
		return result, err
	}
	result.Action = action
	result.LocalId = localId
	return result, nil
}

func processClient(ctx context.Context, db *gorm.DB, rc RecordContext, payload map[string]interface{}, raw json.RawMessage) (RecordResult, error) {
	externalId := stageRaw(ctx, db, rc, payload, raw)

	t, err := TransformClient(rc.System, payload)
	if err != nil {
		return RecordResult{ExternalId: externalId}, err
	}
	result := RecordResult{ExternalId: t.ExternalId, ExternalRef: t.Client.ExternalReferenceId}

	action, localId, err := UpsertClient(ctx, db, t)
	if err != nil {
		return result, err
	}
	result.Action = action
	result.LocalId = localId
	return result, nil
}

func processLoan(ctx context.Context, db *gorm.DB, rc RecordContext, payload map[string]interface{}, raw json.RawMessage) (RecordResult, error) {
	externalId := stageRaw(ctx, db, rc, payload, raw)

	t, err := TransformLoan(rc.System, payload)
	if err != nil {
		return RecordResult{ExternalId: externalId}, err
	}
	result := RecordResult{ExternalId: t.ExternalId, ExternalRef: t.Loan.ExternalReferenceId}

	var owner *models.Client
	if !t.Deleted {
		owner, err = ResolveClient(ctx, db, rc.System, t.OwnerExternalId)
		if err != nil {
			return result, err
		}
	} else {
		// A delete only needs the existing row, not a resolvable owner.
		owner = &models.Client{}
	}

	action, localId, err := UpsertLoan(ctx, db, t, owner)
	if err != nil {
		return result, err
	}
	result.Action = action
	result.LocalId = localId

	if localId != nil {
		if err := RecomputeLoanBalance(ctx, db, *localId, nil); err != nil {
			return result, err
		}
		var loan models.Loan
		if err := db.WithContext(ctx).First(&loan, *localId).Error; err == nil && loan.ClientId != 0 {
			if riskErr := ApplyRiskAssessment(ctx, db, &loan); riskErr != nil {
				config.LogError(config.GetLogger(), "ledgersync", "processLoan",
					"risk assessment failed", loan.ID, riskErr)
			}
		}
	}
	return result, nil
}

func processRepayment(ctx context.Context, db *gorm.DB, rc RecordContext, payload map[string]interface{}, raw json.RawMessage) (RecordResult, error) {
	externalId := stageRaw(ctx, db, rc, payload, raw)

	t, err := TransformRepayment(rc.System, payload)
	if err != nil {
		return RecordResult{ExternalId: externalId}, err
	}
	result := RecordResult{ExternalId: t.ExternalId, ExternalRef: t.Repayment.ExternalReferenceId}

	loan, err := ResolveLoan(ctx, db, rc.System, t.LoanExternalId)
	if err != nil {
		return result, err
	}

	action, localId, err := UpsertRepayment(ctx, db, t, loan)
	if err != nil {
		return result, err
	}
	result.Action = action
	result.LocalId = localId

	var refreshed models.Loan
	if err := db.WithContext(ctx).First(&refreshed, loan.ID).Error; err == nil && refreshed.ClientId != 0 {
		if riskErr := ApplyRiskAssessment(ctx, db, &refreshed); riskErr != nil {
			config.LogError(config.GetLogger(), "ledgersync", "processRepayment",
				"risk assessment failed", refreshed.ID, riskErr)
		}
	}
	return result, nil
}

func processLoanProduct(ctx context.Context, db *gorm.DB, rc RecordContext, payload map[string]interface{}) (RecordResult, error) {
	t, err := TransformLoanProduct(rc.System, payload)
	if err != nil {
		return RecordResult{}, err
	}
	result := RecordResult{ExternalId: t.ExternalId, ExternalRef: t.Product.ExternalReferenceId}

	action, localId, err := UpsertLoanProduct(ctx, db, t)
	if err != nil {
		return result, err
	}
	result.Action = action
	result.LocalId = localId
	return result, nil
}

func processSavingsAccount(ctx context.Context, db *gorm.DB, rc RecordContext, payload map[string]interface{}) (RecordResult, error) {
	t, err := TransformSavingsAccount(rc.System, payload)
	if err != nil {
		return RecordResult{}, err
	}
	result := RecordResult{ExternalId: t.ExternalId, ExternalRef: t.Account.ExternalReferenceId}

	var owner *models.Client
	if t.OwnerExternalId != "" {
		if resolved, resolveErr := ResolveClient(ctx, db, rc.System, t.OwnerExternalId); resolveErr == nil {
			owner = resolved
		}
	}

	action, localId, err := UpsertSavingsAccount(ctx, db, t, owner)
	if err != nil {
		return result, err
	}
	result.Action = action
	result.LocalId = localId
	return result, nil
}
