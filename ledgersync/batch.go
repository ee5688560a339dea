package ledgersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/config"
	"bitbucket.org/imfsl/ledger_backend/models"
)

var tracer = otel.Tracer("ledgersync")

// entityTypeOrder guarantees parents sync before dependents: clients
// before loans, loans before repayments.
var entityTypeOrder = []string{
	models.EntityTypeClient,
	models.EntityTypeLoanProduct,
	models.EntityTypeLoan,
	models.EntityTypeRepayment,
	models.EntityTypeSavingsAccount,
}

func defaultEntityTypes(integration *models.Integration) []string {
	switch integration.Provider {
	case models.IntegrationProviderFineract:
		types := []string{models.EntityTypeClient, models.EntityTypeLoanProduct,
			models.EntityTypeLoan, models.EntityTypeRepayment}
		if integration.SavingsEnabled {
			types = append(types, models.EntityTypeSavingsAccount)
		}
		return types
	default:
		return []string{models.EntityTypeClient, models.EntityTypeLoan, models.EntityTypeRepayment}
	}
}

// orderEntityTypes filters the requested types down to the canonical
// dependency order.
func orderEntityTypes(requested []string) []string {
	if len(requested) == 0 {
		return nil
	}
	want := make(map[string]bool, len(requested))
	for _, t := range requested {
		want[t] = true
	}
	var ordered []string
	for _, t := range entityTypeOrder {
		if want[t] {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// processSyncRun executes one queued batch run end to end. Duplicate
// deliveries of a terminal run are acked without reprocessing.
func processSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 {
		return errors.New("invalid payload")
	}
	db := config.GetDB()

	run, err := models.GetSyncRun(ctx, db, payload.RunId)
	if err != nil {
		return err
	}
	started, err := MarkRunRunning(ctx, db, run)
	if err != nil {
		return err
	}
	if !started {
		return nil
	}

	var integration models.Integration
	if err := db.WithContext(ctx).First(&integration, payload.IntegrationId).Error; err != nil {
		return err
	}
	if !integration.Enabled {
		return fmt.Errorf("integration %s is disabled", integration.SystemCode)
	}

	ctx, span := tracer.Start(ctx, "sync.batch")
	span.SetAttributes(
		attribute.String("sync.system", integration.SystemCode),
		attribute.Int("sync.run_id", int(run.ID)),
	)
	defer span.End()

	client, err := NewUpstreamClient(&integration)
	if err != nil {
		return err
	}

	var requested []string
	_ = json.Unmarshal(run.EntityTypesJSON, &requested)
	entityTypes := orderEntityTypes(requested)
	if len(entityTypes) == 0 {
		entityTypes = defaultEntityTypes(&integration)
	}

	var modifiedSince *time.Time
	if !run.FullSync {
		modifiedSince = integration.LastSuccessSyncAt
	}

	var counters SyncCounters
	for _, entityType := range entityTypes {
		release, _ := obtainEntityLock(ctx, "batch-sync",
			fmt.Sprintf("%d:%s", integration.ID, entityType))
		typeCounters := syncEntityType(ctx, db, client, &integration, run, entityType, modifiedSince)
		release()
		counters.Add(typeCounters)
	}

	if err := FinalizeRun(ctx, db, run, counters); err != nil {
		return err
	}
	if err := models.TouchIntegrationSync(ctx, db, integration.ID, counters.Failed == 0); err != nil {
		config.LogError(config.GetLogger(), "ledgersync", "processSyncRun",
			"integration timestamp update failed", integration.ID, err)
	}

	config.GetLogger().WithField("run_id", run.ID).
		Infof("sync run finished: status=%s fetched=%d created=%d updated=%d skipped=%d failed=%d",
			run.Status, counters.Fetched, counters.Created, counters.Updated, counters.Skipped, counters.Failed)
	return nil
}

// syncEntityType pages one upstream collection as a bounded sequential
// loop. Per-record failures are contained; a page-level fetch failure
// fails the collection and lets the other types proceed.
func syncEntityType(ctx context.Context, db *gorm.DB, client UpstreamClient, integration *models.Integration, run *models.SyncRun, entityType string, modifiedSince *time.Time) SyncCounters {
	ctx, span := tracer.Start(ctx, "sync.entity_type")
	span.SetAttributes(attribute.String("sync.entity_type", entityType))
	defer span.End()

	var counters SyncCounters
	limit := integration.PageSize
	if limit <= 0 {
		limit = 100
	}

	for offset := 0; offset <= maxPaginationOffset; offset += limit {
		page, err := client.FetchPage(ctx, entityType, offset, limit, modifiedSince)
		if err != nil {
			upstreamErr := newUpstreamError(fmt.Sprintf("page fetch failed at offset %d", offset), err)
			RecordSyncItem(ctx, db, run.ID, entityType, "", models.SyncItemActionUpserted, nil, nil, upstreamErr)
			counters.Failed++
			span.RecordError(err)
			return counters
		}

		counters.Fetched += len(page.Items)
		for _, raw := range page.Items {
			rc := RecordContext{System: client.System(), EntityType: entityType, RunId: run.ID}
			result, procErr := ProcessRecord(ctx, db, rc, raw)
			counters.Observe(result.Action, procErr)
		}

		if !page.HasMore || len(page.Items) == 0 {
			break
		}
	}
	return counters
}
