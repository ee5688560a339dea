package ledgersync

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/config"
	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// SyncCounters aggregates per-run results. Skips (validation/resolution)
// are not failures; the run still completes cleanly around them.
type SyncCounters struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (c *SyncCounters) Add(other SyncCounters) {
	c.Fetched += other.Fetched
	c.Created += other.Created
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}

// Observe folds one processed record into the counters.
func (c *SyncCounters) Observe(action string, err error) {
	if err != nil {
		if isSkip(err) {
			c.Skipped++
		} else {
			c.Failed++
		}
		return
	}
	switch action {
	case models.SyncItemActionCreated:
		c.Created++
	case models.SyncItemActionUpdated, models.SyncItemActionUpserted, models.SyncItemActionDeleted:
		c.Updated++
	}
}

// FinalizeStatus: a run is completed iff it saw zero failures, else
// partial. Both are terminal.
func FinalizeStatus(failed int) string {
	if failed == 0 {
		return models.SyncRunStatusCompleted
	}
	return models.SyncRunStatusPartial
}

// CreateSyncRun opens a new run row. Batch runs start queued and move to
// running when the worker picks them up; webhook runs start running.
func CreateSyncRun(ctx context.Context, db *gorm.DB, system, runType, status string, entityTypes []string, fullSync bool, parentRunId *uint) (*models.SyncRun, error) {
	entityTypesJSON, _ := json.Marshal(entityTypes)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	run := models.SyncRun{
		System:          system,
		RunType:         runType,
		Status:          status,
		EntityTypesJSON: entityTypesJSON,
		FullSync:        fullSync,
		ParentRunId:     parentRunId,
		CorrelationId:   correlationId,
	}
	if status == models.SyncRunStatusRunning {
		now := time.Now().UTC()
		run.StartedAt = &now
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, newPersistenceError("sync run create failed", err)
	}
	return &run, nil
}

// MarkRunRunning transitions queued to running. A terminal run is left
// untouched and reported as such, duplicate Pub/Sub deliveries hit this.
func MarkRunRunning(ctx context.Context, db *gorm.DB, run *models.SyncRun) (started bool, err error) {
	if run.IsTerminal() {
		return false, nil
	}
	now := time.Now().UTC()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	err = db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error
	if err != nil {
		return false, newPersistenceError("sync run start failed", err)
	}
	run.Status = models.SyncRunStatusRunning
	run.StartedAt = startedAt
	return true, nil
}

// FinalizeRun stamps the terminal status and counters.
func FinalizeRun(ctx context.Context, db *gorm.DB, run *models.SyncRun, counters SyncCounters) error {
	finishedAt := time.Now().UTC()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	status := FinalizeStatus(counters.Failed)

	err := db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":      status,
		"fetched":     counters.Fetched,
		"created":     counters.Created,
		"updated":     counters.Updated,
		"skipped":     counters.Skipped,
		"failed":      counters.Failed,
		"finished_at": finishedAt,
		"duration_ms": durationMs,
	}).Error
	if err != nil {
		return newPersistenceError("sync run finalize failed", err)
	}
	run.Status = status
	return nil
}

// RecordSyncItem appends one per-record audit row. Lineage failures are
// logged but never fail the record they describe.
func RecordSyncItem(ctx context.Context, db *gorm.DB, runId uint, entityType, externalId, action string, localId *uint, payload []byte, recordErr error) {
	item := models.SyncItem{
		SyncRunId:   runId,
		EntityType:  entityType,
		ExternalId:  externalId,
		Action:      action,
		LocalId:     localId,
		PayloadJSON: payload,
	}
	if recordErr != nil {
		item.ErrorClass = classify(recordErr)
		item.ErrorMessage = recordErr.Error()
	}
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		config.LogError(config.GetLogger(), "ledgersync", "RecordSyncItem", "sync item write failed", externalId, err)
	}
}
