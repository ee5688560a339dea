package ledgersync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bitbucket.org/imfsl/ledger_backend/config"
	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// WebhookHandler ingests one upstream event for a fixed entity type. The
// shared-secret check already happened in middleware; a failed auth never
// reaches this handler.
func WebhookHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		ctx := c.Request.Context()
		system, _ := utils.GetSystemCodeFromContext(ctx)
		db := config.GetDB()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(bytes.TrimSpace(body)) == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "empty payload"})
			return
		}

		record, action, parseErr := normalizeWebhookBody(body)
		logWebhookEvent(c, system, entityType, action, record, parseErr)
		if parseErr != nil {
			RecordInvocation(ctx, "webhook."+entityType, "error", startedAt, parseErr.Error())
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": parseErr.Error()})
			return
		}

		run, err := CreateSyncRun(ctx, db, system, models.SyncRunTypeWebhook,
			models.SyncRunStatusRunning, []string{entityType}, false, nil)
		if err != nil {
			RecordInvocation(ctx, "webhook."+entityType, "error", startedAt, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open sync run"})
			return
		}

		rc := RecordContext{System: system, EntityType: entityType, RunId: run.ID, Deleted: action == "delete"}
		result, procErr := ProcessRecord(ctx, db, rc, record)

		var counters SyncCounters
		counters.Fetched = 1
		counters.Observe(result.Action, procErr)
		if finErr := FinalizeRun(ctx, db, run, counters); finErr != nil {
			config.LogError(config.GetLogger(), "ledgersync", "WebhookHandler",
				"run finalize failed", run.ID, finErr)
		}

		if procErr != nil {
			RecordInvocation(ctx, "webhook."+entityType, "error", startedAt, procErr.Error())
			status := http.StatusInternalServerError
			if isSkip(procErr) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": procErr.Error()})
			return
		}

		RecordInvocation(ctx, "webhook."+entityType, "success", startedAt, "")
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"entity_type":  entityType,
			"action":       result.Action,
			"local_id":     result.LocalId,
			"external_ref": result.ExternalRef,
		})
	}
}

// normalizeWebhookBody accepts either the {action, resource_id, body}
// envelope or a bare record, and returns the record plus the parsed
// action. A delete without a body is synthesized down to the upstream id
// (and the owning parent id when subresource_id names one) so it can be
// resolved by reference instead of transformed.
func normalizeWebhookBody(body []byte) (json.RawMessage, string, error) {
	var envelope WebhookPayload
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", fmt.Errorf("payload is not valid JSON")
	}

	if len(envelope.Body) > 0 && bytes.TrimSpace(envelope.Body)[0] == '{' {
		return envelope.Body, envelope.Action, nil
	}
	if envelope.Action == "delete" {
		if envelope.ResourceId == "" {
			return nil, "", fmt.Errorf("delete action requires resource_id")
		}
		record := map[string]string{"id": envelope.ResourceId}
		if envelope.SubresourceId != "" {
			record["loan_id"] = envelope.SubresourceId
			record["loanId"] = envelope.SubresourceId
		}
		synthetic, _ := json.Marshal(record)
		return synthetic, envelope.Action, nil
	}

	// Bare record form: the whole body is the upstream entity.
	trimmed := bytes.TrimSpace(body)
	if trimmed[0] != '{' {
		return nil, "", fmt.Errorf("payload must be a JSON object")
	}
	return trimmed, envelope.Action, nil
}

func logWebhookEvent(c *gin.Context, system, entityType, action string, record json.RawMessage, parseErr error) {
	ctx := c.Request.Context()
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	statusCode := http.StatusOK
	if parseErr != nil {
		statusCode = http.StatusUnprocessableEntity
	}

	event := models.WebhookEvent{
		System:        system,
		EntityType:    entityType,
		Action:        action,
		PayloadJSON:   record,
		StatusCode:    statusCode,
		CorrelationId: correlationId,
	}
	if err := config.GetDB().WithContext(ctx).Create(&event).Error; err != nil {
		config.LogError(config.GetLogger(), "ledgersync", "logWebhookEvent",
			"webhook event write failed", system+"/"+entityType, err)
	}
}
