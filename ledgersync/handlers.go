package ledgersync

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/config"
	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// IssueTokenHandler exchanges the operator secret for a bearer token
// carrying the admin role. The secret is compared against the bcrypt hash
// in ADMIN_SECRET_HASH; an unset hash disables the endpoint.
func IssueTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		hash := os.Getenv("ADMIN_SECRET_HASH")
		if hash == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "token issuance is not configured"})
			return
		}
		if err := utils.CompareSecret(hash, req.Secret); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := utils.JwtGenerate(req.Subject, "admin")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// TriggerSyncHandler queues a manual batch run and dispatches it.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		systemCode := strings.ToUpper(c.Param("system"))
		db := config.GetDB()

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		integration, err := models.GetIntegrationBySystem(ctx, db, systemCode)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown system"})
			return
		}

		run, err := CreateSyncRun(ctx, db, systemCode, models.SyncRunTypeManual,
			models.SyncRunStatusQueued, req.EntityTypes, req.FullSync, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		payload := SyncPubSubPayload{RunId: run.ID, System: systemCode, IntegrationId: integration.ID}
		if err := PublishSyncRun(ctx, payload); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"success": true, "run_id": run.ID})
	}
}

// ScheduledSyncHandler is the Cloud Scheduler entry point: all entity
// types, incremental, for every enabled integration.
func ScheduledSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()

		var integrations []models.Integration
		if err := db.WithContext(ctx).Where("enabled = ?", true).Find(&integrations).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		runIds := make([]uint, 0, len(integrations))
		for _, integration := range integrations {
			run, err := CreateSyncRun(ctx, db, integration.SystemCode, models.SyncRunTypeScheduled,
				models.SyncRunStatusQueued, nil, false, nil)
			if err != nil {
				config.LogError(config.GetLogger(), "ledgersync", "ScheduledSyncHandler",
					"run create failed", integration.SystemCode, err)
				continue
			}
			payload := SyncPubSubPayload{RunId: run.ID, System: integration.SystemCode, IntegrationId: integration.ID}
			if err := PublishSyncRun(ctx, payload); err != nil {
				config.LogError(config.GetLogger(), "ledgersync", "ScheduledSyncHandler",
					"run dispatch failed", run.ID, err)
				continue
			}
			runIds = append(runIds, run.ID)
		}

		c.JSON(http.StatusAccepted, gin.H{"success": true, "run_ids": runIds})
	}
}

// ReconcileHandler runs a reconciliation synchronously and returns the
// snapshot. Even under partial upstream failure it reports a status.
func ReconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		ctx := c.Request.Context()
		systemCode := strings.ToUpper(c.Param("system"))
		db := config.GetDB()

		var req ReconcileRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		integration, err := models.GetIntegrationBySystem(ctx, db, systemCode)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown system"})
			return
		}

		snap, err := RunReconciliation(ctx, db, integration, req.PeriodStart, req.PeriodEnd)
		if err != nil {
			RecordInvocation(ctx, "reconcile", "error", startedAt, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		RecordInvocation(ctx, "reconcile", "success", startedAt, "")
		c.JSON(http.StatusOK, gin.H{"success": true, "snapshot": snap})
	}
}

func ListRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()

		limit := 50
		if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
			limit = v
		}

		query := db.WithContext(ctx).Model(&models.SyncRun{}).Order("id DESC").Limit(limit)
		if system := strings.ToUpper(c.Query("system")); system != "" {
			query = query.Where("system = ?", system)
		}
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}

		var runs []models.SyncRun
		if err := query.Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func GetRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()

		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := models.GetSyncRun(ctx, db, uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var items []models.SyncItem
		if err := db.WithContext(ctx).Where("sync_run_id = ?", run.ID).
			Order("id").Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"run": run, "items": items})
	}
}

// RetryRunHandler starts a NEW run pointing back at the failed one.
// Terminal runs are never resumed or mutated.
func RetryRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()

		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		parent, err := models.GetSyncRun(ctx, db, uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !parent.IsTerminal() {
			c.JSON(http.StatusConflict, gin.H{"error": "run has not finished"})
			return
		}

		integration, err := models.GetIntegrationBySystem(ctx, db, parent.System)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown system"})
			return
		}

		var entityTypes []string
		if len(parent.EntityTypesJSON) > 0 {
			entityTypes = decodeEntityTypes(parent.EntityTypesJSON)
		}

		parentId := parent.ID
		run, err := CreateSyncRun(ctx, db, parent.System, models.SyncRunTypeManual,
			models.SyncRunStatusQueued, entityTypes, parent.FullSync, &parentId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		payload := SyncPubSubPayload{RunId: run.ID, System: parent.System, IntegrationId: integration.ID}
		if err := PublishSyncRun(ctx, payload); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"success": true, "run_id": run.ID, "parent_run_id": parent.ID})
	}
}

func ListReconciliationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()

		limit := 50
		if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
			limit = v
		}

		query := db.WithContext(ctx).Model(&models.ReconciliationSnapshot{}).Order("id DESC").Limit(limit)
		if system := strings.ToUpper(c.Query("system")); system != "" {
			query = query.Where("system = ?", system)
		}

		var snapshots []models.ReconciliationSnapshot
		if err := query.Find(&snapshots).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reconciliations": snapshots})
	}
}

// LoanCommandHandler passes a lifecycle command (approve, disburse,
// repayment) through to the owning upstream system, then re-syncs the
// loan from the upstream response so the canonical row mirrors the result.
func LoanCommandHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		ctx := c.Request.Context()
		db := config.GetDB()

		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
			return
		}

		var req LoanCommandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		var loan models.Loan
		if err := db.WithContext(ctx).First(&loan, uint(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "loan not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		system, _, externalId, err := ParseExternalRef(loan.ExternalReferenceId)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "loan has no upstream reference"})
			return
		}

		integration, err := models.GetIntegrationBySystem(ctx, db, system)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown system"})
			return
		}
		client, err := NewUpstreamClient(integration)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if _, err := client.Mutate(ctx, models.EntityTypeLoan, externalId, req.Command, req.Payload); err != nil {
			RecordInvocation(ctx, "loan-command", "error", startedAt, err.Error())
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		fresh, err := client.FetchOne(ctx, models.EntityTypeLoan, externalId)
		if err != nil {
			RecordInvocation(ctx, "loan-command", "error", startedAt, err.Error())
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		run, err := CreateSyncRun(ctx, db, system, models.SyncRunTypeManual,
			models.SyncRunStatusRunning, []string{models.EntityTypeLoan}, false, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		rc := RecordContext{System: system, EntityType: models.EntityTypeLoan, RunId: run.ID}
		result, procErr := ProcessRecord(ctx, db, rc, fresh)

		var counters SyncCounters
		counters.Fetched = 1
		counters.Observe(result.Action, procErr)
		if finErr := FinalizeRun(ctx, db, run, counters); finErr != nil {
			config.LogError(config.GetLogger(), "ledgersync", "LoanCommandHandler",
				"run finalize failed", run.ID, finErr)
		}

		if procErr != nil {
			RecordInvocation(ctx, "loan-command", "error", startedAt, procErr.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": procErr.Error()})
			return
		}

		RecordInvocation(ctx, "loan-command", "success", startedAt, req.Command)
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"command":  req.Command,
			"local_id": result.LocalId,
			"run_id":   run.ID,
		})
	}
}

func decodeEntityTypes(raw []byte) []string {
	var types []string
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil
	}
	return types
}
