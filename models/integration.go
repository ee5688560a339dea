package models

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/imfsl/ledger_backend/config"
)

// Integration is the explicit per-upstream configuration row. Upstream
// clients are constructed from this row and rebuilt on an explicit
// Refresh; there is no module-level cached client.
type Integration struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	SystemCode        string     `gorm:"uniqueIndex;size:8;not null" json:"system_code"`
	Provider          string     `gorm:"size:32;not null" json:"provider"`
	Status            string     `gorm:"size:16;not null;default:connected" json:"status"`
	BaseURL           string     `gorm:"size:512;not null" json:"base_url"`
	ApiKey            string     `gorm:"type:text" json:"-"`
	Username          string     `gorm:"size:128" json:"-"`
	Password          string     `gorm:"type:text" json:"-"`
	TenantId          string     `gorm:"size:64" json:"tenant_id"`
	BranchId          string     `gorm:"size:64" json:"branch_id"`
	WebhookSecretHash string     `gorm:"type:text" json:"-"`
	Enabled           bool       `gorm:"default:true" json:"enabled"`
	SavingsEnabled    bool       `gorm:"default:false" json:"savings_enabled"`
	RateLimitMs       int        `gorm:"default:250" json:"rate_limit_ms"`
	PageSize          int        `gorm:"default:100" json:"page_size"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func integrationCacheKey(systemCode string) string {
	return fmt.Sprintf("integration:%s", systemCode)
}

// GetIntegrationBySystem reads the integration row for a system code,
// through a short-lived Redis cache. Webhook auth hits this on every call.
func GetIntegrationBySystem(ctx context.Context, db *gorm.DB, systemCode string) (*Integration, error) {
	var integration Integration
	exists, err := config.GetRedisObject(integrationCacheKey(systemCode), &integration)
	if err == nil && exists {
		return &integration, nil
	}

	err = db.WithContext(ctx).Where("system_code = ? AND enabled = ?", systemCode, true).
		First(&integration).Error
	if err != nil {
		return nil, err
	}

	_ = config.SetRedisObject(integrationCacheKey(systemCode), &integration, 5*time.Minute)
	return &integration, nil
}

// RefreshIntegration drops the cached row so the next read rebuilds from DB.
func RefreshIntegration(systemCode string) error {
	return config.RemoveRedisKey(integrationCacheKey(systemCode))
}

// TouchIntegrationSync stamps the sync timestamps after a batch run.
func TouchIntegrationSync(ctx context.Context, db *gorm.DB, id uint, success bool) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{"last_sync_at": now}
	if success {
		updates["last_success_sync_at"] = now
	}
	if err := db.WithContext(ctx).Model(&Integration{}).Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return err
	}
	var systemCode string
	if err := db.WithContext(ctx).Model(&Integration{}).Where("id = ?", id).
		Select("system_code").Scan(&systemCode).Error; err == nil && systemCode != "" {
		_ = RefreshIntegration(systemCode)
	}
	return nil
}
