package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bitbucket.org/imfsl/ledger_backend/config"
	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// WebhookAuthMiddleware authenticates upstream webhook calls with the shared
// secret registered on the integration row. The secret is stored hashed, a
// failed compare is indistinguishable from an unknown system on purpose.
func WebhookAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		systemCode := strings.ToUpper(c.Param("system"))
		if systemCode == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown system"})
			c.Abort()
			return
		}

		secret := c.Request.Header.Get("X-Webhook-Secret")
		if secret == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		integration, err := models.GetIntegrationBySystem(c.Request.Context(), config.GetDB(), systemCode)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		if err := utils.CompareSecret(integration.WebhookSecretHash, secret); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetSystemCodeInContext(c.Request.Context(), systemCode)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
