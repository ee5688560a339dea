package ledgersync

import (
	"encoding/json"
	"time"
)

// WebhookPayload is the per-entity-type webhook envelope. The entity type
// comes from the route, never from payload-shape sniffing. Upstreams that
// POST the bare record (no envelope) are accepted too; see webhook.go.
// SubresourceId names the owning parent for composite ids, e.g. the loan
// a Fineract transaction belongs to.
type WebhookPayload struct {
	Action        string          `json:"action" binding:"omitempty,oneof=create update delete"`
	ResourceId    string          `json:"resource_id"`
	SubresourceId string          `json:"subresource_id"`
	Body          json.RawMessage `json:"body"`
}

type TriggerSyncRequest struct {
	EntityTypes []string `json:"entity_types" binding:"omitempty,dive,oneof=CLIENT LOAN REPAYMENT PRODUCT SAV"`
	FullSync    bool     `json:"full_sync"`
}

type ReconcileRequest struct {
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
}

type TokenRequest struct {
	Subject string `json:"subject" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

type LoanCommandRequest struct {
	Command string          `json:"command" binding:"required,oneof=approve disburse repayment"`
	Payload json.RawMessage `json:"payload"`
}

type SyncPubSubPayload struct {
	RunId         uint   `json:"run_id"`
	System        string `json:"system"`
	IntegrationId uint   `json:"integration_id"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
