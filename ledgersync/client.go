package ledgersync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/imfsl/ledger_backend/models"
)

// Hard pagination ceiling. Upstream has_more flags have been observed to
// lie, so every pagination loop terminates at this offset regardless.
const maxPaginationOffset = 100000

// Page is the normalized shape of one upstream list response.
type Page struct {
	Items   []json.RawMessage
	Total   int
	HasMore bool
}

// UpstreamClient normalizes the per-system APIs behind one contract.
// Implementations are built from an explicit Integration row; Refresh
// means re-reading that row and rebuilding the client.
type UpstreamClient interface {
	System() string
	FetchPage(ctx context.Context, entityType string, offset, limit int, modifiedSince *time.Time) (Page, error)
	FetchOne(ctx context.Context, entityType, externalId string) (json.RawMessage, error)
	Mutate(ctx context.Context, entityType, externalId, command string, payload json.RawMessage) (json.RawMessage, error)
}

// NewUpstreamClient builds the concrete client for an integration row.
func NewUpstreamClient(integration *models.Integration) (UpstreamClient, error) {
	switch integration.Provider {
	case models.IntegrationProviderLoanDisk:
		return newLoanDiskClient(integration)
	case models.IntegrationProviderFineract:
		return newFineractClient(integration)
	default:
		return nil, fmt.Errorf("unknown integration provider %q", integration.Provider)
	}
}

// rateLimiter returns a simple ticker limiter. A zero or negative
// interval disables limiting.
func rateLimiter(rateLimitMs int) <-chan time.Time {
	if rateLimitMs <= 0 {
		return nil
	}
	return time.Tick(time.Duration(rateLimitMs) * time.Millisecond)
}

func waitLimiter(limiter <-chan time.Time) {
	if limiter != nil {
		<-limiter
	}
}
