package ledgersync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/imfsl/ledger_backend/models"
)

type loanDiskClient struct {
	baseURL  string
	apiKey   string
	branchId string
	http     *http.Client
	limiter  <-chan time.Time
}

func newLoanDiskClient(integration *models.Integration) (*loanDiskClient, error) {
	if strings.TrimSpace(integration.BaseURL) == "" {
		return nil, fmt.Errorf("loandisk base url is empty")
	}
	if strings.TrimSpace(integration.ApiKey) == "" {
		return nil, fmt.Errorf("loandisk api key is empty")
	}
	return &loanDiskClient{
		baseURL:  strings.TrimRight(integration.BaseURL, "/"),
		apiKey:   integration.ApiKey,
		branchId: integration.BranchId,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rateLimiter(integration.RateLimitMs),
	}, nil
}

func (c *loanDiskClient) System() string {
	return models.SystemLoanDisk
}

func loanDiskCollection(entityType string) (string, error) {
	switch entityType {
	case models.EntityTypeClient:
		return "borrowers", nil
	case models.EntityTypeLoan:
		return "loans", nil
	case models.EntityTypeRepayment:
		return "repayments", nil
	default:
		return "", fmt.Errorf("loandisk does not expose entity type %q", entityType)
	}
}

func (c *loanDiskClient) FetchPage(ctx context.Context, entityType string, offset, limit int, modifiedSince *time.Time) (Page, error) {
	collection, err := loanDiskCollection(entityType)
	if err != nil {
		return Page{}, err
	}

	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	if c.branchId != "" {
		params.Set("branch_id", c.branchId)
	}
	if modifiedSince != nil {
		params.Set("modified_since", modifiedSince.UTC().Format(time.RFC3339))
	}

	body, err := c.do(ctx, http.MethodGet, "/"+collection+"?"+params.Encode(), nil)
	if err != nil {
		return Page{}, err
	}
	return parseLoanDiskList(body, offset, limit)
}

func (c *loanDiskClient) FetchOne(ctx context.Context, entityType, externalId string) (json.RawMessage, error) {
	collection, err := loanDiskCollection(entityType)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodGet, "/"+collection+"/"+url.PathEscape(externalId), nil)
	if err != nil {
		return nil, err
	}
	return unwrapLoanDiskEntity(body), nil
}

func (c *loanDiskClient) Mutate(ctx context.Context, entityType, externalId, command string, payload json.RawMessage) (json.RawMessage, error) {
	collection, err := loanDiskCollection(entityType)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/%s/%s/%s", collection, url.PathEscape(externalId), url.PathEscape(command))
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *loanDiskClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	waitLimiter(c.limiter)

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("loandisk api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type loanDiskListResponse struct {
	Data       []json.RawMessage `json:"data"`
	Borrowers  []json.RawMessage `json:"borrowers"`
	Loans      []json.RawMessage `json:"loans"`
	Repayments []json.RawMessage `json:"repayments"`
	Total      int               `json:"total"`
	HasMore    *bool             `json:"has_more"`
}

// parseLoanDiskList normalizes the observed response shape variations:
// the collection arrives under "data" or under its own name, and older
// deployments return a bare array with no envelope at all.
func parseLoanDiskList(body []byte, offset, limit int) (Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page{}, err
		}
		return Page{Items: items, Total: offset + len(items), HasMore: len(items) == limit}, nil
	}

	var parsed loanDiskListResponse
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return Page{}, err
	}

	items := parsed.Data
	if items == nil {
		items = parsed.Borrowers
	}
	if items == nil {
		items = parsed.Loans
	}
	if items == nil {
		items = parsed.Repayments
	}

	total := parsed.Total
	if total == 0 {
		total = offset + len(items)
	}

	hasMore := len(items) == limit && limit > 0
	if parsed.HasMore != nil {
		hasMore = *parsed.HasMore
	}

	return Page{Items: items, Total: total, HasMore: hasMore}, nil
}

// unwrapLoanDiskEntity peels the single-entity envelope when present.
func unwrapLoanDiskEntity(body []byte) json.RawMessage {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	for _, key := range []string{"data", "borrower", "loan", "repayment"} {
		if v, ok := envelope[key]; ok && len(v) > 0 && v[0] == '{' {
			return v
		}
	}
	return body
}
