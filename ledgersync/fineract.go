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

type fineractClient struct {
	baseURL  string
	username string
	password string
	tenantId string
	http     *http.Client
	limiter  <-chan time.Time
}

func newFineractClient(integration *models.Integration) (*fineractClient, error) {
	if strings.TrimSpace(integration.BaseURL) == "" {
		return nil, fmt.Errorf("fineract base url is empty")
	}
	if strings.TrimSpace(integration.Username) == "" || strings.TrimSpace(integration.Password) == "" {
		return nil, fmt.Errorf("fineract credentials are empty")
	}
	tenantId := integration.TenantId
	if tenantId == "" {
		tenantId = "default"
	}
	return &fineractClient{
		baseURL:  strings.TrimRight(integration.BaseURL, "/"),
		username: integration.Username,
		password: integration.Password,
		tenantId: tenantId,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rateLimiter(integration.RateLimitMs),
	}, nil
}

func (c *fineractClient) System() string {
	return models.SystemFineract
}

func fineractCollection(entityType string) (string, error) {
	switch entityType {
	case models.EntityTypeClient:
		return "clients", nil
	case models.EntityTypeLoan:
		return "loans", nil
	case models.EntityTypeLoanProduct:
		return "loanproducts", nil
	case models.EntityTypeSavingsAccount:
		return "savingsaccounts", nil
	default:
		return "", fmt.Errorf("fineract does not expose entity type %q", entityType)
	}
}

func (c *fineractClient) FetchPage(ctx context.Context, entityType string, offset, limit int, modifiedSince *time.Time) (Page, error) {
	if entityType == models.EntityTypeRepayment {
		return c.fetchTransactionPage(ctx, offset, limit)
	}

	collection, err := fineractCollection(entityType)
	if err != nil {
		return Page{}, err
	}

	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("paged", "true")

	body, err := c.do(ctx, http.MethodGet, "/"+collection+"?"+params.Encode(), nil)
	if err != nil {
		return Page{}, err
	}
	return parseFineractList(body, offset, limit)
}

// fetchTransactionPage pages loans and flattens each loan's transactions,
// injecting loanId so the transform can resolve the owning loan. Fineract
// has no top-level transactions collection.
func (c *fineractClient) fetchTransactionPage(ctx context.Context, offset, limit int) (Page, error) {
	loanPage, err := c.FetchPage(ctx, models.EntityTypeLoan, offset, limit, nil)
	if err != nil {
		return Page{}, err
	}

	page := Page{Total: loanPage.Total, HasMore: loanPage.HasMore}
	for _, rawLoan := range loanPage.Items {
		loan, err := decodePayload(rawLoan)
		if err != nil {
			continue
		}
		loanId := pickString(loan, "id", "loanId")
		if loanId == "" {
			continue
		}

		body, err := c.do(ctx, http.MethodGet, "/loans/"+url.PathEscape(loanId)+"/transactions", nil)
		if err != nil {
			return Page{}, err
		}
		txPage, err := parseFineractList(body, 0, 0)
		if err != nil {
			return Page{}, err
		}
		for _, rawTx := range txPage.Items {
			if tagged, err := injectField(rawTx, "loanId", loanId); err == nil {
				page.Items = append(page.Items, tagged)
			}
		}
	}
	return page, nil
}

func (c *fineractClient) FetchOne(ctx context.Context, entityType, externalId string) (json.RawMessage, error) {
	if entityType == models.EntityTypeRepayment {
		loanId, txId, err := SplitFineractTransactionId(externalId)
		if err != nil {
			return nil, err
		}
		body, err := c.do(ctx, http.MethodGet,
			"/loans/"+url.PathEscape(loanId)+"/transactions/"+url.PathEscape(txId), nil)
		if err != nil {
			return nil, err
		}
		return injectField(body, "loanId", loanId)
	}

	collection, err := fineractCollection(entityType)
	if err != nil {
		return nil, err
	}
	params := ""
	if entityType == models.EntityTypeLoan {
		params = "?associations=all"
	}
	return c.do(ctx, http.MethodGet, "/"+collection+"/"+url.PathEscape(externalId)+params, nil)
}

func (c *fineractClient) Mutate(ctx context.Context, entityType, externalId, command string, payload json.RawMessage) (json.RawMessage, error) {
	collection, err := fineractCollection(entityType)
	if err != nil {
		return nil, err
	}

	var path string
	if entityType == models.EntityTypeLoan && command == "repayment" {
		path = "/loans/" + url.PathEscape(externalId) + "/transactions?command=repayment"
	} else {
		path = "/" + collection + "/" + url.PathEscape(externalId) + "?command=" + url.QueryEscape(command)
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *fineractClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	waitLimiter(c.limiter)

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Fineract-Platform-TenantId", c.tenantId)
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
		return nil, fmt.Errorf("fineract api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type fineractListResponse struct {
	TotalFilteredRecords int               `json:"totalFilteredRecords"`
	PageItems            []json.RawMessage `json:"pageItems"`
}

// parseFineractList normalizes both the paged envelope and the bare-array
// form some endpoints return.
func parseFineractList(body []byte, offset, limit int) (Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page{}, err
		}
		return Page{Items: items, Total: offset + len(items), HasMore: limit > 0 && len(items) == limit}, nil
	}

	var parsed fineractListResponse
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return Page{}, err
	}

	hasMore := parsed.TotalFilteredRecords > offset+len(parsed.PageItems)
	return Page{Items: parsed.PageItems, Total: parsed.TotalFilteredRecords, HasMore: hasMore}, nil
}

// FineractTransactionId builds the composite external id for a loan
// transaction; Fineract transaction ids are only unique within a loan.
func FineractTransactionId(loanId, txId string) string {
	return loanId + ":" + txId
}

func SplitFineractTransactionId(externalId string) (loanId, txId string, err error) {
	parts := strings.SplitN(externalId, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed fineract transaction id %q", externalId)
	}
	return parts[0], parts[1], nil
}

func injectField(raw json.RawMessage, key, value string) (json.RawMessage, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m[key] = value
	return json.Marshal(m)
}
