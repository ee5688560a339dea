package ledgersync

import (
	"testing"

	"bitbucket.org/imfsl/ledger_backend/models"
)

func TestNormalizeWebhookBodyEnvelopeAndBareForms(t *testing.T) {
	record, action, err := normalizeWebhookBody([]byte(`{"action":"update","body":{"borrower_id":"77","borrower_fullname":"Asha Mushi"}}`))
	if err != nil {
		t.Fatalf("envelope form: %v", err)
	}
	if action != "update" {
		t.Fatalf("action = %q, want update", action)
	}
	payload := mustDecode(t, string(record))
	if got := pickString(payload, "borrower_id"); got != "77" {
		t.Fatalf("body not passed through, borrower_id = %q", got)
	}

	record, action, err = normalizeWebhookBody([]byte(`{"borrower_id":"78","borrower_fullname":"Neema Lyimo"}`))
	if err != nil {
		t.Fatalf("bare record form: %v", err)
	}
	if action != "" {
		t.Fatalf("bare record carries no action, got %q", action)
	}
	payload = mustDecode(t, string(record))
	if got := pickString(payload, "borrower_id"); got != "78" {
		t.Fatalf("bare record not passed through, borrower_id = %q", got)
	}
}

func TestNormalizeWebhookBodyDeleteSynthesizesRecord(t *testing.T) {
	record, action, err := normalizeWebhookBody([]byte(`{"action":"delete","resource_id":"9001"}`))
	if err != nil {
		t.Fatalf("delete without body: %v", err)
	}
	if action != "delete" {
		t.Fatalf("action = %q, want delete", action)
	}
	payload := mustDecode(t, string(record))
	if got := pickString(payload, "id"); got != "9001" {
		t.Fatalf("synthesized id = %q, want 9001", got)
	}

	record, _, err = normalizeWebhookBody([]byte(`{"action":"delete","resource_id":"345","subresource_id":"12"}`))
	if err != nil {
		t.Fatalf("delete with subresource: %v", err)
	}
	payload = mustDecode(t, string(record))
	if got := pickString(payload, "loanId"); got != "12" {
		t.Fatalf("owning parent id = %q, want 12", got)
	}
}

func TestNormalizeWebhookBodyDeleteRequiresResourceId(t *testing.T) {
	if _, _, err := normalizeWebhookBody([]byte(`{"action":"delete"}`)); err == nil {
		t.Fatal("expected error for delete without resource_id")
	}
}

func TestNormalizeWebhookBodyRejectsNonObject(t *testing.T) {
	if _, _, err := normalizeWebhookBody([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, _, err := normalizeWebhookBody([]byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for a non-object payload")
	}
}

// A delete that carries only the upstream id must be resolvable straight
// to the canonical reference a prior sync wrote, without a full
// transform; such minimal records never pass transform validation.
func TestDeleteEnvelopeResolvesCanonicalReference(t *testing.T) {
	cases := []struct {
		name       string
		system     string
		entityType string
		body       string
		wantRef    string
	}{
		{"loandisk client", models.SystemLoanDisk, models.EntityTypeClient,
			`{"action":"delete","resource_id":"77"}`, "LD-CLIENT-77"},
		{"loandisk loan", models.SystemLoanDisk, models.EntityTypeLoan,
			`{"action":"delete","resource_id":"501"}`, "LD-LOAN-501"},
		{"loandisk repayment", models.SystemLoanDisk, models.EntityTypeRepayment,
			`{"action":"delete","resource_id":"9001"}`, "LD-REPAYMENT-9001"},
		{"fineract client", models.SystemFineract, models.EntityTypeClient,
			`{"action":"delete","resource_id":"8"}`, "FN-CLIENT-8"},
		{"fineract loan", models.SystemFineract, models.EntityTypeLoan,
			`{"action":"delete","resource_id":"9"}`, "FN-LOAN-9"},
		{"fineract transaction with owning loan", models.SystemFineract, models.EntityTypeRepayment,
			`{"action":"delete","resource_id":"345","subresource_id":"12"}`, "FN-REPAYMENT-12:345"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record, action, err := normalizeWebhookBody([]byte(tc.body))
			if err != nil {
				t.Fatalf("normalizeWebhookBody: %v", err)
			}
			if action != "delete" {
				t.Fatalf("action = %q, want delete", action)
			}
			payload := mustDecode(t, string(record))
			externalId := ExtractExternalId(tc.system, tc.entityType, payload)
			if externalId == "" {
				t.Fatal("no external id extracted from a synthesized delete record")
			}
			if got := BuildExternalRef(tc.system, tc.entityType, externalId); got != tc.wantRef {
				t.Fatalf("ref = %q, want %q", got, tc.wantRef)
			}
		})
	}
}
