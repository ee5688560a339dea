package ledgersync

import "testing"

func TestParseLoanDiskListBareArray(t *testing.T) {
	body := []byte(`[{"borrower_id": 1}, {"borrower_id": 2}]`)
	page, err := parseLoanDiskList(body, 100, 2)
	if err != nil {
		t.Fatalf("parseLoanDiskList: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d", len(page.Items))
	}
	if page.Total != 102 {
		t.Fatalf("Total = %d, bare arrays infer total from offset", page.Total)
	}
	if !page.HasMore {
		t.Fatal("a full page implies more")
	}
}

func TestParseLoanDiskListDataEnvelope(t *testing.T) {
	body := []byte(`{"data": [{"loan_id": 9}], "total": 37}`)
	page, err := parseLoanDiskList(body, 0, 100)
	if err != nil {
		t.Fatalf("parseLoanDiskList: %v", err)
	}
	if len(page.Items) != 1 || page.Total != 37 {
		t.Fatalf("items = %d, total = %d", len(page.Items), page.Total)
	}
	if page.HasMore {
		t.Fatal("short page without has_more means done")
	}
}

func TestParseLoanDiskListCollectionNamedEnvelope(t *testing.T) {
	for _, body := range []string{
		`{"borrowers": [{"borrower_id": 1}]}`,
		`{"loans": [{"loan_id": 1}]}`,
		`{"repayments": [{"repayment_id": 1}]}`,
	} {
		page, err := parseLoanDiskList([]byte(body), 0, 100)
		if err != nil {
			t.Fatalf("parseLoanDiskList(%s): %v", body, err)
		}
		if len(page.Items) != 1 {
			t.Fatalf("items = %d for %s", len(page.Items), body)
		}
	}
}

func TestParseLoanDiskListExplicitHasMoreWins(t *testing.T) {
	body := []byte(`{"data": [{"loan_id": 9}, {"loan_id": 10}], "has_more": false}`)
	page, err := parseLoanDiskList(body, 0, 2)
	if err != nil {
		t.Fatalf("parseLoanDiskList: %v", err)
	}
	if page.HasMore {
		t.Fatal("explicit has_more=false must override the full-page heuristic")
	}
}

func TestParseLoanDiskListMalformed(t *testing.T) {
	if _, err := parseLoanDiskList([]byte(`not json`), 0, 100); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestUnwrapLoanDiskEntity(t *testing.T) {
	wrapped := []byte(`{"data": {"borrower_id": 5}}`)
	got := unwrapLoanDiskEntity(wrapped)
	item, err := decodePayload(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pickString(item, "borrower_id") != "5" {
		t.Fatalf("unwrap = %s", got)
	}

	bare := []byte(`{"borrower_id": 6}`)
	got = unwrapLoanDiskEntity(bare)
	item, err = decodePayload(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pickString(item, "borrower_id") != "6" {
		t.Fatalf("bare entity mangled: %s", got)
	}
}
