package ledgersync

import "testing"

func TestParseFineractListPagedEnvelope(t *testing.T) {
	body := []byte(`{"totalFilteredRecords": 250, "pageItems": [{"id": 1}, {"id": 2}]}`)
	page, err := parseFineractList(body, 0, 2)
	if err != nil {
		t.Fatalf("parseFineractList: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 250 {
		t.Fatalf("items = %d, total = %d", len(page.Items), page.Total)
	}
	if !page.HasMore {
		t.Fatal("250 filtered records past offset 2 means more pages")
	}
}

func TestParseFineractListLastPage(t *testing.T) {
	body := []byte(`{"totalFilteredRecords": 102, "pageItems": [{"id": 101}, {"id": 102}]}`)
	page, err := parseFineractList(body, 100, 100)
	if err != nil {
		t.Fatalf("parseFineractList: %v", err)
	}
	if page.HasMore {
		t.Fatal("offset+items covering the filtered total means done")
	}
}

func TestParseFineractListBareArray(t *testing.T) {
	body := []byte(`[{"id": 1}, {"id": 2}, {"id": 3}]`)
	page, err := parseFineractList(body, 0, 0)
	if err != nil {
		t.Fatalf("parseFineractList: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("items = %d", len(page.Items))
	}
	if page.HasMore {
		t.Fatal("bare arrays with no limit never page")
	}
}

func TestFineractTransactionIdRoundTrip(t *testing.T) {
	id := FineractTransactionId("12", "345")
	if id != "12:345" {
		t.Fatalf("composite id = %q", id)
	}
	loanId, txId, err := SplitFineractTransactionId(id)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if loanId != "12" || txId != "345" {
		t.Fatalf("split = (%q, %q)", loanId, txId)
	}
}

func TestSplitFineractTransactionIdMalformed(t *testing.T) {
	for _, id := range []string{"", "12", ":345", "12:"} {
		if _, _, err := SplitFineractTransactionId(id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
}

func TestInjectField(t *testing.T) {
	tagged, err := injectField([]byte(`{"id": 345, "amount": 70000}`), "loanId", "12")
	if err != nil {
		t.Fatalf("injectField: %v", err)
	}
	item, err := decodePayload(tagged)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pickString(item, "loanId") != "12" {
		t.Fatalf("loanId missing after injection: %s", tagged)
	}
	if pickString(item, "id") != "345" {
		t.Fatalf("original fields lost: %s", tagged)
	}
}
