package ledgersync

import (
	"errors"
	"testing"

	"bitbucket.org/imfsl/ledger_backend/models"
)

func TestSyncCountersObserve(t *testing.T) {
	var c SyncCounters
	c.Observe(models.SyncItemActionCreated, nil)
	c.Observe(models.SyncItemActionUpdated, nil)
	c.Observe(models.SyncItemActionDeleted, nil)
	c.Observe(models.SyncItemActionUpserted, nil)
	c.Observe("", newValidationError("no name"))
	c.Observe("", newResolutionError("no owner"))
	c.Observe("", newUpstreamError("fetch failed", errors.New("timeout")))
	c.Observe("", errors.New("untyped store error"))

	if c.Created != 1 {
		t.Fatalf("Created = %d", c.Created)
	}
	if c.Updated != 3 {
		t.Fatalf("Updated = %d, deletes and upserts count as updates", c.Updated)
	}
	if c.Skipped != 2 {
		t.Fatalf("Skipped = %d, validation and resolution are skips", c.Skipped)
	}
	if c.Failed != 2 {
		t.Fatalf("Failed = %d", c.Failed)
	}
}

func TestSyncCountersAdd(t *testing.T) {
	total := SyncCounters{Fetched: 10, Created: 2, Failed: 1}
	total.Add(SyncCounters{Fetched: 5, Updated: 3, Skipped: 1, Failed: 1})

	want := SyncCounters{Fetched: 15, Created: 2, Updated: 3, Skipped: 1, Failed: 2}
	if total != want {
		t.Fatalf("Add = %+v, want %+v", total, want)
	}
}

func TestFinalizeStatus(t *testing.T) {
	if got := FinalizeStatus(0); got != models.SyncRunStatusCompleted {
		t.Fatalf("zero failures = %q", got)
	}
	if got := FinalizeStatus(1); got != models.SyncRunStatusPartial {
		t.Fatalf("one failure = %q", got)
	}
}

func TestSyncRunIsTerminal(t *testing.T) {
	cases := map[string]bool{
		models.SyncRunStatusQueued:    false,
		models.SyncRunStatusRunning:   false,
		models.SyncRunStatusCompleted: true,
		models.SyncRunStatusPartial:   true,
	}
	for status, want := range cases {
		run := models.SyncRun{Status: status}
		if got := run.IsTerminal(); got != want {
			t.Fatalf("IsTerminal(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestClassifyErrors(t *testing.T) {
	if got := classify(newValidationError("x")); got != models.SyncErrorValidation {
		t.Fatalf("classify validation = %q", got)
	}
	if got := classify(newUpstreamError("x", errors.New("boom"))); got != models.SyncErrorUpstream {
		t.Fatalf("classify upstream = %q", got)
	}
	if got := classify(errors.New("raw")); got != models.SyncErrorPersistence {
		t.Fatalf("classify untyped = %q", got)
	}
	if !isSkip(newResolutionError("x")) {
		t.Fatal("resolution errors are skips")
	}
	if isSkip(newUpstreamError("x", nil)) {
		t.Fatal("upstream errors are not skips")
	}
}
