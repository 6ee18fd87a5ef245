package queue

import (
	"testing"

	_ "rc-timing/migrations"

	"github.com/pocketbase/pocketbase/tests"
)

func newTestStore(t *testing.T) (*tests.TestApp, *Store) {
	t.Helper()
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(app.Cleanup)
	return app, NewStore(app)
}

func mustCreateJob(t *testing.T, s *Store, items ...ItemSpec) *Job {
	t.Helper()
	job, err := s.CreateJob("abcd1234", ModeDefault, items)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func sessionItem(ref string) ItemSpec {
	return ItemSpec{TargetType: TargetSession, TargetRef: ref}
}

func TestCreateJobPersistsQueuedItems(t *testing.T) {
	_, s := newTestStore(t)

	job := mustCreateJob(t, s, sessionItem("ref-a"), sessionItem("ref-b"))
	if job.State != StateQueued {
		t.Errorf("job state = %s, want QUEUED", job.State)
	}
	if job.PlanHash != "abcd1234" {
		t.Errorf("planHash = %q", job.PlanHash)
	}
	if job.EnqueuedAt == 0 {
		t.Errorf("enqueuedAt not stamped")
	}

	got, items, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("GetJob returned %+v", got)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.State != StateQueued {
			t.Errorf("item %s state = %s, want QUEUED", it.TargetRef, it.State)
		}
		if it.JobID != job.ID {
			t.Errorf("item %s job = %q, want %q", it.TargetRef, it.JobID, job.ID)
		}
	}
}

func TestGetJobUnknownId(t *testing.T) {
	_, s := newTestStore(t)
	job, items, err := s.GetJob("missing123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil || items != nil {
		t.Fatalf("expected nil job for unknown id, got %+v", job)
	}
}

func TestTakeNextQueuedJobClaimsOldestOnce(t *testing.T) {
	_, s := newTestStore(t)

	first := mustCreateJob(t, s, sessionItem("ref-a"))
	second := mustCreateJob(t, s, sessionItem("ref-b"))

	claimed, err := s.TakeNextQueuedJob()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest job %s, got %+v", first.ID, claimed)
	}
	if claimed.State != StateRunning {
		t.Errorf("claimed state = %s, want RUNNING", claimed.State)
	}

	// The first job is RUNNING now; the next claim moves on to the second.
	claimed, err = s.TakeNextQueuedJob()
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed == nil || claimed.ID != second.ID {
		t.Fatalf("expected job %s, got %+v", second.ID, claimed)
	}

	// Queue drained: not an error.
	claimed, err = s.TakeNextQueuedJob()
	if err != nil {
		t.Fatalf("empty claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil job on empty queue, got %+v", claimed)
	}
}

func TestTakeNextQueuedJobConcurrentClaim(t *testing.T) {
	_, s := newTestStore(t)
	mustCreateJob(t, s, sessionItem("ref-a"))

	results := make(chan *Job, 2)
	for i := 0; i < 2; i++ {
		go func() {
			job, err := s.TakeNextQueuedJob()
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			results <- job
		}()
	}

	winners := 0
	for i := 0; i < 2; i++ {
		if <-results != nil {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("exactly one claim must win, got %d", winners)
	}
}

func TestUpdateJobProgressClamps(t *testing.T) {
	_, s := newTestStore(t)
	job := mustCreateJob(t, s, sessionItem("ref-a"))

	if err := s.UpdateJobProgress(job.ID, 150); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}
	got, _, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProgressPct != 100 {
		t.Errorf("progress = %v, want clamped 100", got.ProgressPct)
	}

	if err := s.UpdateJobProgress(job.ID, -5); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}
	got, _, _ = s.GetJob(job.ID)
	if got.ProgressPct != 0 {
		t.Errorf("progress = %v, want clamped 0", got.ProgressPct)
	}
}

func TestMarkJobSucceededFinalizesItems(t *testing.T) {
	_, s := newTestStore(t)
	job := mustCreateJob(t, s, sessionItem("ref-a"), sessionItem("ref-b"))

	if err := s.MarkJobSucceeded(job.ID); err != nil {
		t.Fatalf("MarkJobSucceeded: %v", err)
	}
	got, items, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateSucceeded {
		t.Errorf("state = %s, want SUCCEEDED", got.State)
	}
	if got.ProgressPct != 100 {
		t.Errorf("progress = %v, want 100", got.ProgressPct)
	}
	for _, it := range items {
		if it.State != StateSucceeded {
			t.Errorf("item %s state = %s, want SUCCEEDED", it.TargetRef, it.State)
		}
	}
}

func TestMarkJobFailedPreservesSucceededItems(t *testing.T) {
	_, s := newTestStore(t)
	job := mustCreateJob(t, s, sessionItem("ref-ok"), sessionItem("ref-bad"))

	_, items, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	okState := StateSucceeded
	if err := s.UpdateJobItem(items[0].ID, ItemPatch{State: &okState, Counts: map[string]any{"importedLapCount": 7}}); err != nil {
		t.Fatalf("UpdateJobItem: %v", err)
	}

	if err := s.MarkJobFailed(job.ID, "upstream returned 502"); err != nil {
		t.Fatalf("MarkJobFailed: %v", err)
	}

	got, items, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateFailed {
		t.Errorf("job state = %s, want FAILED", got.State)
	}
	if got.Message == "" {
		t.Errorf("failure message not recorded")
	}
	byRef := map[string]JobItem{}
	for _, it := range items {
		byRef[it.TargetRef] = it
	}
	if byRef["ref-ok"].State != StateSucceeded {
		t.Errorf("succeeded item must keep its state, got %s", byRef["ref-ok"].State)
	}
	if byRef["ref-ok"].Counts["importedLapCount"] == nil {
		t.Errorf("succeeded item must keep its counts")
	}
	if byRef["ref-bad"].State != StateFailed {
		t.Errorf("pending item state = %s, want FAILED", byRef["ref-bad"].State)
	}
}

func TestTerminalJobIsImmutable(t *testing.T) {
	_, s := newTestStore(t)
	job := mustCreateJob(t, s, sessionItem("ref-a"))

	if err := s.MarkJobFailed(job.ID, "boom"); err != nil {
		t.Fatal(err)
	}
	// Late success signal after a failure must not resurrect the job.
	if err := s.MarkJobSucceeded(job.ID); err != nil {
		t.Fatal(err)
	}
	got, items, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateFailed {
		t.Errorf("state = %s, want FAILED to stick", got.State)
	}

	running := StateRunning
	if err := s.UpdateJobItem(items[0].ID, ItemPatch{State: &running}); err != nil {
		t.Fatal(err)
	}
	_, items, _ = s.GetJob(job.ID)
	if items[0].State != StateFailed {
		t.Errorf("terminal item state = %s, want FAILED to stick", items[0].State)
	}
}
