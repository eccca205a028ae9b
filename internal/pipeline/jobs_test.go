package pipeline

import (
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	h := ContentHashHex([]byte("hello world"))
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
	if ContentHashHex([]byte("aaa")) == ContentHashHex([]byte("bbb")) {
		t.Error("expected different hashes for different inputs")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("in.pdf", "out.mp3", "work", Settings{})
	if job.Status != StatusQueued {
		t.Fatalf("new job should be queued, got %q", job.Status)
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusExtracting, "extracting text"},
		{StatusChunking, "splitting into chunks"},
		{StatusSynthesizing, "synthesizing audio"},
		{StatusMerging, "merging audio"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		snap := job.Snapshot()
		if snap.Status != tr.status || snap.Phase != tr.phase {
			t.Errorf("expected %q/%q, got %q/%q", tr.status, tr.phase, snap.Status, snap.Phase)
		}
		if !snap.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	for _, s := range []JobStatus{StatusCompleted, StatusPartial, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusQueued, StatusExtracting, StatusChunking, StatusSynthesizing, StatusMerging} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
	if StatusFailed.HasAudio() || !StatusPartial.HasAudio() {
		t.Error("only completed and partial jobs have audio")
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("chunk 3 failed")
	job.AddError("chunk 7 failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "chunk 3 failed" {
		t.Errorf("expected first error %q, got %q", "chunk 3 failed", snap.Progress.Errors[0])
	}

	// Snapshots must not alias internal state.
	snap.Progress.Errors[0] = "mutated"
	if job.Snapshot().Progress.Errors[0] != "chunk 3 failed" {
		t.Error("snapshot shares the error slice with the job")
	}
}

func TestJob_RecordChunk(t *testing.T) {
	job := &Job{ID: "incr-test", UpdatedAt: time.Now()}
	job.SetTotalChunks(3, 90*time.Second)
	job.RecordChunk(true)
	job.RecordChunk(false)
	job.RecordChunk(true)

	p := job.Snapshot().Progress
	if p.TotalChunks != 3 || p.ChunksProcessed != 3 || p.ChunksSucceeded != 2 || p.ChunksFailed != 1 {
		t.Errorf("unexpected progress %+v", p)
	}
	if p.EstimatedAudio != "1m30s" {
		t.Errorf("expected estimate 1m30s, got %q", p.EstimatedAudio)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
}

func TestJobStore_PutGetDelete(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	if got := store.Get("store-1"); got == nil || got.ID != "store-1" {
		t.Fatalf("expected to get job back, got %v", got)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
	if store.Delete("store-1") != job {
		t.Error("Delete should return the removed job")
	}
	if store.Get("store-1") != nil {
		t.Error("job still present after Delete")
	}
}

func TestJobStore_ListOrderedByID(t *testing.T) {
	store := NewJobStore(time.Hour)
	a := NewJob("", "", "", Settings{})
	b := NewJob("", "", "", Settings{})
	store.Put(b)
	store.Put(a)

	list := store.List()
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("expected creation order, got %+v", list)
	}
}

func TestJobStore_TTLCleanupSkipsRunningJobs(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	running := &Job{ID: "busy", Status: StatusSynthesizing, UpdatedAt: time.Now()}
	store.Put(expired)
	store.Put(running)

	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", Status: StatusFailed, UpdatedAt: time.Now()}
	store.Put(fresh)

	evicted := store.Cleanup()
	if len(evicted) != 1 || evicted[0].ID != "old" {
		t.Errorf("expected only the expired finished job evicted, got %v", evicted)
	}
	if store.Get("busy") == nil || store.Get("new") == nil {
		t.Error("running and fresh jobs should survive cleanup")
	}
}
