package pipeline

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/andrestor94/pliegos-ai/internal/parser"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	if ContentHashHex([]byte("aaa")) == ContentHashHex([]byte("bbb")) {
		t.Error("expected different hashes for different inputs")
	}
}

func TestNewJob(t *testing.T) {
	files := []parser.SourceFile{
		{Name: "pliego.pdf", Data: []byte("%PDF")},
		{Name: "anexo.docx", Data: []byte("PK")},
	}
	job := NewJob("licitacion-12", "Licitación 12/2024", files)

	if job.ID == "" {
		t.Fatal("expected an id")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if job.Progress.FilesTotal != 2 {
		t.Errorf("expected 2 files total, got %d", job.Progress.FilesTotal)
	}
	if strings.Join(job.Files, ",") != "pliego.pdf,anexo.docx" {
		t.Errorf("unexpected file names %v", job.Files)
	}
	if len(job.Sources()) != 2 {
		t.Errorf("expected sources to be kept until the run finishes")
	}
	if other := NewJob("x", "", nil); other.ID == job.ID {
		t.Error("expected unique ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusExtracting, "extracting"},
		{StatusAnalyzing, "analyzing"},
		{StatusRendering, "rendering"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("annex 2 unreadable")
	job.AddError("analysis failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "annex 2 unreadable" {
		t.Errorf("expected first error %q, got %q", "annex 2 unreadable", snap.Progress.Errors[0])
	}
}

func TestJob_IncrFilesExtracted(t *testing.T) {
	job := &Job{ID: "incr-test", UpdatedAt: time.Now()}
	job.IncrFilesExtracted()
	job.IncrFilesExtracted()

	if got := job.Snapshot().Progress.FilesExtracted; got != 2 {
		t.Errorf("expected 2 files extracted, got %d", got)
	}
}

func TestJob_FinishReleasesSources(t *testing.T) {
	job := NewJob("n", "", []parser.SourceFile{{Name: "a.pdf", Data: []byte("x")}})
	if job.Outcome() != nil {
		t.Fatal("expected no outcome before Finish")
	}
	job.Finish(&Outcome{Name: "n", PDFPath: "/tmp/n.pdf"}, StatusCompleted, "done")

	if job.Sources() != nil {
		t.Error("expected sources to be released")
	}
	if job.Outcome() == nil || job.Outcome().PDFPath != "/tmp/n.pdf" {
		t.Errorf("unexpected outcome %+v", job.Outcome())
	}
	snap := job.Snapshot()
	if snap.Status != StatusCompleted || snap.Result == nil {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestJob_SnapshotIsDetached(t *testing.T) {
	job := NewJob("n", "", []parser.SourceFile{{Name: "a.pdf"}})
	job.Finish(&Outcome{Name: "n", Report: "secret text"}, StatusCompleted, "done")

	snap := job.Snapshot()
	snap.Files[0] = "changed"
	snap.Result.Name = "changed"
	if job.Files[0] != "a.pdf" || job.Outcome().Name != "n" {
		t.Error("snapshot must not alias job state")
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "secret text") {
		t.Error("report text must not be serialized in the status payload")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job, got %d", store.Len())
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	store.Put(&Job{ID: "old", UpdatedAt: time.Now()})
	time.Sleep(100 * time.Millisecond)
	store.Put(&Job{ID: "new", UpdatedAt: time.Now()})

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	store.Cleanup()
}
