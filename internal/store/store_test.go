package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fetchrelay/internal/model"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.json")
	return New(path), path
}

func TestCreatePersistsSnapshot(t *testing.T) {
	s, path := newTestStore(t)

	job := model.NewJob("https://example.com/a.bin", model.KindDownload)
	if err := s.Create(job); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected 0600 snapshot, got %v", info.Mode().Perm())
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}

	got, ok := reloaded.Get(job.ID)
	if !ok {
		t.Fatal("job missing after reload")
	}
	if got.SourceRef != job.SourceRef || got.Kind != model.KindDownload {
		t.Fatalf("unexpected reloaded job %+v", got)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s, _ := newTestStore(t)
	job := model.NewJob("u", model.KindUpload)

	if err := s.Create(job); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(job); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestTransitionEnforcesTable(t *testing.T) {
	s, _ := newTestStore(t)
	job := model.NewJob("u", model.KindDownload)
	_ = s.Create(job)

	if _, err := s.Transition(job.ID, model.StateDone, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("queued -> done must be refused, got %v", err)
	}

	got, err := s.Transition(job.ID, model.StateDownloading, func(j *model.Job) { j.Percent = 0 })
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.StateDownloading {
		t.Fatalf("expected downloading, got %s", got.State)
	}

	if _, err := s.Transition("missing", model.StateDone, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)

	for i, ts := range []int64{100, 300, 200} {
		job := model.NewJob("u", model.KindUpload)
		job.ID = []string{"a", "b", "c"}[i]
		job.CreatedAt = ts
		_ = s.Create(job)
	}

	list := s.List()
	if len(list) != 3 || list[0].ID != "b" || list[1].ID != "c" || list[2].ID != "a" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestReconcile(t *testing.T) {
	s, path := newTestStore(t)

	downloading := model.NewJob("u1", model.KindDownload)
	downloading.State = model.StateDownloading
	uploading := model.NewJob("u2", model.KindUpload)
	uploading.State = model.StateUploading
	uploading.Percent = 40
	done := model.NewJob("u3", model.KindUpload)
	done.State = model.StateDone

	for _, j := range []model.Job{downloading, uploading, done} {
		if err := s.Create(j); err != nil {
			t.Fatal(err)
		}
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}

	changed := reloaded.Reconcile()
	if len(changed) != 2 {
		t.Fatalf("expected 2 reconciled jobs, got %d", len(changed))
	}

	if got, _ := reloaded.Get(downloading.ID); got.State != model.StateError || got.Message == "" {
		t.Fatalf("downloading should become error with message, got %+v", got)
	}
	if got, _ := reloaded.Get(uploading.ID); got.State != model.StateQueued || got.Percent != 0 {
		t.Fatalf("uploading should become queued, got %+v", got)
	}
	if got, _ := reloaded.Get(done.ID); got.State != model.StateDone {
		t.Fatalf("done must be untouched, got %s", got.State)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	job := model.NewJob("u", model.KindUpload)
	_ = s.Create(job)

	if _, err := s.Delete(job.ID); err != nil {
		t.Fatal(err)
	}
	if s.Has(job.ID) {
		t.Fatal("job should be gone")
	}
	if _, err := s.Delete(job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("missing snapshot should not fail: %v", err)
	}
}
