package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTasksNeverOverlap(t *testing.T) {
	w := NewWorker(context.Background())

	type span struct{ start, end time.Time }
	var (
		mu    sync.Mutex
		spans []span
	)

	for i := 0; i < 8; i++ {
		w.Enqueue("job", func(ctx context.Context) error {
			s := span{start: time.Now()}
			time.Sleep(5 * time.Millisecond)
			s.end = time.Now()
			mu.Lock()
			spans = append(spans, s)
			mu.Unlock()
			return nil
		})
	}
	w.Wait()

	if len(spans) != 8 {
		t.Fatalf("expected 8 runs, got %d", len(spans))
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].start.Before(spans[i-1].end) {
			t.Fatalf("task %d started before task %d finished", i, i-1)
		}
	}
}

func TestFIFOOrder(t *testing.T) {
	w := NewWorker(context.Background())

	gate := make(chan struct{})
	var order []string
	var mu sync.Mutex
	record := func(id string) RunFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	w.Enqueue("a", func(ctx context.Context) error {
		<-gate
		return nil
	})
	w.Enqueue("b", record("b"))
	w.Enqueue("c", record("c"))
	w.Enqueue("d", record("d"))
	close(gate)
	w.Wait()

	want := []string{"b", "c", "d"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestCancelQueued(t *testing.T) {
	w := NewWorker(context.Background())

	started := make(chan struct{})
	gate := make(chan struct{})
	w.Enqueue("a", func(ctx context.Context) error {
		close(started)
		<-gate
		return nil
	})
	<-started

	ran := false
	done := w.Enqueue("b", func(ctx context.Context) error {
		ran = true
		return nil
	})

	if !w.CancelQueued("b") {
		t.Fatal("queued task should be removable")
	}
	if w.CancelQueued("a") {
		t.Fatal("running task is not in the queue")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("removed task's done channel should be closed")
	}

	close(gate)
	w.Wait()

	if ran {
		t.Fatal("cancelled task must not run")
	}
}

func TestCancelAllFlagsActive(t *testing.T) {
	w := NewWorker(context.Background())

	started := make(chan struct{})
	gate := make(chan struct{})
	w.Enqueue("a", func(ctx context.Context) error {
		close(started)
		<-gate
		return nil
	})
	w.Enqueue("b", func(ctx context.Context) error { return nil })
	w.Enqueue("c", func(ctx context.Context) error { return nil })

	<-started
	if w.ActiveID() != "a" {
		t.Fatalf("expected active a, got %q", w.ActiveID())
	}
	if w.Pending() != 3 {
		t.Fatalf("expected 3 pending, got %d", w.Pending())
	}

	removed := w.CancelAll()
	if len(removed) != 2 || removed[0] != "b" || removed[1] != "c" {
		t.Fatalf("unexpected removed ids %v", removed)
	}
	if !w.IsCancelled("a") {
		t.Fatal("active task should be flagged")
	}

	close(gate)
	w.Wait()

	if w.Pending() != 0 {
		t.Fatalf("expected empty worker, got %d", w.Pending())
	}
}

func TestFailingTaskDoesNotStopLoop(t *testing.T) {
	w := NewWorker(context.Background())

	w.Enqueue("a", func(ctx context.Context) error { return errors.New("boom") })
	w.Enqueue("b", func(ctx context.Context) error { panic("bad") })

	ran := false
	w.Enqueue("c", func(ctx context.Context) error {
		ran = true
		return nil
	})
	w.Wait()

	if !ran {
		t.Fatal("loop should continue after failures")
	}
}
