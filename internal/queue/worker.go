// Package queue runs relay tasks one at a time in submission order.
package queue

import (
	"context"
	"fmt"
	"sync"

	"fetchrelay/internal/logger"
	"fetchrelay/internal/metrics"

	"go.uber.org/zap"
)

type RunFunc func(ctx context.Context) error

type task struct {
	jobID string
	run   RunFunc
	done  chan struct{}
}

// Worker drains a FIFO of tasks on a single goroutine. The goroutine exits
// when the queue empties and is started again by the next Enqueue.
type Worker struct {
	ctx context.Context

	mu        sync.Mutex
	queue     []*task
	active    string
	running   bool
	cancelled map[string]struct{}
	wg        sync.WaitGroup
}

func NewWorker(ctx context.Context) *Worker {
	return &Worker{
		ctx:       ctx,
		cancelled: make(map[string]struct{}),
	}
}

// Enqueue appends a task. The returned channel is closed once the task
// has run or was removed from the queue.
func (w *Worker) Enqueue(jobID string, run RunFunc) <-chan struct{} {
	t := &task{jobID: jobID, run: run, done: make(chan struct{})}

	w.mu.Lock()
	w.queue = append(w.queue, t)
	start := !w.running
	if start {
		w.running = true
		w.wg.Add(1)
	}
	depth := w.pendingLocked()
	w.mu.Unlock()

	metrics.SetWorkerDepth(depth)
	logger.Log.Debug("task queued",
		zap.String("job", jobID),
		zap.Int("depth", depth))

	if start {
		go w.loop()
	}

	return t.done
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.running = false
			w.active = ""
			w.mu.Unlock()
			metrics.SetWorkerDepth(0)
			return
		}

		t := w.queue[0]
		w.queue = w.queue[1:]
		w.active = t.jobID
		depth := w.pendingLocked()
		w.mu.Unlock()

		metrics.SetWorkerDepth(depth)
		w.execute(t)

		w.mu.Lock()
		w.active = ""
		w.mu.Unlock()
	}
}

func (w *Worker) execute(t *task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("task panicked",
				zap.String("job", t.jobID),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := t.run(w.ctx); err != nil {
		logger.Log.Warn("task failed",
			zap.String("job", t.jobID),
			zap.Error(err))
	}
}

// CancelQueued removes a task that has not started yet.
func (w *Worker) CancelQueued(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, t := range w.queue {
		if t.jobID != jobID {
			continue
		}
		w.queue = append(w.queue[:i], w.queue[i+1:]...)
		close(t.done)
		metrics.SetWorkerDepth(w.pendingLocked())
		return true
	}

	return false
}

func (w *Worker) MarkCancelled(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelled[jobID] = struct{}{}
}

func (w *Worker) IsCancelled(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.cancelled[jobID]
	return ok
}

// Forget clears the cancellation flag of a finished job.
func (w *Worker) Forget(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.cancelled, jobID)
}

// CancelAll empties the queue and flags the running task as cancelled.
// It returns the ids of the removed tasks.
func (w *Worker) CancelAll() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := make([]string, 0, len(w.queue))
	for _, t := range w.queue {
		removed = append(removed, t.jobID)
		close(t.done)
	}
	w.queue = nil

	if w.active != "" {
		w.cancelled[w.active] = struct{}{}
	}

	metrics.SetWorkerDepth(w.pendingLocked())
	return removed
}

func (w *Worker) ActiveID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Pending counts queued tasks plus the running one.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingLocked()
}

func (w *Worker) pendingLocked() int {
	n := len(w.queue)
	if w.active != "" {
		n++
	}
	return n
}

// Wait blocks until the drain goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}
